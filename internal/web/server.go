package web

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
// metrics may be nil to leave /metrics disabled.
func NewServer(addr string, broadcaster *StatusBroadcaster, arm Arm, formDefaults FormConfig, metrics http.Handler) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, err
	}

	handlers := NewHandlers(broadcaster, arm, formDefaults, subFS)
	handlers.Metrics = metrics

	return &Server{
		addr:     addr,
		handlers: handlers,
	}, nil
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /move", s.handlers.HandleMove)
	mux.HandleFunc("GET /config", s.handlers.HandleConfig)
	mux.HandleFunc("GET /state", s.handlers.HandleState)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.HandleFunc("GET /metrics", s.handlers.HandleMetrics)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
// Moves started from the web are cancelled with ctx.
func (s *Server) Run(ctx context.Context) error {
	s.handlers.runningMu.Lock()
	s.handlers.baseCtx = ctx
	s.handlers.runningMu.Unlock()

	srv := &http.Server{Addr: s.addr, Handler: s.Mux(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
