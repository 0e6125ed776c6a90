package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/logic/motion"
	"github.com/cjeanneret/ArmGo/internal/logic/servo"
)

// MaxBodyBytes bounds the size of a request body.
const MaxBodyBytes = 1 << 20

// DefaultMoveInterval is the minimum delay between two accepted moves.
const DefaultMoveInterval = 500 * time.Millisecond

// Arm is the part of the motion controller the web UI drives.
type Arm interface {
	GetState(ctx context.Context) ([]motion.AxisState, error)
	SetState(ctx context.Context, states []motion.AxisState) (*motion.Report, error)
}

// AxisCommand is one axis of a POST /move request.
type AxisCommand struct {
	Index   int     `json:"index"`
	Angle   float64 `json:"angle"`
	Enabled bool    `json:"enabled"`
}

// MoveRequest is the body of POST /move.
type MoveRequest struct {
	Axes []AxisCommand `json:"axes"`
}

// AxisLimits describes one axis for the control form.
type AxisLimits struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	MinAngle float64 `json:"min_angle"`
	MaxAngle float64 `json:"max_angle"`
}

// FormConfig holds the values the control page is built from (from config).
type FormConfig struct {
	Axes   []AxisLimits `json:"axes"`
	Easing string       `json:"easing"`
	Pacing string       `json:"pacing"`
}

// NewFormConfig derives the form description from the configured axes.
func NewFormConfig(axes []servo.Axis, easing, pacing string) FormConfig {
	fc := FormConfig{Easing: easing, Pacing: pacing}
	for _, a := range axes {
		lo, hi := a.DutyToAngle(a.MinDuty), a.DutyToAngle(a.MaxDuty)
		if lo > hi {
			lo, hi = hi, lo
		}
		fc.Axes = append(fc.Axes, AxisLimits{Index: a.Index, Name: a.Name, MinAngle: lo, MaxAngle: hi})
	}
	return fc
}

// ValidateMove checks a move request before any device I/O.
func ValidateMove(req MoveRequest) error {
	if len(req.Axes) == 0 {
		return fmt.Errorf("axes must not be empty")
	}
	if len(req.Axes) > servo.NumAxes {
		return fmt.Errorf("at most %d axes, got %d", servo.NumAxes, len(req.Axes))
	}
	seen := make(map[int]bool, len(req.Axes))
	for _, a := range req.Axes {
		if a.Index < 0 || a.Index >= servo.NumAxes {
			return fmt.Errorf("axis index must be between 0 and %d, got %d", servo.NumAxes-1, a.Index)
		}
		if seen[a.Index] {
			return fmt.Errorf("axis %d given twice", a.Index)
		}
		seen[a.Index] = true
		if math.IsNaN(a.Angle) || math.IsInf(a.Angle, 0) {
			return fmt.Errorf("axis %d: angle must be a finite number", a.Index)
		}
	}
	return nil
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Arm          Arm
	FormDefaults FormConfig
	Metrics      http.Handler
	MoveInterval time.Duration

	runningMu sync.Mutex
	running   bool
	lastMove  time.Time
	baseCtx   context.Context
	staticFS  fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If arm is nil, POST /move and GET /state return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, arm Arm, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		Arm:          arm,
		FormDefaults: formDefaults,
		MoveInterval: DefaultMoveInterval,
		baseCtx:      context.Background(),
		staticFS:     staticFS,
	}
}

// HandleConfig returns the form description (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleState handles GET /state with the full state of the arm.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if h.Arm == nil {
		http.Error(w, "arm not configured", http.StatusServiceUnavailable)
		return
	}
	h.runningMu.Lock()
	busy := h.running
	h.runningMu.Unlock()
	if busy {
		http.Error(w, "move in progress", http.StatusConflict)
		return
	}

	states, err := h.Arm.GetState(r.Context())
	if err != nil {
		http.Error(w, "read state: "+err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(states)
}

// HandleMove handles POST /move to apply a full or partial arm state.
func (h *Handlers) HandleMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateMove(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Arm == nil {
		http.Error(w, "arm not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "move already in progress", http.StatusConflict)
		return
	}
	if !h.lastMove.IsZero() && time.Since(h.lastMove) < h.MoveInterval {
		h.runningMu.Unlock()
		http.Error(w, "too many moves, slow down", http.StatusTooManyRequests)
		return
	}
	h.running = true
	h.lastMove = time.Now()
	ctx := h.baseCtx
	h.runningMu.Unlock()

	states := make([]motion.AxisState, len(req.Axes))
	for i, a := range req.Axes {
		states[i] = motion.AxisState{Index: a.Index, Angle: a.Angle, Enabled: a.Enabled}
	}

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runningMu.Unlock()
		}()

		report, err := h.Arm.SetState(ctx, states)
		if err != nil {
			h.Broadcaster.Broadcast("error", "Move failed: "+err.Error())
			debug.Error(fmt.Errorf("web move: %w", err))
		} else {
			h.Broadcaster.Broadcast("info", fmt.Sprintf("Move complete in %d ticks", report.Ticks))
		}
		if report != nil {
			h.Broadcaster.BroadcastReport(report)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// HandleMetrics serves Prometheus metrics when a collector is configured.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.Metrics == nil {
		http.Error(w, "metrics disabled", http.StatusNotFound)
		return
	}
	h.Metrics.ServeHTTP(w, r)
}
