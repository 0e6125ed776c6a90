package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/ArmGo/internal/config"
	"github.com/cjeanneret/ArmGo/internal/console"
	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/hw/chardev"
	"github.com/cjeanneret/ArmGo/internal/hw/maestro"
	"github.com/cjeanneret/ArmGo/internal/hw/pca9685"
	"github.com/cjeanneret/ArmGo/internal/hw/pwm"
	"github.com/cjeanneret/ArmGo/internal/logic/motion"
	"github.com/cjeanneret/ArmGo/internal/logic/servo"
	"github.com/cjeanneret/ArmGo/internal/observability"
	"github.com/cjeanneret/ArmGo/internal/web"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	axis := flag.Int("axis", -1, "axis index (0-5) to query or sweep")
	angle := flag.Float64("angle", math.NaN(), "sweep -axis to this angle")
	duty := flag.Int64("duty", 0, "sweep -axis to this duty in nanoseconds")
	interactive := flag.Bool("console", false, "start the interactive console")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	if err := validateCLIOverrides(*axis, *angle, *duty); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	shutdown, err := observability.InitTracing(observability.TracingConfig{
		Enabled:     cfg.Defaults.Tracing,
		ServiceName: "armgo",
		Writer:      os.Stderr,
	})
	if err != nil {
		log.Fatalf("init tracing failed: %v", err)
	}
	defer observability.ShutdownWithTimeout(shutdown)

	var collector *observability.Collector
	if cfg.Defaults.Metrics {
		collector, err = observability.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			log.Fatalf("init metrics failed: %v", err)
		}
	}

	debug.Step(1, "Initializing servo gateway")
	debug.PrintStruct("Gateway config", cfg.Gateway)
	gw, err := newGatewayFromConfig(cfg)
	if err != nil {
		log.Fatalf("init gateway failed: %v", err)
	}
	defer func() {
		if err := gw.Close(); err != nil {
			log.Printf("closing gateway failed: %v", err)
		}
	}()

	debug.Step(2, "Building motion controller")
	ctrl, err := newController(cfg, gw, collector)
	if err != nil {
		log.Fatalf("init controller failed: %v", err)
	}

	// An explicit -web wins, then -console, then -axis; web_port from the
	// config only applies when no mode was asked for.
	port := webPort.port()
	if port == 0 && !*interactive && *axis < 0 {
		port = cfg.Defaults.WebPort
	}

	switch {
	case port > 0:
		if err := runWeb(ctx, port, cfg, ctrl, collector); err != nil {
			log.Fatalf("web server: %v", err)
		}
	case *interactive:
		if err := console.New(ctrl, os.Stdin, os.Stdout).Run(ctx); err != nil {
			log.Fatalf("console: %v", err)
		}
	case *axis >= 0:
		if err := runSweep(ctx, os.Stdout, ctrl, *axis, *angle, *duty); err != nil {
			log.Fatalf("sweep failed: %v", err)
		}
	default:
		states, err := ctrl.GetState(ctx)
		if err != nil {
			log.Fatalf("read state failed: %v", err)
		}
		for _, s := range states {
			fmt.Printf("%d %-8s angle %7.2f duty %d ns\n", s.Index, s.Name, s.Angle, s.Duty.Nanoseconds())
		}
	}
}

func newController(cfg *config.Config, gw pwm.Gateway, collector *observability.Collector) (*motion.Controller, error) {
	axes, err := cfg.ServoAxes()
	if err != nil {
		return nil, err
	}
	pacing, err := cfg.Pacing()
	if err != nil {
		return nil, err
	}
	easing, err := cfg.Easing()
	if err != nil {
		return nil, err
	}
	debug.Value("Pacing", pacing.Mode)
	debug.Value("Easing", easing)
	debug.Value("Tick", cfg.Tick())

	opts := motion.Options{Pacing: pacing, Easing: easing, Tick: cfg.Tick()}
	if collector != nil {
		opts.Recorder = collector
	}
	return motion.NewController(gw, axes, opts)
}

// runSweep sweeps one axis when a target is given, then prints where it is.
func runSweep(ctx context.Context, w io.Writer, ctrl *motion.Controller, axis int, angle float64, duty int64) error {
	var err error
	switch {
	case duty != 0:
		err = ctrl.Sweep(ctx, axis, time.Duration(duty))
	case !math.IsNaN(angle):
		err = ctrl.SweepAngle(ctx, axis, angle)
	default:
		err = ctrl.Seed(ctx)
	}
	if err != nil {
		return err
	}
	a, err := ctrl.Axis(axis)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: angle %.2f duty %d ns\n", a.Name, a.Angle(), a.Duty.Nanoseconds())
	return nil
}

func runWeb(ctx context.Context, port int, cfg *config.Config, ctrl *motion.Controller, collector *observability.Collector) error {
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	pacing, _ := cfg.Pacing()
	easing, _ := cfg.Easing()
	form := web.NewFormConfig(ctrl.Axes(), easing.String(), pacing.Mode.String())

	var metrics http.Handler
	if collector != nil {
		metrics = collector.Handler()
	}
	srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, ctrl, form, metrics)
	if err != nil {
		return err
	}
	err = srv.Run(ctx)
	if derr := ctrl.DisableAll(); derr != nil {
		debug.Error(derr)
	}
	return err
}

// validateCLIOverrides checks the single-axis flags. -angle and -duty need
// -axis and are mutually exclusive.
func validateCLIOverrides(axis int, angle float64, duty int64) error {
	hasAngle := !math.IsNaN(angle)
	if axis < -1 || axis >= servo.NumAxes {
		return fmt.Errorf("axis must be between 0 and %d, got %d", servo.NumAxes-1, axis)
	}
	if (hasAngle || duty != 0) && axis < 0 {
		return fmt.Errorf("-angle and -duty require -axis")
	}
	if hasAngle && duty != 0 {
		return fmt.Errorf("-angle and -duty are mutually exclusive")
	}
	if math.IsInf(angle, 0) {
		return fmt.Errorf("angle must be finite, got %g", angle)
	}
	if duty < 0 || time.Duration(duty) > servo.Period {
		return fmt.Errorf("duty must be between 1 and %d ns, got %d", servo.Period.Nanoseconds(), duty)
	}
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newGatewayFromConfig selects a gateway implementation based on configuration.
func newGatewayFromConfig(cfg *config.Config) (pwm.Gateway, error) {
	g := cfg.Gateway
	switch g.Type {
	case config.GatewayMock:
		return pwm.NewMockGateway(), nil
	case config.GatewayChardev:
		return chardev.Open(g.Device)
	case config.GatewayRPi:
		return pwm.NewRPiDriver(g.Pins)
	case config.GatewayPCA9685:
		return pca9685.Open(g.I2CBus, g.I2CAddr)
	case config.GatewayMaestro:
		return maestro.Open(g.SerialPort, g.Baud)
	default:
		return nil, fmt.Errorf("unsupported gateway type: %s", g.Type)
	}
}
