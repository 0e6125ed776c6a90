package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cjeanneret/ArmGo/internal/hw/pwm"
	"github.com/cjeanneret/ArmGo/internal/logic/servo"
	"github.com/cjeanneret/ArmGo/internal/logic/trajectory"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// Gateway types understood by the CLI.
const (
	GatewayMock    = "mock"
	GatewayChardev = "chardev"
	GatewayRPi     = "rpio"
	GatewayPCA9685 = "pca9685"
	GatewayMaestro = "maestro"
)

var gatewayTypes = []string{GatewayMock, GatewayChardev, GatewayRPi, GatewayPCA9685, GatewayMaestro}

// GatewayConfig selects and parameterises the servo hardware.
// Only the fields of the selected type are used.
type GatewayConfig struct {
	Type       string `yaml:"type"`        // mock, chardev, rpio, pca9685, maestro
	Device     string `yaml:"device"`      // chardev node, e.g. /dev/robot
	I2CBus     string `yaml:"i2c_bus"`     // pca9685 bus name, empty = first bus
	I2CAddr    uint16 `yaml:"i2c_addr"`    // pca9685 address, 0 = 0x40
	SerialPort string `yaml:"serial_port"` // maestro command port
	Baud       int    `yaml:"baud"`        // maestro baud rate
	Pins       []int  `yaml:"pins"`        // rpio BCM pins, axis i on Pins[i]
}

// MotionConfig holds the control loop and progress policy.
type MotionConfig struct {
	Pacing          string `yaml:"pacing"`            // time or step
	Easing          string `yaml:"easing"`            // linear, log, exponential_decay, sine_squared
	TickMs          int    `yaml:"tick_ms"`           // delay between control ticks
	DutyStepNs      int64  `yaml:"duty_step_ns"`      // step mode: duty change per tick
	DurationScaleNs int64  `yaml:"duration_scale_ns"` // time mode: wall ns per ns of duty delta
	EpsilonNs       int64  `yaml:"epsilon_ns"`        // convergence tolerance
}

// AxisConfig overrides one joint of the reference arm. Zero fields keep the
// reference value.
type AxisConfig struct {
	Index         int                `yaml:"index"`
	Name          string             `yaml:"name"`
	MinDutyNs     int64              `yaml:"min_duty_ns"`
	MaxDutyNs     int64              `yaml:"max_duty_ns"`
	DefaultDutyNs int64              `yaml:"default_duty_ns"`
	Calibration   *servo.Calibration `yaml:"calibration,omitempty"`
}

// DefaultsConfig contains process-wide settings.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	Metrics    bool `yaml:"metrics"`     // expose /metrics on the web server
	Tracing    bool `yaml:"tracing"`     // export sweep spans to stdout
	WebPort    int  `yaml:"web_port"`    // 0 = web UI disabled unless -web is given
}

// Config aggregates all application configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Motion   MotionConfig   `yaml:"motion"`
	Axes     []AxisConfig   `yaml:"axes,omitempty"` // optional, missing axes use the reference arm
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// configs/ directory and does not try to climb out of it.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Gateway
	if cfg.Gateway.Type == "" {
		cfg.Gateway.Type = GatewayMock
	}
	cfg.Gateway.Type = strings.ToLower(cfg.Gateway.Type)
	if !slices.Contains(gatewayTypes, cfg.Gateway.Type) {
		return nil, fmt.Errorf("gateway.type must be one of %s, got %q", strings.Join(gatewayTypes, ", "), cfg.Gateway.Type)
	}
	if cfg.Gateway.Type == GatewayMaestro && cfg.Gateway.SerialPort == "" {
		return nil, fmt.Errorf("gateway.serial_port is required for maestro")
	}
	if cfg.Gateway.Type == GatewayRPi {
		if len(cfg.Gateway.Pins) == 0 {
			return nil, fmt.Errorf("gateway.pins is required for rpio")
		}
		if err := pwm.ValidateRPiPins(cfg.Gateway.Pins); err != nil {
			return nil, fmt.Errorf("gateway.pins: %w", err)
		}
	}

	// Motion
	if cfg.Motion.TickMs < 0 {
		return nil, fmt.Errorf("motion.tick_ms must be >= 0, got %d", cfg.Motion.TickMs)
	}
	if cfg.Motion.TickMs == 0 {
		cfg.Motion.TickMs = 10
	}
	def := trajectory.DefaultPacing()
	if cfg.Motion.DutyStepNs == 0 {
		cfg.Motion.DutyStepNs = def.DutyStep.Nanoseconds()
	}
	if cfg.Motion.DurationScaleNs == 0 {
		cfg.Motion.DurationScaleNs = def.DurationScale.Nanoseconds()
	}
	if cfg.Motion.EpsilonNs == 0 {
		cfg.Motion.EpsilonNs = def.Epsilon.Nanoseconds()
	}
	if _, err := cfg.Pacing(); err != nil {
		return nil, err
	}
	if _, err := cfg.Easing(); err != nil {
		return nil, err
	}

	// Axes
	if _, err := cfg.ServoAxes(); err != nil {
		return nil, err
	}

	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}
	if cfg.Defaults.WebPort < 0 || cfg.Defaults.WebPort > 65535 {
		return nil, fmt.Errorf("defaults.web_port must be between 0 and 65535, got %d", cfg.Defaults.WebPort)
	}

	return &cfg, nil
}

// Tick returns the delay between two control ticks.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Motion.TickMs) * time.Millisecond
}

// Pacing returns the progress policy described by the motion section.
func (c *Config) Pacing() (trajectory.Pacing, error) {
	mode, err := trajectory.ParseMode(c.Motion.Pacing)
	if err != nil {
		return trajectory.Pacing{}, fmt.Errorf("motion.pacing: %w", err)
	}
	pc := trajectory.Pacing{
		Mode:          mode,
		DutyStep:      time.Duration(c.Motion.DutyStepNs),
		DurationScale: time.Duration(c.Motion.DurationScaleNs),
		Epsilon:       time.Duration(c.Motion.EpsilonNs),
	}
	if err := pc.Validate(); err != nil {
		return trajectory.Pacing{}, fmt.Errorf("motion: %w", err)
	}
	return pc, nil
}

// Easing returns the configured velocity profile.
func (c *Config) Easing() (trajectory.Easing, error) {
	e, err := trajectory.ParseEasing(c.Motion.Easing)
	if err != nil {
		return trajectory.Linear, fmt.Errorf("motion.easing: %w", err)
	}
	return e, nil
}

// ServoAxes returns the reference arm with the configured overrides applied.
func (c *Config) ServoAxes() ([]servo.Axis, error) {
	axes := servo.DefaultAxes()
	seen := make(map[int]bool, len(c.Axes))
	for _, ac := range c.Axes {
		if ac.Index < 0 || ac.Index >= len(axes) {
			return nil, &servo.ConfigurationError{Axis: ac.Index, Field: "index", Reason: fmt.Sprintf("must be between 0 and %d", len(axes)-1)}
		}
		if seen[ac.Index] {
			return nil, &servo.ConfigurationError{Axis: ac.Index, Field: "index", Reason: "configured twice"}
		}
		seen[ac.Index] = true

		a := &axes[ac.Index]
		if ac.Name != "" {
			a.Name = ac.Name
		}
		if ac.MinDutyNs != 0 {
			a.MinDuty = time.Duration(ac.MinDutyNs)
		}
		if ac.MaxDutyNs != 0 {
			a.MaxDuty = time.Duration(ac.MaxDutyNs)
		}
		if ac.DefaultDutyNs != 0 {
			a.DefaultDuty = time.Duration(ac.DefaultDutyNs)
		}
		if ac.Calibration != nil {
			a.Calibration = *ac.Calibration
		}
	}
	for i := range axes {
		if err := axes[i].Validate(); err != nil {
			return nil, err
		}
	}
	return axes, nil
}
