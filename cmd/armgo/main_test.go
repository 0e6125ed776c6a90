package main

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/ArmGo/internal/config"
	"github.com/cjeanneret/ArmGo/internal/hw/pwm"
	"github.com/cjeanneret/ArmGo/internal/logic/motion"
	"github.com/cjeanneret/ArmGo/internal/logic/servo"
	"github.com/cjeanneret/ArmGo/internal/logic/trajectory"
)

// ---------- validateCLIOverrides ----------

func TestValidateCLIOverrides_Valid(t *testing.T) {
	nan := math.NaN()
	cases := []struct {
		name  string
		axis  int
		angle float64
		duty  int64
	}{
		{"nothing", -1, nan, 0},
		{"query_axis", 3, nan, 0},
		{"angle", 0, 90, 0},
		{"negative_angle", 5, -10, 0},
		{"duty", 2, nan, 1500000},
		{"duty_at_period", 1, nan, int64(servo.Period)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.axis, tc.angle, tc.duty); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestValidateCLIOverrides_Invalid(t *testing.T) {
	nan := math.NaN()
	cases := []struct {
		name  string
		axis  int
		angle float64
		duty  int64
	}{
		{"axis_too_large", 6, nan, 0},
		{"axis_too_small", -2, nan, 0},
		{"angle_without_axis", -1, 90, 0},
		{"duty_without_axis", -1, nan, 1000},
		{"angle_and_duty", 0, 90, 1000},
		{"angle_inf", 0, math.Inf(1), 0},
		{"duty_negative", 0, nan, -1},
		{"duty_over_period", 0, nan, int64(servo.Period) + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.axis, tc.angle, tc.duty); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") = %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("port = %d, want 8080", w.port())
	}
}

func TestWebPortFlag_Ports(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{"8980", 8980, false},
		{"65535", 65535, false},
		{"0", 0, true},
		{"65536", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			err := w.Set(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Set(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if !tc.wantErr && w.port() != tc.want {
				t.Errorf("port = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{}
	if w.String() != "0" {
		t.Errorf("String() = %q, want 0", w.String())
	}
	w.val = 9000
	if w.String() != "9000" {
		t.Errorf("String() = %q, want 9000", w.String())
	}
}

// ---------- gateway selection ----------

func TestNewGatewayFromConfig_Mock(t *testing.T) {
	cfg := &config.Config{Gateway: config.GatewayConfig{Type: config.GatewayMock}}
	gw, err := newGatewayFromConfig(cfg)
	if err != nil {
		t.Fatalf("newGatewayFromConfig: %v", err)
	}
	if _, ok := gw.(*pwm.MockGateway); !ok {
		t.Errorf("gateway = %T, want *pwm.MockGateway", gw)
	}
}

func TestNewGatewayFromConfig_Unknown(t *testing.T) {
	cfg := &config.Config{Gateway: config.GatewayConfig{Type: "servo-hat"}}
	if _, err := newGatewayFromConfig(cfg); err == nil {
		t.Error("expected error for unknown gateway type")
	}
}

func TestNewGatewayFromConfig_MissingDevice(t *testing.T) {
	cfg := &config.Config{Gateway: config.GatewayConfig{Type: config.GatewayChardev, Device: "/nonexistent/robot"}}
	if _, err := newGatewayFromConfig(cfg); err == nil {
		t.Error("expected error opening a missing device")
	}
}

// ---------- runSweep ----------

type instantClock struct{ now time.Time }

func (c *instantClock) Now() time.Time        { return c.now }
func (c *instantClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func newTestController(t *testing.T) (*motion.Controller, *pwm.MockGateway) {
	t.Helper()
	gw := pwm.NewMockGateway()
	pacing := trajectory.DefaultPacing()
	pacing.Mode = trajectory.FixedStep
	ctrl, err := motion.NewController(gw, servo.DefaultAxes(), motion.Options{Pacing: pacing, Clock: &instantClock{}})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctrl, gw
}

func TestRunSweep(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		angle float64
		duty  int64
		want  string
	}{
		{"query", math.NaN(), 0, "elbow: angle 90.00 duty 900000 ns"},
		{"angle", 120, 0, "elbow: angle 120.00 duty 1200000 ns"},
		{"duty", math.NaN(), 1500000, "elbow: angle 150.00 duty 1500000 ns"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl, gw := newTestController(t)
			var out bytes.Buffer
			if err := runSweep(ctx, &out, ctrl, 2, tc.angle, tc.duty); err != nil {
				t.Fatalf("runSweep: %v", err)
			}
			if !strings.Contains(out.String(), tc.want) {
				t.Errorf("output = %q, want %q", out.String(), tc.want)
			}
			if tc.duty != 0 {
				if d, _ := gw.ReadDuty(2); d != time.Duration(tc.duty) {
					t.Errorf("device duty = %v", d)
				}
			}
		})
	}
}
