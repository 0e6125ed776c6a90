package servo

import (
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/ArmGo/internal/logic/trajectory"
)

// Period is the fixed PWM period every duty is measured in (50 Hz).
const Period = 20 * time.Millisecond

// NumAxes is the number of joints on the arm.
const NumAxes = 6

// Calibration relates the external angle unit to duty: duty_ns = angle*A + B.
type Calibration struct {
	A float64 `yaml:"a"` // nanoseconds per angle unit, must be non-zero
	B float64 `yaml:"b"` // nanoseconds at angle 0
}

// AngleToDuty converts an angle to a duty in nanoseconds.
func (c Calibration) AngleToDuty(angle float64) float64 {
	return angle*c.A + c.B
}

// DutyToAngle converts a duty in nanoseconds back to an angle.
func (c Calibration) DutyToAngle(dutyNs float64) float64 {
	return (dutyNs - c.B) / c.A
}

// State is the motion state of one axis.
type State int

const (
	Idle State = iota
	Moving
	Converged
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Moving:
		return "moving"
	case Converged:
		return "converged"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	for _, v := range []State{Idle, Moving, Converged, Aborted} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown axis state %q", text)
}

// Axis is one joint of the arm. Bounds and calibration are fixed once the axis
// is built; Duty always stays inside [MinDuty, MaxDuty].
type Axis struct {
	Index       int
	Name        string
	MinDuty     time.Duration
	MaxDuty     time.Duration
	DefaultDuty time.Duration
	Calibration Calibration

	Duty   time.Duration
	State  State
	seeded bool

	// path is only meaningful while State == Moving.
	path trajectory.Path
}

// Validate checks the static configuration of the axis.
func (a *Axis) Validate() error {
	switch {
	case a.Index < 0 || a.Index >= NumAxes:
		return &ConfigurationError{Axis: a.Index, Field: "index", Reason: fmt.Sprintf("must be between 0 and %d", NumAxes-1)}
	case a.MinDuty <= 0:
		return &ConfigurationError{Axis: a.Index, Field: "min_duty", Reason: "must be > 0"}
	case a.MaxDuty > Period:
		return &ConfigurationError{Axis: a.Index, Field: "max_duty", Reason: fmt.Sprintf("must be <= PWM period %v", Period)}
	case a.MinDuty > a.MaxDuty:
		return &ConfigurationError{Axis: a.Index, Field: "min_duty", Reason: "must be <= max_duty"}
	case a.Calibration.A == 0 || math.IsNaN(a.Calibration.A) || math.IsInf(a.Calibration.A, 0):
		return &ConfigurationError{Axis: a.Index, Field: "calibration.a", Reason: "must be a non-zero finite number"}
	case math.IsNaN(a.Calibration.B) || math.IsInf(a.Calibration.B, 0):
		return &ConfigurationError{Axis: a.Index, Field: "calibration.b", Reason: "must be finite"}
	}
	return nil
}

// Clamp restricts duty to the axis' safe mechanical range.
func (a *Axis) Clamp(duty time.Duration) time.Duration {
	if duty < a.MinDuty {
		return a.MinDuty
	}
	if duty > a.MaxDuty {
		return a.MaxDuty
	}
	return duty
}

// AngleToDuty converts an angle to a duty using the axis calibration.
// The result is not clamped; callers go through Clamp before writing.
func (a *Axis) AngleToDuty(angle float64) (time.Duration, error) {
	ns := a.Calibration.AngleToDuty(angle)
	if !representable(ns) {
		return 0, &ConfigurationError{Axis: a.Index, Field: "angle", Reason: fmt.Sprintf("%g is not representable as a duty", angle)}
	}
	return time.Duration(math.Round(ns)), nil
}

// DutyFromNs converts a raw nanosecond value, as typed by a user, to a duty.
// The result is not clamped.
func (a *Axis) DutyFromNs(ns float64) (time.Duration, error) {
	if !representable(ns) {
		return 0, &ConfigurationError{Axis: a.Index, Field: "duty", Reason: fmt.Sprintf("%g ns is not representable as a duty", ns)}
	}
	return time.Duration(math.Round(ns)), nil
}

func representable(ns float64) bool {
	return !math.IsNaN(ns) && !math.IsInf(ns, 0) && math.Abs(ns) <= float64(math.MaxInt64/2)
}

// DutyToAngle converts a duty to an angle using the axis calibration.
func (a *Axis) DutyToAngle(duty time.Duration) float64 {
	return a.Calibration.DutyToAngle(float64(duty.Nanoseconds()))
}

// Angle returns the current commanded angle.
func (a *Axis) Angle() float64 {
	return a.DutyToAngle(a.Duty)
}

// Seed sets the current duty from a device read. A read of 0 means the
// channel was never set, so the configured default is used instead.
func (a *Axis) Seed(read time.Duration) {
	if read == 0 {
		read = a.DefaultDuty
	}
	a.Duty = a.Clamp(read)
	a.seeded = true
}

// Seeded reports whether the duty has been refreshed from the device.
func (a *Axis) Seeded() bool {
	return a.seeded
}

// Begin hands a new path to the axis and marks it moving.
func (a *Axis) Begin(p trajectory.Path) {
	a.path = p
	a.State = Moving
}

// Path returns the active path, if any.
func (a *Axis) Path() (*trajectory.Path, bool) {
	if a.State != Moving {
		return nil, false
	}
	return &a.path, true
}

// Release drops the active path and records how the motion ended.
func (a *Axis) Release(end State) {
	a.path = trajectory.Path{}
	a.State = end
}

// DefaultAxes returns the reference six-axis arm.
func DefaultAxes() []Axis {
	const defDuty = 900 * time.Microsecond
	cal := Calibration{A: 10000, B: 0}
	return []Axis{
		{Index: 0, Name: "base", MinDuty: 600 * time.Microsecond, MaxDuty: 2400 * time.Microsecond, DefaultDuty: defDuty, Calibration: cal},
		{Index: 1, Name: "shoulder", MinDuty: 600 * time.Microsecond, MaxDuty: 2600 * time.Microsecond, DefaultDuty: defDuty, Calibration: cal},
		{Index: 2, Name: "elbow", MinDuty: 200 * time.Microsecond, MaxDuty: 2400 * time.Microsecond, DefaultDuty: defDuty, Calibration: cal},
		{Index: 3, Name: "wrist1", MinDuty: 200 * time.Microsecond, MaxDuty: 2400 * time.Microsecond, DefaultDuty: defDuty, Calibration: cal},
		{Index: 4, Name: "wrist2", MinDuty: 200 * time.Microsecond, MaxDuty: 2400 * time.Microsecond, DefaultDuty: defDuty, Calibration: cal},
		{Index: 5, Name: "claw", MinDuty: 200 * time.Microsecond, MaxDuty: 2400 * time.Microsecond, DefaultDuty: defDuty, Calibration: cal},
	}
}
