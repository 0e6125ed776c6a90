package trajectory

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultEpsilon is the convergence tolerance of the reference arm.
const DefaultEpsilon = 100 * time.Nanosecond

// ErrSettled is returned by New when start and target are already within
// epsilon of each other; such a path never starts moving.
var ErrSettled = errors.New("trajectory: target already reached")

// Mode selects how progress advances each tick.
type Mode int

const (
	// TimeDriven advances progress by elapsed wall time times the path rate.
	TimeDriven Mode = iota
	// FixedStep advances progress by a constant increment per tick.
	FixedStep
)

func (m Mode) String() string {
	switch m {
	case TimeDriven:
		return "time"
	case FixedStep:
		return "step"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a configuration name to a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "time", "time_driven":
		return TimeDriven, nil
	case "step", "fixed_step":
		return FixedStep, nil
	default:
		return TimeDriven, fmt.Errorf("unknown pacing mode %q", name)
	}
}

// Pacing holds the per-deployment progress advance policy.
type Pacing struct {
	Mode Mode
	// DutyStep is the duty change per tick a linear path makes in FixedStep mode.
	DutyStep time.Duration
	// DurationScale is the wall time spent per nanosecond of duty delta in
	// TimeDriven mode: a path lasts |target-start| * DurationScale.
	DurationScale time.Duration
	// Epsilon is the convergence tolerance.
	Epsilon time.Duration
}

// DefaultPacing mirrors the reference sweep tool: 4 us duty steps and
// 2.5 us of motion per ns of delta (a 400 us/s sweep speed).
func DefaultPacing() Pacing {
	return Pacing{
		Mode:          TimeDriven,
		DutyStep:      4 * time.Microsecond,
		DurationScale: 2500 * time.Nanosecond,
		Epsilon:       DefaultEpsilon,
	}
}

// Validate checks that the policy can advance a path.
func (pc Pacing) Validate() error {
	if pc.Epsilon < 0 {
		return fmt.Errorf("epsilon must be >= 0, got %v", pc.Epsilon)
	}
	switch pc.Mode {
	case FixedStep:
		if pc.DutyStep <= 0 {
			return fmt.Errorf("duty step must be > 0, got %v", pc.DutyStep)
		}
	case TimeDriven:
		if pc.DurationScale <= 0 {
			return fmt.Errorf("duration scale must be > 0, got %v", pc.DurationScale)
		}
	default:
		return fmt.Errorf("unknown pacing mode %d", int(pc.Mode))
	}
	return nil
}

// Duration returns the nominal wall time a path of the given delta lasts in
// TimeDriven mode.
func (pc Pacing) Duration(delta time.Duration) time.Duration {
	return time.Duration(math.Abs(float64(delta)) * float64(pc.DurationScale))
}

// Path is one axis' in-flight single-segment motion. The zero value is an
// empty path; use New to build one.
type Path struct {
	start   float64
	target  float64
	easing  Easing
	norm    float64
	mode    Mode
	step    float64 // progress per tick
	rate    float64 // progress per second
	epsilon float64

	progress float64
	ticks    int
}

// New builds a path from start to target. Target must already be clamped to
// the axis range by the caller.
func New(start, target time.Duration, easing Easing, pacing Pacing) (Path, error) {
	delta := math.Abs(float64(target - start))
	if delta <= float64(pacing.Epsilon) {
		return Path{}, ErrSettled
	}
	p := Path{
		start:   float64(start),
		target:  float64(target),
		easing:  easing,
		norm:    1,
		mode:    pacing.Mode,
		epsilon: float64(pacing.Epsilon),
	}
	// Bounded easings are scaled so that p=1 lands on target. Log has a zero
	// image at 1 and stays raw.
	if n := easing.Ease(1); n != 0 && !math.IsNaN(n) && !math.IsInf(n, 0) {
		p.norm = n
	}
	switch pacing.Mode {
	case FixedStep:
		p.step = float64(pacing.DutyStep) / delta
	default:
		p.rate = 1 / (delta * pacing.DurationScale.Seconds())
	}
	return p, nil
}

// Start returns the duty the path started from.
func (p *Path) Start() time.Duration { return time.Duration(p.start) }

// Target returns the duty the path converges to.
func (p *Path) Target() time.Duration { return time.Duration(p.target) }

// Easing returns the velocity profile of the path.
func (p *Path) Easing() Easing { return p.easing }

// Progress returns the raw completion fraction.
func (p *Path) Progress() float64 { return p.progress }

// Rate returns the progress per second of a time-driven path.
func (p *Path) Rate() float64 { return p.rate }

// Ticks returns how many times the path has been advanced.
func (p *Path) Ticks() int { return p.ticks }

// Advance moves progress forward by one tick. elapsed is only used in
// TimeDriven mode. A path that cannot make progress is reported as diverged.
func (p *Path) Advance(elapsed time.Duration) error {
	var inc float64
	switch p.mode {
	case FixedStep:
		inc = p.step
		if !(inc > 0) || math.IsInf(inc, 0) {
			return p.diverged(0, fmt.Sprintf("progress step %g cannot advance", inc))
		}
	default:
		if !(p.rate > 0) || math.IsInf(p.rate, 0) {
			return p.diverged(0, fmt.Sprintf("progress rate %g cannot advance", p.rate))
		}
		if elapsed < 0 {
			elapsed = 0
		}
		inc = p.rate * elapsed.Seconds()
	}
	p.progress += inc
	p.ticks++
	return nil
}

// NextDuty computes the duty for the current progress.
func (p *Path) NextDuty() (time.Duration, error) {
	f := p.easing.Ease(clamp01(p.progress)) / p.norm
	d := p.start + (p.target-p.start)*f
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, p.diverged(0, fmt.Sprintf("%s easing undefined at progress %g", p.easing, p.progress))
	}
	return time.Duration(math.Round(d)), nil
}

// Converged reports whether duty is within epsilon of the target.
func (p *Path) Converged(duty time.Duration) bool {
	return math.Abs(p.target-float64(duty)) <= p.epsilon
}

// Settle checks the duty just written against the path. It returns true when
// the path converged, or a DivergenceError when progress left [0,1] without
// converging.
func (p *Path) Settle(duty time.Duration) (bool, error) {
	if p.Converged(duty) {
		return true, nil
	}
	if p.progress < 0 || p.progress > 1 {
		return false, p.diverged(duty, "progress left [0,1] before convergence")
	}
	return false, nil
}

// TickBound returns the worst-case number of ticks the path needs to reach
// progress 1, assuming every tick lasts at least tick in TimeDriven mode.
func (p *Path) TickBound(tick time.Duration) int {
	switch p.mode {
	case FixedStep:
		return int(math.Ceil(1/p.step)) + 1
	default:
		if tick <= 0 {
			return math.MaxInt
		}
		return int(math.Ceil(1/(p.rate*tick.Seconds()))) + 1
	}
}

func (p *Path) diverged(duty time.Duration, reason string) *DivergenceError {
	return &DivergenceError{
		Progress: p.progress,
		Duty:     duty,
		Target:   time.Duration(p.target),
		Reason:   reason,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DivergenceError reports a path that can no longer converge.
type DivergenceError struct {
	Progress float64
	Duty     time.Duration
	Target   time.Duration
	Reason   string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("path diverged at progress %.4f (duty %d ns, target %d ns): %s",
		e.Progress, e.Duty.Nanoseconds(), e.Target.Nanoseconds(), e.Reason)
}
