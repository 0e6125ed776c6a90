package motion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/logic/servo"
	"github.com/cjeanneret/ArmGo/internal/logic/trajectory"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/multierr"
)

// Gateway operations named in DeviceError.
const (
	OpRead    = "read"
	OpWrite   = "write"
	OpSync    = "sync"
	OpEnable  = "enable"
	OpDisable = "disable"
)

const (
	kindSingle = "single"
	kindMulti  = "multi"
)

// Target is a requested duty for one axis.
type Target struct {
	Axis int
	Duty time.Duration
}

// RunState is the overall state of a sweep.
type RunState int

const (
	Running RunState = iota
	Done
	Failed
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("runstate(%d)", int(s))
	}
}

func (s RunState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RunState) UnmarshalText(text []byte) error {
	for _, v := range []RunState{Running, Done, Failed} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", text)
}

// AxisReport is the final situation of one axis after a sweep.
type AxisReport struct {
	Index  int           `json:"index"`
	Name   string        `json:"name"`
	State  servo.State   `json:"state"`
	Duty   time.Duration `json:"duty_ns"`
	Writes int           `json:"writes"`
}

// Report summarises a sweep. Duty is the last successfully written duty of
// every axis, so a caller can resume, abort or re-home after a failure.
type Report struct {
	State      RunState      `json:"state"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	Ticks      int           `json:"ticks"`
	FailedAxis int           `json:"failed_axis"`
	Axes       []AxisReport  `json:"axes"`
}

// DeviceError reports a gateway failure during a sweep. The axis keeps Duty,
// the last value successfully written; nothing is retried or rolled back.
type DeviceError struct {
	Axis int
	Op   string
	Duty time.Duration
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("axis %d: device %s failed (last good duty %d ns): %v", e.Axis, e.Op, e.Duty.Nanoseconds(), e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// AxisError attaches the axis to a path failure such as a divergence.
type AxisError struct {
	Axis int
	Err  error
}

func (e *AxisError) Error() string { return fmt.Sprintf("axis %d: %v", e.Axis, e.Err) }

func (e *AxisError) Unwrap() error { return e.Err }

// Sweep moves one axis from its current duty to target. It returns nil when
// the axis is already within epsilon of the clamped target, without writing.
func (c *Controller) Sweep(ctx context.Context, index int, target time.Duration) error {
	_, err := c.run(ctx, kindSingle, []Target{{Axis: index, Duty: target}})
	return err
}

// SweepAngle is Sweep with the target expressed in the axis angle unit.
func (c *Controller) SweepAngle(ctx context.Context, index int, angle float64) error {
	t, err := c.AngleTarget(index, angle)
	if err != nil {
		return err
	}
	return c.Sweep(ctx, index, t.Duty)
}

// AngleTarget converts an angle into a duty target for an axis.
func (c *Controller) AngleTarget(index int, angle float64) (Target, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, err := c.axis(index)
	if err != nil {
		return Target{}, err
	}
	d, err := a.AngleToDuty(angle)
	if err != nil {
		return Target{}, err
	}
	return Target{Axis: index, Duty: d}, nil
}

// SweepAll moves several axes concurrently in one control loop until every
// axis converged or a device error aborts the motion.
func (c *Controller) SweepAll(ctx context.Context, targets []Target) (*Report, error) {
	return c.run(ctx, kindMulti, targets)
}

func (c *Controller) run(ctx context.Context, kind string, targets []Target) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Configuration errors are raised before any device I/O.
	order := make([]Target, len(targets))
	copy(order, targets)
	sort.Slice(order, func(i, j int) bool { return order[i].Axis < order[j].Axis })
	for i, t := range order {
		if _, err := c.axis(t.Axis); err != nil {
			return nil, err
		}
		if i > 0 && order[i-1].Axis == t.Axis {
			return nil, &servo.ConfigurationError{Axis: t.Axis, Field: "target", Reason: "axis targeted twice"}
		}
	}

	ctx, span := c.tracer.Start(ctx, "motion.sweep")
	defer span.End()
	span.SetAttributes(
		attribute.String("sweep.kind", kind),
		attribute.Int("sweep.axes", len(order)),
		attribute.String("sweep.easing", c.easing.String()),
		attribute.String("sweep.pacing", c.pacing.Mode.String()),
	)

	report := &Report{State: Running, FailedAxis: -1}
	writes := make(map[int]int, len(order))
	start := c.clock.Now()

	finish := func(err error) (*Report, error) {
		report.Elapsed = c.clock.Now().Sub(start)
		result := "done"
		if err != nil {
			result = "failed"
			report.State = Failed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			report.State = Done
		}
		for _, a := range c.axes {
			report.Axes = append(report.Axes, AxisReport{
				Index: a.Index, Name: a.Name, State: a.State, Duty: a.Duty, Writes: writes[a.Index],
			})
		}
		span.SetAttributes(attribute.Int("sweep.ticks", report.Ticks), attribute.String("sweep.state", report.State.String()))
		c.rec.ObserveSweep(kind, result, report.Elapsed, report.Ticks)
		debug.Sweep(len(order), report.Ticks, report.Elapsed, report.State.String())
		return report, err
	}

	abort := func(axis int, err error) (*Report, error) {
		for i := range c.axes {
			if c.axes[i].State == servo.Moving {
				c.axes[i].Release(servo.Aborted)
			}
		}
		report.FailedAxis = axis
		debug.Error(err)
		return finish(err)
	}

	// States left over from an earlier sweep are not reported again.
	for i := range c.axes {
		c.axes[i].State = servo.Idle
	}

	moving := 0
	for _, t := range order {
		a, _ := c.axis(t.Axis)
		if err := c.seed(a); err != nil {
			return abort(a.Index, err)
		}
		goal := a.Clamp(t.Duty)
		p, err := trajectory.New(a.Duty, goal, c.easing, c.pacing)
		if errors.Is(err, trajectory.ErrSettled) {
			debug.Verbose("Axis %s already at %d ns, nothing to do", a.Name, a.Duty.Nanoseconds())
			continue
		}
		if err != nil {
			return abort(a.Index, &AxisError{Axis: a.Index, Err: err})
		}
		if goal != t.Duty {
			debug.Live("Axis %s: target %d ns clamped to %d ns", a.Name, t.Duty.Nanoseconds(), goal.Nanoseconds())
		}
		a.Begin(p)
		debug.Move(a.Name, a.Duty, goal)
		moving++
	}

	var diverged error
	last := start
	for moving > 0 {
		if err := ctx.Err(); err != nil {
			return abort(-1, fmt.Errorf("sweep cancelled: %w", err))
		}
		now := c.clock.Now()
		elapsed := now.Sub(last)
		last = now
		report.Ticks++

		for _, t := range order {
			a, _ := c.axis(t.Axis)
			p, ok := a.Path()
			if !ok {
				continue
			}

			duty, err := c.step(p, a, elapsed)
			if err == nil {
				if werr := c.gw.WriteDuty(a.Index, duty); werr != nil {
					c.rec.DeviceError(a.Index, OpWrite)
					return abort(a.Index, &DeviceError{Axis: a.Index, Op: OpWrite, Duty: a.Duty, Err: werr})
				}
				a.Duty = duty
				writes[a.Index]++
				c.rec.SetDuty(a.Index, duty)
				if serr := c.gw.Sync(a.Index); serr != nil {
					c.rec.DeviceError(a.Index, OpSync)
					return abort(a.Index, &DeviceError{Axis: a.Index, Op: OpSync, Duty: a.Duty, Err: serr})
				}
				debug.Tick(report.Ticks, a.Name, p.Progress(), duty)

				var done bool
				done, err = p.Settle(duty)
				if done {
					debug.Converged(a.Name, duty, p.Ticks())
					a.Release(servo.Converged)
					moving--
					continue
				}
			}
			if err != nil {
				c.rec.Divergence(a.Index)
				aerr := &AxisError{Axis: a.Index, Err: err}
				if kind == kindSingle {
					return abort(a.Index, aerr)
				}
				debug.Error(aerr)
				a.Release(servo.Aborted)
				moving--
				if diverged == nil {
					report.FailedAxis = a.Index
				}
				diverged = multierr.Append(diverged, aerr)
			}
		}

		if moving > 0 {
			c.clock.Sleep(c.tick)
		}
	}

	return finish(diverged)
}

// step advances a path by one tick and returns the clamped duty to write.
func (c *Controller) step(p *trajectory.Path, a *servo.Axis, elapsed time.Duration) (time.Duration, error) {
	if err := p.Advance(elapsed); err != nil {
		return 0, err
	}
	duty, err := p.NextDuty()
	if err != nil {
		return 0, err
	}
	return a.Clamp(duty), nil
}
