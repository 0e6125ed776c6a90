package motion

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/hw/pwm"
	"github.com/cjeanneret/ArmGo/internal/logic/servo"
	"github.com/cjeanneret/ArmGo/internal/logic/trajectory"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
)

// DefaultTick is the inter-tick delay of the control loop.
const DefaultTick = 10 * time.Millisecond

// Clock abstracts wall time so the control loop can be driven by tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Recorder receives sweep telemetry. *observability.Collector satisfies it.
type Recorder interface {
	ObserveSweep(kind, result string, elapsed time.Duration, ticks int)
	DeviceError(axis int, op string)
	Divergence(axis int)
	SetDuty(axis int, duty time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveSweep(string, string, time.Duration, int) {}
func (noopRecorder) DeviceError(int, string)                         {}
func (noopRecorder) Divergence(int)                                  {}
func (noopRecorder) SetDuty(int, time.Duration)                      {}

// Options tunes a Controller. Zero values select the defaults.
type Options struct {
	Pacing   trajectory.Pacing
	Easing   trajectory.Easing
	Tick     time.Duration
	Clock    Clock
	Recorder Recorder
}

// Controller owns the arm: its axes and the gateway that drives them.
// It is the intermediate layer between callers (CLI, console, web) and the
// device. Sweeps are serialised; the gateway is never shared mid-sweep.
type Controller struct {
	mu      sync.Mutex
	gw      pwm.Gateway
	axes    []servo.Axis // sorted by index
	byIndex map[int]int
	enabled map[int]bool

	pacing trajectory.Pacing
	easing trajectory.Easing
	tick   time.Duration
	clock  Clock
	rec    Recorder
	tracer trace.Tracer
}

// NewController validates the axes and pacing and builds a controller.
// Axes a pwm.Wiring gateway does not drive are left out.
func NewController(gw pwm.Gateway, axes []servo.Axis, opts Options) (*Controller, error) {
	if gw == nil {
		return nil, fmt.Errorf("motion: nil gateway")
	}
	if len(axes) == 0 {
		return nil, fmt.Errorf("motion: no axes configured")
	}
	if opts.Pacing == (trajectory.Pacing{}) {
		opts.Pacing = trajectory.DefaultPacing()
	}
	if err := opts.Pacing.Validate(); err != nil {
		return nil, fmt.Errorf("motion: %w", err)
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}

	if w, ok := gw.(pwm.Wiring); ok {
		wired := make([]servo.Axis, 0, len(axes))
		for _, a := range axes {
			if !w.Wired(a.Index) {
				debug.Info("Axis %d (%s) has no output on this gateway, skipped", a.Index, a.Name)
				continue
			}
			wired = append(wired, a)
		}
		if len(wired) == 0 {
			return nil, fmt.Errorf("motion: gateway wires none of the configured axes")
		}
		axes = wired
	}

	c := &Controller{
		gw:      gw,
		axes:    make([]servo.Axis, len(axes)),
		byIndex: make(map[int]int, len(axes)),
		enabled: make(map[int]bool, len(axes)),
		pacing:  opts.Pacing,
		easing:  opts.Easing,
		tick:    opts.Tick,
		clock:   opts.Clock,
		rec:     opts.Recorder,
		tracer:  otel.Tracer("github.com/cjeanneret/ArmGo/internal/logic/motion"),
	}
	copy(c.axes, axes)
	sort.Slice(c.axes, func(i, j int) bool { return c.axes[i].Index < c.axes[j].Index })
	for i := range c.axes {
		a := &c.axes[i]
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byIndex[a.Index]; dup {
			return nil, &servo.ConfigurationError{Axis: a.Index, Field: "index", Reason: "configured twice"}
		}
		c.byIndex[a.Index] = i
	}
	return c, nil
}

// Pacing returns the progress policy in use.
func (c *Controller) Pacing() trajectory.Pacing { return c.pacing }

// Tick returns the inter-tick delay.
func (c *Controller) Tick() time.Duration { return c.tick }

func (c *Controller) axis(index int) (*servo.Axis, error) {
	i, ok := c.byIndex[index]
	if !ok {
		return nil, &servo.ConfigurationError{Axis: index, Field: "index", Reason: "no such axis"}
	}
	return &c.axes[i], nil
}

// Axis returns a snapshot of one axis.
func (c *Controller) Axis(index int) (servo.Axis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, err := c.axis(index)
	if err != nil {
		return servo.Axis{}, err
	}
	return *a, nil
}

// Axes returns a snapshot of every axis in index order.
func (c *Controller) Axes() []servo.Axis {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]servo.Axis, len(c.axes))
	copy(out, c.axes)
	return out
}

// seed refreshes an axis duty from the device the first time it is used.
func (c *Controller) seed(a *servo.Axis) error {
	if a.Seeded() {
		return nil
	}
	d, err := c.gw.ReadDuty(a.Index)
	if err != nil {
		c.rec.DeviceError(a.Index, OpRead)
		return &DeviceError{Axis: a.Index, Op: OpRead, Duty: a.Duty, Err: err}
	}
	a.Seed(d)
	debug.Verbose("Axis %s seeded at %d ns (device read %d ns)", a.Name, a.Duty.Nanoseconds(), d.Nanoseconds())
	return nil
}

// Seed refreshes every axis from the device, applying the default-duty
// fallback to unset channels.
func (c *Controller) Seed(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.axes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.seed(&c.axes[i]); err != nil {
			return err
		}
	}
	return nil
}

// Enable turns on the PWM output of one axis.
func (c *Controller) Enable(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enable(index)
}

func (c *Controller) enable(index int) error {
	if _, err := c.axis(index); err != nil {
		return err
	}
	if err := c.gw.Enable(index); err != nil {
		c.rec.DeviceError(index, OpEnable)
		return &DeviceError{Axis: index, Op: OpEnable, Err: err}
	}
	c.enabled[index] = true
	return nil
}

// Disable turns off the PWM output of one axis; the servo goes limp.
func (c *Controller) Disable(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disable(index)
}

func (c *Controller) disable(index int) error {
	if _, err := c.axis(index); err != nil {
		return err
	}
	if err := c.gw.Disable(index); err != nil {
		c.rec.DeviceError(index, OpDisable)
		return &DeviceError{Axis: index, Op: OpDisable, Err: err}
	}
	c.enabled[index] = false
	return nil
}

// EnableAll enables every axis, attempting all of them even if some fail.
func (c *Controller) EnableAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	for _, a := range c.axes {
		err = multierr.Append(err, c.enable(a.Index))
	}
	return err
}

// DisableAll puts the arm in its safe state, attempting every axis even if
// some fail. Callers use it after an aborted motion.
func (c *Controller) DisableAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	for _, a := range c.axes {
		err = multierr.Append(err, c.disable(a.Index))
	}
	return err
}

// AxisState is one record of the arm's full state.
type AxisState struct {
	Index   int           `json:"index"`
	Name    string        `json:"name"`
	Angle   float64       `json:"angle"`
	Duty    time.Duration `json:"duty_ns"`
	Enabled bool          `json:"enabled"`
}

// GetState returns the full state of the arm, seeding axes as needed.
func (c *Controller) GetState(ctx context.Context) ([]AxisState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AxisState, 0, len(c.axes))
	for i := range c.axes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := &c.axes[i]
		if err := c.seed(a); err != nil {
			return nil, err
		}
		out = append(out, AxisState{
			Index:   a.Index,
			Name:    a.Name,
			Angle:   a.Angle(),
			Duty:    a.Duty,
			Enabled: c.enabled[a.Index],
		})
	}
	return out, nil
}

// SetState applies a full state: enabled axes are enabled and swept to their
// angle together, disabled axes are disabled once the motion is over. Every
// record is checked before the device is touched.
func (c *Controller) SetState(ctx context.Context, states []AxisState) (*Report, error) {
	targets := make([]Target, 0, len(states))
	var disable []int
	c.mu.Lock()
	for _, s := range states {
		a, err := c.axis(s.Index)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		if !s.Enabled {
			disable = append(disable, s.Index)
			continue
		}
		duty, err := a.AngleToDuty(s.Angle)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		targets = append(targets, Target{Axis: s.Index, Duty: duty})
	}
	for _, t := range targets {
		if err := c.enable(t.Axis); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	c.mu.Unlock()

	report, err := c.SweepAll(ctx, targets)
	if err != nil {
		return report, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var derr error
	for _, idx := range disable {
		derr = multierr.Append(derr, c.disable(idx))
	}
	return report, derr
}
