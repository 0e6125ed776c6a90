// Package console is an interactive line interface to the arm, for bench
// testing without the web UI.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/logic/motion"
	"github.com/google/shlex"
	"go.uber.org/multierr"
)

// ErrQuit is returned by Exec when the user asked to leave.
var ErrQuit = errors.New("quit")

const help = `commands:
  state                       show every axis
  get <axis>                  show one axis
  angle <axis> <angle>        sweep one axis to an angle
  duty <axis> <ns>            sweep one axis to a duty in nanoseconds
  jog <axis> <delta>          sweep one axis by a relative angle
  move <axis>=<angle> ...     sweep several axes together
  enable <axis>|all           turn PWM output on
  disable <axis>|all          turn PWM output off
  help                        this text
  quit                        disable every axis and leave
<axis> is an index (0-5) or a name such as "base" or "claw".`

// Console reads commands line by line and drives a controller.
type Console struct {
	ctrl   *motion.Controller
	in     io.Reader
	out    io.Writer
	prompt string
}

// New builds a console over the given streams.
func New(ctrl *motion.Controller, in io.Reader, out io.Writer) *Console {
	return &Console{ctrl: ctrl, in: in, out: out, prompt: "arm> "}
}

// Run processes commands until EOF, quit or context cancellation. Every axis
// is disabled on the way out.
func (c *Console) Run(ctx context.Context) error {
	// Cancelled on return so the reader goroutine never outlives Run.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	var err error
loop:
	for {
		fmt.Fprint(c.out, c.prompt)
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case rerr := <-readErr:
			err = rerr
			break loop
		case line := <-lines:
			if xerr := c.Exec(ctx, line); xerr != nil {
				if errors.Is(xerr, ErrQuit) {
					break loop
				}
				fmt.Fprintf(c.out, "error: %v\n", xerr)
			}
		}
	}
	fmt.Fprintln(c.out)

	if derr := c.ctrl.DisableAll(); derr != nil {
		debug.Error(derr)
		err = multierr.Append(err, derr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Exec runs a single command line.
func (c *Console) Exec(ctx context.Context, line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse %q: %w", line, err)
	}
	if len(args) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	debug.Verbose("console: %s %v", cmd, args)

	switch cmd {
	case "help", "?":
		fmt.Fprintln(c.out, help)
		return nil
	case "quit", "exit", "q":
		return ErrQuit
	case "state":
		return c.state(ctx)
	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: get <axis>")
		}
		return c.get(args[0])
	case "angle", "duty", "jog":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s <axis> <value>", cmd)
		}
		return c.single(ctx, cmd, args[0], args[1])
	case "move":
		if len(args) == 0 {
			return fmt.Errorf("usage: move <axis>=<angle> ...")
		}
		return c.move(ctx, args)
	case "enable", "disable":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <axis>|all", cmd)
		}
		return c.power(cmd == "enable", args[0])
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

// resolve maps an axis index or name to its index.
func (c *Console) resolve(s string) (int, error) {
	if i, err := strconv.Atoi(s); err == nil {
		if _, err := c.ctrl.Axis(i); err != nil {
			return 0, err
		}
		return i, nil
	}
	for _, a := range c.ctrl.Axes() {
		if strings.EqualFold(a.Name, s) {
			return a.Index, nil
		}
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

func (c *Console) state(ctx context.Context) error {
	states, err := c.ctrl.GetState(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AXIS\tNAME\tANGLE\tDUTY (ns)\tENABLED")
	for _, s := range states {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%d\t%t\n", s.Index, s.Name, s.Angle, s.Duty.Nanoseconds(), s.Enabled)
	}
	return tw.Flush()
}

func (c *Console) get(name string) error {
	i, err := c.resolve(name)
	if err != nil {
		return err
	}
	a, err := c.ctrl.Axis(i)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: angle %.2f duty %d ns [%d, %d] %s\n",
		a.Name, a.Angle(), a.Duty.Nanoseconds(), a.MinDuty.Nanoseconds(), a.MaxDuty.Nanoseconds(), a.State)
	return nil
}

func (c *Console) single(ctx context.Context, cmd, name, value string) error {
	i, err := c.resolve(name)
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s value %q", cmd, value)
	}
	switch cmd {
	case "duty":
		a, _ := c.ctrl.Axis(i)
		duty, derr := a.DutyFromNs(v)
		if derr != nil {
			return derr
		}
		err = c.ctrl.Sweep(ctx, i, duty)
	case "jog":
		// Seed first so the jog is relative to the device position.
		if err = c.ctrl.Seed(ctx); err != nil {
			return err
		}
		a, _ := c.ctrl.Axis(i)
		err = c.ctrl.SweepAngle(ctx, i, a.Angle()+v)
	default:
		err = c.ctrl.SweepAngle(ctx, i, v)
	}
	if err != nil {
		return err
	}
	return c.get(name)
}

func (c *Console) move(ctx context.Context, args []string) error {
	targets := make([]motion.Target, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("expected <axis>=<angle>, got %q", arg)
		}
		i, err := c.resolve(name)
		if err != nil {
			return err
		}
		angle, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid angle %q for %s", value, name)
		}
		t, err := c.ctrl.AngleTarget(i, angle)
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}
	report, err := c.ctrl.SweepAll(ctx, targets)
	if report != nil {
		fmt.Fprintf(c.out, "%s after %d ticks (%v)\n", report.State, report.Ticks, report.Elapsed)
	}
	return err
}

func (c *Console) power(on bool, name string) error {
	if strings.EqualFold(name, "all") {
		if on {
			return c.ctrl.EnableAll()
		}
		return c.ctrl.DisableAll()
	}
	i, err := c.resolve(name)
	if err != nil {
		return err
	}
	if on {
		return c.ctrl.Enable(i)
	}
	return c.ctrl.Disable(i)
}
