package trajectory

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestEase(t *testing.T) {
	tests := []struct {
		e    Easing
		p    float64
		want float64
	}{
		{Linear, 0, 0},
		{Linear, 0.25, 0.25},
		{Linear, 1, 1},
		{Log, 1, 0},
		{Log, math.E, 1},
		{ExponentialDecay, 0, 0},
		{ExponentialDecay, 0.5, 1 - math.Exp(-1)},
		{SineSquared, 0, 0},
		{SineSquared, 1, math.Pow(math.Sin(1.6), 2)},
	}
	for _, tt := range tests {
		if got := tt.e.Ease(tt.p); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%s.Ease(%v) = %v, want %v", tt.e, tt.p, got, tt.want)
		}
	}
	if !math.IsInf(Log.Ease(0), -1) {
		t.Error("Log.Ease(0) should be -Inf")
	}
	if !math.IsNaN(Easing(42).Ease(0.5)) {
		t.Error("unknown easing should be NaN")
	}
}

func TestParseEasing(t *testing.T) {
	tests := []struct {
		in      string
		want    Easing
		wantErr bool
	}{
		{"", Linear, false},
		{"linear", Linear, false},
		{"LOG", Log, false},
		{"exp", ExponentialDecay, false},
		{"exponential_decay", ExponentialDecay, false},
		{" sine ", SineSquared, false},
		{"bounce", Linear, true},
	}
	for _, tt := range tests {
		got, err := ParseEasing(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEasing(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseEasing(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, e := range Easings() {
		b, _ := e.MarshalText()
		var back Easing
		if err := back.UnmarshalText(b); err != nil || back != e {
			t.Errorf("text round trip of %v = %v, %v", e, back, err)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("step"); err != nil || m != FixedStep {
		t.Errorf("ParseMode(step) = %v, %v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != TimeDriven {
		t.Errorf("ParseMode(\"\") = %v, %v", m, err)
	}
	if _, err := ParseMode("warp"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestPacingValidate(t *testing.T) {
	if err := DefaultPacing().Validate(); err != nil {
		t.Fatalf("DefaultPacing invalid: %v", err)
	}
	bad := []Pacing{
		{Mode: FixedStep},
		{Mode: TimeDriven},
		{Mode: TimeDriven, DurationScale: 1, Epsilon: -1},
		{Mode: Mode(7), DurationScale: 1},
	}
	for _, pc := range bad {
		if err := pc.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", pc)
		}
	}
	if d := DefaultPacing().Duration(-400 * time.Microsecond); d != time.Second {
		t.Errorf("Duration(400us) = %v, want 1s", d)
	}
}

func TestNew_Settled(t *testing.T) {
	_, err := New(time.Millisecond, time.Millisecond+DefaultEpsilon, Linear, DefaultPacing())
	if !errors.Is(err, ErrSettled) {
		t.Errorf("New within epsilon = %v, want ErrSettled", err)
	}
	if _, err := New(time.Millisecond, time.Millisecond+DefaultEpsilon+1, Linear, DefaultPacing()); err != nil {
		t.Errorf("New just outside epsilon: %v", err)
	}
}

func TestPath_TimeDrivenRate(t *testing.T) {
	p, err := New(900*time.Microsecond, 1300*time.Microsecond, Linear, DefaultPacing())
	if err != nil {
		t.Fatal(err)
	}
	// 400 us at 2.5 us/ns lasts one second.
	if math.Abs(p.Rate()-1) > 1e-12 {
		t.Errorf("Rate() = %v, want 1", p.Rate())
	}

	if err := p.Advance(0); err != nil {
		t.Fatal(err)
	}
	d, _ := p.NextDuty()
	if d != 900*time.Microsecond {
		t.Errorf("duty at progress 0 = %v", d)
	}

	if err := p.Advance(500 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	d, _ = p.NextDuty()
	if d != 1100*time.Microsecond {
		t.Errorf("duty at progress 0.5 = %v", d)
	}
	if done, err := p.Settle(d); done || err != nil {
		t.Errorf("Settle mid-path = %v, %v", done, err)
	}

	// Overshooting wall time still lands on target.
	if err := p.Advance(2 * time.Second); err != nil {
		t.Fatal(err)
	}
	d, _ = p.NextDuty()
	if d != p.Target() {
		t.Errorf("duty past the end = %v, want %v", d, p.Target())
	}
	if done, err := p.Settle(d); !done || err != nil {
		t.Errorf("Settle at target = %v, %v", done, err)
	}
	if p.Ticks() != 3 {
		t.Errorf("Ticks() = %d, want 3", p.Ticks())
	}
}

func TestPath_FixedStepDescending(t *testing.T) {
	pc := DefaultPacing()
	pc.Mode = FixedStep
	pc.DutyStep = 100 * time.Microsecond
	p, err := New(1500*time.Microsecond, 1100*time.Microsecond, Linear, pc)
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Duration{1400, 1300, 1200, 1100}
	for i, w := range want {
		if err := p.Advance(time.Hour); err != nil {
			t.Fatal(err)
		}
		d, _ := p.NextDuty()
		if d != w*time.Microsecond {
			t.Errorf("step %d duty = %v, want %vus", i, d, w)
		}
	}
	if bound := p.TickBound(0); bound < len(want) {
		t.Errorf("TickBound = %d, below actual %d", bound, len(want))
	}
}

func TestPath_NormalizedEasingsReachTarget(t *testing.T) {
	for _, e := range []Easing{ExponentialDecay, SineSquared} {
		p, err := New(0, 1000*time.Microsecond, e, DefaultPacing())
		if err != nil {
			t.Fatal(err)
		}
		p.progress = 1
		d, err := p.NextDuty()
		if err != nil || d != 1000*time.Microsecond {
			t.Errorf("%s at progress 1 = %v, %v", e, d, err)
		}
	}
}

func TestPath_LogDiverges(t *testing.T) {
	p, _ := New(900*time.Microsecond, 1500*time.Microsecond, Log, DefaultPacing())
	_ = p.Advance(0)
	_, err := p.NextDuty()
	var div *DivergenceError
	if !errors.As(err, &div) {
		t.Fatalf("NextDuty at progress 0 = %v, want DivergenceError", err)
	}

	// With a fixed step ln(p) stays finite, but the path ends at its start.
	pc := DefaultPacing()
	pc.Mode = FixedStep
	p, _ = New(900*time.Microsecond, 1500*time.Microsecond, Log, pc)
	var settleErr error
	for i := 0; i < p.TickBound(0)+1 && settleErr == nil; i++ {
		if err := p.Advance(0); err != nil {
			t.Fatal(err)
		}
		d, err := p.NextDuty()
		if err != nil {
			settleErr = err
			break
		}
		_, settleErr = p.Settle(d)
	}
	if !errors.As(settleErr, &div) {
		t.Errorf("log path did not diverge: %v", settleErr)
	}
}

func TestPath_ZeroRateDiverges(t *testing.T) {
	p, _ := New(900*time.Microsecond, 1500*time.Microsecond, Linear, DefaultPacing())
	p.rate = 0
	var div *DivergenceError
	if err := p.Advance(time.Second); !errors.As(err, &div) {
		t.Errorf("Advance with rate 0 = %v, want DivergenceError", err)
	}

	p.mode = FixedStep
	p.step = math.Inf(1)
	if err := p.Advance(0); !errors.As(err, &div) {
		t.Errorf("Advance with infinite step = %v, want DivergenceError", err)
	}
}

func TestPath_ProgressOutOfRange(t *testing.T) {
	p, _ := New(900*time.Microsecond, 1500*time.Microsecond, Linear, DefaultPacing())
	p.progress = 1.5
	var div *DivergenceError
	if _, err := p.Settle(1000 * time.Microsecond); !errors.As(err, &div) {
		t.Errorf("Settle past 1 without convergence = %v", err)
	}
	p.progress = -0.1
	if _, err := p.Settle(1000 * time.Microsecond); !errors.As(err, &div) {
		t.Errorf("Settle below 0 = %v", err)
	}
}
