package pca9685

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
)

type pwmCall struct {
	ch  int
	off gpio.Duty
}

type fakeBoard struct {
	set []pwmCall
	off []int
}

func (b *fakeBoard) SetPwm(ch int, on, off gpio.Duty) error {
	b.set = append(b.set, pwmCall{ch, off})
	return nil
}

func (b *fakeBoard) SetFullOff(ch int) error {
	b.off = append(b.off, ch)
	return nil
}

func TestCounts(t *testing.T) {
	tests := []struct {
		duty time.Duration
		want gpio.Duty
	}{
		{0, 0},
		{1500 * time.Microsecond, 307},
		{20 * time.Millisecond, 4096},
		{5 * time.Millisecond, 1024},
	}
	for _, tt := range tests {
		if got := Counts(tt.duty); got != tt.want {
			t.Errorf("Counts(%v) = %d, want %d", tt.duty, got, tt.want)
		}
	}
}

func TestGateway_SyncOnlyWhenEnabled(t *testing.T) {
	b := &fakeBoard{}
	g := New(b)

	_ = g.WriteDuty(1, 5*time.Millisecond)
	if err := g.Sync(1); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(b.set) != 0 {
		t.Errorf("disabled channel reached the board: %+v", b.set)
	}
	if d, _ := g.ReadDuty(1); d != 5*time.Millisecond {
		t.Errorf("ReadDuty = %v", d)
	}

	// Enabling re-applies the last duty.
	if err := g.Enable(1); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if len(b.set) != 1 || b.set[0] != (pwmCall{1, 1024}) {
		t.Errorf("Enable board calls = %+v", b.set)
	}

	_ = g.WriteDuty(1, 1500*time.Microsecond)
	_ = g.Sync(1)
	if last := b.set[len(b.set)-1]; last != (pwmCall{1, 307}) {
		t.Errorf("Sync board call = %+v", last)
	}
}

func TestGateway_Disable(t *testing.T) {
	b := &fakeBoard{}
	g := New(b)
	_ = g.Enable(4)
	if err := g.Disable(4); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if len(b.off) != 1 || b.off[0] != 4 {
		t.Errorf("full-off calls = %v", b.off)
	}
	if err := g.Close(); err != nil {
		t.Errorf("Close without bus: %v", err)
	}
}
