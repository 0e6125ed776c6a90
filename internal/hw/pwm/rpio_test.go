package pwm

import (
	"errors"
	"testing"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

func TestValidateRPiPins(t *testing.T) {
	cases := []struct {
		name    string
		pins    []int
		wantErr bool
	}{
		{"one_per_channel", []int{12, 13}, false},
		{"alternate_pins", []int{18, 19}, false},
		{"gap", []int{0, 13, 0, 18}, false},
		{"single", []int{19}, false},
		{"shared_pwm0", []int{12, 13, 18}, true},
		{"shared_pwm1", []int{13, 19}, true},
		{"not_pwm", []int{17}, true},
		{"none_wired", []int{0, 0}, true},
		{"empty", nil, true},
		{"too_many", []int{12, 13, 0, 0, 0, 0, 0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRPiPins(tc.pins)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateRPiPins(%v) = %v, wantErr %v", tc.pins, err, tc.wantErr)
			}
		})
	}
}

func TestRPiDriver_UnwiredAxesReadUnset(t *testing.T) {
	// Only the bookkeeping is exercised; no register is touched.
	r := &RPiDriver{
		pins: []int{12, 13},
		pin:  map[int]rpio.Pin{0: rpio.Pin(12), 1: rpio.Pin(13)},
		duty: []time.Duration{1500 * time.Microsecond, 0},
	}
	var _ Wiring = r

	if !r.Wired(0) || !r.Wired(1) || r.Wired(2) || r.Wired(5) {
		t.Error("Wired should report exactly axes 0 and 1")
	}
	if d, err := r.ReadDuty(0); err != nil || d != 1500*time.Microsecond {
		t.Errorf("ReadDuty(0) = %v, %v", d, err)
	}
	for _, i := range []int{2, 5} {
		if d, err := r.ReadDuty(i); err != nil || d != 0 {
			t.Errorf("ReadDuty(%d) = %v, %v; want unset", i, d, err)
		}
	}
	if _, err := r.ReadDuty(Channels); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("ReadDuty(%d) = %v, want ErrInvalidIndex", Channels, err)
	}
	if err := r.WriteDuty(4, time.Millisecond); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("WriteDuty on an unwired axis = %v, want ErrInvalidIndex", err)
	}
}
