package pwm

import (
	"fmt"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

const (
	// rpiClockHz gives the PWM clock a 1 us resolution.
	rpiClockHz = 1_000_000
	// rpiCycleLen is one 20 ms period at rpiClockHz.
	rpiCycleLen = uint32(Period / time.Microsecond)
)

// rpiPWMChannel maps the BCM pins that carry hardware PWM to their channel.
// Pins sharing a channel share its duty register.
var rpiPWMChannel = map[int]int{12: 0, 18: 0, 13: 1, 19: 1}

// RPiDriver drives servos from the Raspberry Pi hardware PWM using go-rpio.
// Each axis index maps to one BCM pin; 0 means the axis is not wired. The Pi
// has two PWM channels, so at most two axes can be wired.
type RPiDriver struct {
	pins []int
	pin  map[int]rpio.Pin
	duty []time.Duration
}

// ValidateRPiPins checks an axis to BCM pin map: every wired pin must carry
// hardware PWM and no two axes may share a PWM channel.
func ValidateRPiPins(pins []int) error {
	if len(pins) > Channels {
		return fmt.Errorf("rpio: %d pins configured, at most %d axes", len(pins), Channels)
	}
	owner := map[int]int{}
	wired := 0
	for i, p := range pins {
		if p == 0 {
			continue
		}
		ch, ok := rpiPWMChannel[p]
		if !ok {
			return fmt.Errorf("rpio: axis %d: BCM pin %d has no hardware PWM", i, p)
		}
		if prev, dup := owner[ch]; dup {
			return fmt.Errorf("rpio: axes %d and %d both use PWM channel %d (BCM %d and %d)", prev, i, ch, pins[prev], p)
		}
		owner[ch] = i
		wired++
	}
	if wired == 0 {
		return fmt.Errorf("rpio: no axis wired to a PWM pin")
	}
	return nil
}

// NewRPiDriver maps the GPIO block through /dev/mem and configures the mapped
// pins for PWM. The PWM and clock registers are not exposed by /dev/gpiomem,
// so this needs root on a Raspberry Pi.
func NewRPiDriver(pins []int) (*RPiDriver, error) {
	debug.Info("Initializing hardware PWM gateway (go-rpio)")

	if err := ValidateRPiPins(pins); err != nil {
		return nil, err
	}

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	r := &RPiDriver{
		pins: pins,
		pin:  make(map[int]rpio.Pin),
		duty: make([]time.Duration, len(pins)),
	}
	for i, p := range pins {
		if p == 0 {
			continue
		}
		pin := rpio.Pin(p)
		pin.Mode(rpio.Pwm)
		pin.Freq(rpiClockHz)
		r.pin[i] = pin
	}
	return r, nil
}

func (r *RPiDriver) lookup(index int) (rpio.Pin, error) {
	if err := CheckIndex(index, len(r.pins)); err != nil {
		return 0, err
	}
	p, ok := r.pin[index]
	if !ok {
		return 0, fmt.Errorf("%w: axis %d has no PWM pin", ErrInvalidIndex, index)
	}
	return p, nil
}

// Wired reports whether an axis has a PWM pin.
func (r *RPiDriver) Wired(index int) bool {
	_, ok := r.pin[index]
	return ok
}

// ReadDuty returns the duty last written; the PWM block cannot be read back.
// Unwired axes read as unset.
func (r *RPiDriver) ReadDuty(index int) (time.Duration, error) {
	if err := CheckIndex(index, Channels); err != nil {
		return 0, err
	}
	if !r.Wired(index) {
		return 0, nil
	}
	debug.Device("ReadDuty", index, r.duty[index])
	return r.duty[index], nil
}

func (r *RPiDriver) WriteDuty(index int, duty time.Duration) error {
	pin, err := r.lookup(index)
	if err != nil {
		return err
	}
	if err := CheckDuty(duty); err != nil {
		return err
	}
	debug.Device("WriteDuty", index, duty)
	pin.DutyCycle(uint32(duty/time.Microsecond), rpiCycleLen)
	r.duty[index] = duty
	return nil
}

// Sync is a no-op: the PWM registers apply on the next period.
func (r *RPiDriver) Sync(index int) error {
	_, err := r.lookup(index)
	return err
}

func (r *RPiDriver) Enable(index int) error {
	pin, err := r.lookup(index)
	if err != nil {
		return err
	}
	debug.Device("Enable", index, r.pins[index])
	pin.Mode(rpio.Pwm)
	pin.Freq(rpiClockHz)
	pin.DutyCycle(uint32(r.duty[index]/time.Microsecond), rpiCycleLen)
	return nil
}

func (r *RPiDriver) Disable(index int) error {
	pin, err := r.lookup(index)
	if err != nil {
		return err
	}
	debug.Device("Disable", index, r.pins[index])
	pin.DutyCycle(0, rpiCycleLen)
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("Gateway Close (rpio)")

	// Stop pulses and return pins to input (safe state)
	for index, p := range r.pin {
		debug.Verbose("Resetting axis %d pin %d to input", index, r.pins[index])
		p.DutyCycle(0, rpiCycleLen)
		p.Input()
	}

	return rpio.Close()
}
