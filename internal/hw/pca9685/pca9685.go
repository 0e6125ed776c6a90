// Package pca9685 drives the arm from a PCA9685 16-channel I2C PWM board.
package pca9685

import (
	"fmt"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/hw/pwm"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	periphpca "periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"
)

// DefaultAddr is the factory I2C address of the board.
const DefaultAddr = 0x40

// counts is the PWM resolution of the chip.
const counts = 4096

// Board is the subset of the PCA9685 driver the gateway uses.
type Board interface {
	SetPwm(channel int, on, off gpio.Duty) error
	SetFullOff(channel int) error
}

// Gateway implements pwm.Gateway on a PCA9685. Axis i drives channel i.
// The chip cannot report its outputs, so reads return the last written duty.
type Gateway struct {
	board   Board
	bus     i2c.BusCloser
	duty    [pwm.Channels]time.Duration
	staged  [pwm.Channels]time.Duration
	enabled [pwm.Channels]bool
}

// New wraps an already configured board.
func New(board Board) *Gateway {
	return &Gateway{board: board}
}

// Open initialises periph, opens the I2C bus and sets the board to 50 Hz.
// An empty bus name selects the first available bus.
func Open(busName string, addr uint16) (*Gateway, error) {
	debug.Info("Initializing PCA9685 gateway (bus=%q addr=%#x)", busName, addr)
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	if addr == 0 {
		addr = DefaultAddr
	}
	dev, err := periphpca.NewI2C(bus, addr)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("pca9685 at %#x: %w", addr, err)
	}
	if err := dev.SetPwmFreq(50 * physic.Hertz); err != nil {
		bus.Close()
		return nil, fmt.Errorf("pca9685 set frequency: %w", err)
	}
	g := New(dev)
	g.bus = bus
	return g, nil
}

// Counts converts a duty into the chip's 12-bit off count.
func Counts(duty time.Duration) gpio.Duty {
	return gpio.Duty((int64(duty) * counts) / int64(pwm.Period))
}

func (g *Gateway) ReadDuty(index int) (time.Duration, error) {
	if err := pwm.CheckIndex(index, pwm.Channels); err != nil {
		return 0, err
	}
	debug.Device("ReadDuty", index, g.duty[index])
	return g.duty[index], nil
}

func (g *Gateway) WriteDuty(index int, duty time.Duration) error {
	if err := pwm.CheckIndex(index, pwm.Channels); err != nil {
		return err
	}
	if err := pwm.CheckDuty(duty); err != nil {
		return err
	}
	debug.Device("WriteDuty", index, duty)
	g.staged[index] = duty
	return nil
}

// Sync pushes the staged duty to the chip if the channel is enabled.
func (g *Gateway) Sync(index int) error {
	if err := pwm.CheckIndex(index, pwm.Channels); err != nil {
		return err
	}
	debug.Device("Sync", index, g.staged[index])
	if g.enabled[index] {
		if err := g.board.SetPwm(index, 0, Counts(g.staged[index])); err != nil {
			return fmt.Errorf("pca9685 channel %d: %w", index, err)
		}
	}
	g.duty[index] = g.staged[index]
	return nil
}

func (g *Gateway) Enable(index int) error {
	if err := pwm.CheckIndex(index, pwm.Channels); err != nil {
		return err
	}
	debug.Device("Enable", index, g.duty[index])
	g.enabled[index] = true
	if g.duty[index] == 0 {
		return nil
	}
	return g.board.SetPwm(index, 0, Counts(g.duty[index]))
}

func (g *Gateway) Disable(index int) error {
	if err := pwm.CheckIndex(index, pwm.Channels); err != nil {
		return err
	}
	debug.Device("Disable", index, nil)
	g.enabled[index] = false
	return g.board.SetFullOff(index)
}

func (g *Gateway) Close() error {
	debug.Trace("Gateway Close (pca9685)")
	if g.bus == nil {
		return nil
	}
	return g.bus.Close()
}
