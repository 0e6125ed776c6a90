// Package maestro drives the arm from a Pololu Maestro USB/serial servo
// controller using the compact serial protocol.
package maestro

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/hw/pwm"
	"github.com/tarm/serial"
)

const (
	cmdSetTarget   = 0x84
	cmdGetPosition = 0x90
	cmdGetErrors   = 0xa1
)

// quarter is the Maestro target unit.
const quarter = 250 * time.Nanosecond

var errorBits = []string{
	"serial signal error",
	"serial overrun error",
	"serial buffer full",
	"serial crc error",
	"serial protocol error",
	"serial timeout",
	"script stack error",
	"script call stack error",
	"script program counter error",
}

// Gateway implements pwm.Gateway on a Maestro. Axis i drives channel i.
type Gateway struct {
	port io.ReadWriter
	last [pwm.Channels]time.Duration
}

// New wraps an open serial stream.
func New(port io.ReadWriter) *Gateway {
	return &Gateway{port: port}
}

// Open opens the controller's command port.
func Open(name string, baud int) (*Gateway, error) {
	if baud <= 0 {
		baud = 9600
	}
	debug.Info("Opening Maestro on %s (%d baud)", name, baud)
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return New(port), nil
}

// ControllerError decodes the Maestro error register.
type ControllerError uint16

func (e ControllerError) Error() string {
	var s []string
	for i, msg := range errorBits {
		if uint16(e)&(1<<i) != 0 {
			s = append(s, msg)
		}
	}
	if len(s) == 0 {
		return fmt.Sprintf("maestro error %#04x", uint16(e))
	}
	return "maestro: " + strings.Join(s, ",")
}

func (g *Gateway) setTarget(index int, target uint16) error {
	_, err := g.port.Write([]byte{cmdSetTarget, byte(index), byte(target & 0x7f), byte((target >> 7) & 0x7f)})
	return err
}

func (g *Gateway) read2() (uint16, error) {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(g.port, buf); err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

// ReadDuty queries the channel position; 0 means the channel is off.
func (g *Gateway) ReadDuty(index int) (time.Duration, error) {
	if err := pwm.CheckIndex(index, pwm.Channels); err != nil {
		return 0, err
	}
	if _, err := g.port.Write([]byte{cmdGetPosition, byte(index)}); err != nil {
		return 0, fmt.Errorf("maestro get position: %w", err)
	}
	pos, err := g.read2()
	if err != nil {
		return 0, fmt.Errorf("maestro get position: %w", err)
	}
	duty := time.Duration(pos) * quarter
	debug.Device("ReadDuty", index, duty)
	return duty, nil
}

func (g *Gateway) WriteDuty(index int, duty time.Duration) error {
	if err := pwm.CheckIndex(index, pwm.Channels); err != nil {
		return err
	}
	if err := pwm.CheckDuty(duty); err != nil {
		return err
	}
	q := duty / quarter
	if q > 0x3fff {
		return fmt.Errorf("%w: %v exceeds 14-bit target", pwm.ErrOutOfRange, duty)
	}
	debug.Device("WriteDuty", index, duty)
	if err := g.setTarget(index, uint16(q)); err != nil {
		return fmt.Errorf("maestro set target: %w", err)
	}
	g.last[index] = duty
	return nil
}

// Sync reads the error register; targets apply as soon as they are written.
func (g *Gateway) Sync(index int) error {
	if err := pwm.CheckIndex(index, pwm.Channels); err != nil {
		return err
	}
	if _, err := g.port.Write([]byte{cmdGetErrors}); err != nil {
		return fmt.Errorf("maestro get errors: %w", err)
	}
	bits, err := g.read2()
	if err != nil {
		return fmt.Errorf("maestro get errors: %w", err)
	}
	if bits != 0 {
		return ControllerError(bits)
	}
	return nil
}

// Enable restores the last target written to the channel.
func (g *Gateway) Enable(index int) error {
	if err := pwm.CheckIndex(index, pwm.Channels); err != nil {
		return err
	}
	debug.Device("Enable", index, g.last[index])
	if g.last[index] == 0 {
		return nil
	}
	return g.setTarget(index, uint16(g.last[index]/quarter))
}

// Disable stops pulses on the channel (target 0).
func (g *Gateway) Disable(index int) error {
	if err := pwm.CheckIndex(index, pwm.Channels); err != nil {
		return err
	}
	debug.Device("Disable", index, nil)
	return g.setTarget(index, 0)
}

func (g *Gateway) Close() error {
	debug.Trace("Gateway Close (maestro)")
	if c, ok := g.port.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
