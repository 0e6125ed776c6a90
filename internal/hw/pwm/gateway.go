package pwm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
)

// Period is the PWM period every duty is measured in.
const Period = 20 * time.Millisecond

// Channels is the number of servo channels a gateway exposes.
const Channels = 6

var (
	// ErrInvalidIndex is returned for a channel the gateway does not drive.
	ErrInvalidIndex = errors.New("invalid axis index")
	// ErrOutOfRange is returned for a duty outside the physical PWM range.
	ErrOutOfRange = errors.New("duty out of PWM range")
)

// Gateway is the narrow command contract between the motion engine and the
// servo hardware. Implementations are not required to be safe for
// concurrent use; the motion controller owns the gateway during a sweep.
type Gateway interface {
	// ReadDuty returns the last duty applied to a channel, or 0 if unset.
	ReadDuty(index int) (time.Duration, error)
	// WriteDuty stages a duty for a channel.
	WriteDuty(index int, duty time.Duration) error
	// Sync makes the last written duty take physical effect.
	Sync(index int) error
	Enable(index int) error
	Disable(index int) error
	Close() error
}

// Wiring is implemented by gateways that drive only some of the channels.
// Callers skip the axes a gateway does not wire.
type Wiring interface {
	Wired(index int) bool
}

// CheckIndex validates a channel index against the number of channels.
func CheckIndex(index, channels int) error {
	if index < 0 || index >= channels {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	return nil
}

// CheckDuty validates a duty against the PWM period.
func CheckDuty(duty time.Duration) error {
	if duty < 0 || duty > Period {
		return fmt.Errorf("%w: %v", ErrOutOfRange, duty)
	}
	return nil
}

// MockGateway is an in-memory gateway that simply logs actions.
// Used for development on PC or testing.
type MockGateway struct {
	mu      sync.Mutex
	duty    [Channels]time.Duration
	staged  [Channels]time.Duration
	enabled [Channels]bool
}

// NewMockGateway returns a gateway with every channel unset and disabled.
func NewMockGateway() *MockGateway {
	debug.Info("Using MOCK servo gateway (development mode)")
	return &MockGateway{}
}

func (m *MockGateway) ReadDuty(index int) (time.Duration, error) {
	if err := CheckIndex(index, Channels); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	debug.Device("ReadDuty", index, m.duty[index])
	return m.duty[index], nil
}

func (m *MockGateway) WriteDuty(index int, duty time.Duration) error {
	if err := CheckIndex(index, Channels); err != nil {
		return err
	}
	if err := CheckDuty(duty); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	debug.Device("WriteDuty", index, duty)
	m.staged[index] = duty
	return nil
}

func (m *MockGateway) Sync(index int) error {
	if err := CheckIndex(index, Channels); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	debug.Device("Sync", index, m.staged[index])
	m.duty[index] = m.staged[index]
	return nil
}

func (m *MockGateway) Enable(index int) error {
	if err := CheckIndex(index, Channels); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	debug.Device("Enable", index, true)
	m.enabled[index] = true
	return nil
}

func (m *MockGateway) Disable(index int) error {
	if err := CheckIndex(index, Channels); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	debug.Device("Disable", index, false)
	m.enabled[index] = false
	return nil
}

// Enabled reports whether a channel is currently enabled.
func (m *MockGateway) Enabled(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= Channels {
		return false
	}
	return m.enabled[index]
}

func (m *MockGateway) Close() error {
	debug.Trace("Gateway Close (mock)")
	return nil
}
