package maestro

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/ArmGo/internal/hw/pwm"
)

// fakePort captures written commands and serves canned replies.
type fakePort struct {
	out bytes.Buffer
	in  bytes.Buffer
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }

func TestWriteDuty_Encoding(t *testing.T) {
	port := &fakePort{}
	g := New(port)

	// 1500 us is 6000 quarter-microseconds: low 7 bits 0x70, high 0x2e.
	if err := g.WriteDuty(2, 1500*time.Microsecond); err != nil {
		t.Fatalf("WriteDuty: %v", err)
	}
	want := []byte{0x84, 0x02, 0x70, 0x2e}
	if !bytes.Equal(port.out.Bytes(), want) {
		t.Errorf("wrote % x, want % x", port.out.Bytes(), want)
	}
}

func TestReadDuty(t *testing.T) {
	port := &fakePort{}
	port.in.Write([]byte{0x70, 0x17}) // 6000
	g := New(port)

	d, err := g.ReadDuty(1)
	if err != nil {
		t.Fatalf("ReadDuty: %v", err)
	}
	if d != 1500*time.Microsecond {
		t.Errorf("ReadDuty = %v, want 1.5ms", d)
	}
	if !bytes.Equal(port.out.Bytes(), []byte{0x90, 0x01}) {
		t.Errorf("wrote % x", port.out.Bytes())
	}

	if _, err := g.ReadDuty(1); err == nil {
		t.Error("expected error on short reply")
	}
}

func TestSync_ControllerError(t *testing.T) {
	port := &fakePort{}
	port.in.Write([]byte{0x00, 0x00})
	port.in.Write([]byte{0x22, 0x00}) // overrun + timeout
	g := New(port)

	if err := g.Sync(0); err != nil {
		t.Fatalf("Sync with clean register: %v", err)
	}
	err := g.Sync(0)
	var ce ControllerError
	if !errors.As(err, &ce) {
		t.Fatalf("Sync = %v, want ControllerError", err)
	}
	if !strings.Contains(err.Error(), "serial overrun error") || !strings.Contains(err.Error(), "serial timeout") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestEnableDisable(t *testing.T) {
	port := &fakePort{}
	g := New(port)

	if err := g.Enable(0); err != nil || port.out.Len() != 0 {
		t.Errorf("Enable with no target sent % x, %v", port.out.Bytes(), err)
	}
	_ = g.WriteDuty(0, time.Millisecond)
	port.out.Reset()

	_ = g.Disable(0)
	if !bytes.Equal(port.out.Bytes(), []byte{0x84, 0x00, 0x00, 0x00}) {
		t.Errorf("Disable wrote % x", port.out.Bytes())
	}
	port.out.Reset()

	_ = g.Enable(0)
	// 1000 us = 4000 quarters = 0x0fa0.
	if !bytes.Equal(port.out.Bytes(), []byte{0x84, 0x00, 0x20, 0x1f}) {
		t.Errorf("Enable wrote % x", port.out.Bytes())
	}
}

func TestRejects(t *testing.T) {
	g := New(&fakePort{})
	if err := g.WriteDuty(7, time.Millisecond); !errors.Is(err, pwm.ErrInvalidIndex) {
		t.Errorf("WriteDuty(7) = %v", err)
	}
	if err := g.WriteDuty(0, -time.Millisecond); !errors.Is(err, pwm.ErrOutOfRange) {
		t.Errorf("WriteDuty(-1ms) = %v", err)
	}
	if err := g.Close(); err != nil {
		t.Errorf("Close on non-closer: %v", err)
	}
}
