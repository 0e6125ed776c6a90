// Package chardev drives the arm through the servo kernel driver's character
// device (/dev/robot). Every command is an ioctl carrying an index/duty packet.
package chardev

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/hw/pwm"
)

// DefaultPath is the device node created by the servo driver.
const DefaultPath = "/dev/robot"

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocMagic = 'Q'
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | iocMagic<<8 | nr
}

// Request codes understood by the driver.
var (
	IocReset   = ioc(iocNone, 0, 0)
	IocSetDuty = ioc(iocWrite, 1, unsafe.Sizeof(uintptr(0)))
	IocGetDuty = ioc(iocRead, 2, unsafe.Sizeof(uintptr(0)))
	IocEnable  = ioc(iocWrite, 3, unsafe.Sizeof(int32(0)))
	IocDisable = ioc(iocWrite, 4, unsafe.Sizeof(int32(0)))
	IocSync    = ioc(iocNone, 5, 0)
)

// Packet is the argument of every driver ioctl.
type Packet struct {
	Idx    int32
	DutyNs int32
}

// Conn issues ioctls against an open device.
type Conn interface {
	Ioctl(req uintptr, pkt *Packet) error
	Close() error
}

// Gateway implements pwm.Gateway over the driver ioctls.
type Gateway struct {
	conn Conn
	path string
}

// New wraps an already open connection.
func New(conn Conn, path string) *Gateway {
	return &Gateway{conn: conn, path: path}
}

// Open opens the device node and returns a gateway bound to it.
func Open(path string) (*Gateway, error) {
	if path == "" {
		path = DefaultPath
	}
	debug.Info("Opening servo character device %s", path)
	conn, err := openDevice(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return New(conn, path), nil
}

func (g *Gateway) do(op string, req uintptr, index int, pkt *Packet) error {
	if err := pwm.CheckIndex(index, pwm.Channels); err != nil {
		return err
	}
	pkt.Idx = int32(index)
	debug.Device(op, index, time.Duration(pkt.DutyNs))
	if err := g.conn.Ioctl(req, pkt); err != nil {
		return fmt.Errorf("%s ioctl on %s: %w", op, g.path, err)
	}
	return nil
}

func (g *Gateway) ReadDuty(index int) (time.Duration, error) {
	var pkt Packet
	if err := g.do("ReadDuty", IocGetDuty, index, &pkt); err != nil {
		return 0, err
	}
	return time.Duration(pkt.DutyNs), nil
}

func (g *Gateway) WriteDuty(index int, duty time.Duration) error {
	if err := pwm.CheckDuty(duty); err != nil {
		return err
	}
	pkt := Packet{DutyNs: int32(duty.Nanoseconds())}
	return g.do("WriteDuty", IocSetDuty, index, &pkt)
}

func (g *Gateway) Sync(index int) error {
	var pkt Packet
	return g.do("Sync", IocSync, index, &pkt)
}

func (g *Gateway) Enable(index int) error {
	var pkt Packet
	return g.do("Enable", IocEnable, index, &pkt)
}

func (g *Gateway) Disable(index int) error {
	var pkt Packet
	return g.do("Disable", IocDisable, index, &pkt)
}

// Reset asks the driver to reset its state. Current drivers log it as unhandled.
func (g *Gateway) Reset() error {
	var pkt Packet
	return g.do("Reset", IocReset, 0, &pkt)
}

// Close releases the device. Servos keep their last duty.
func (g *Gateway) Close() error {
	debug.Trace("Gateway Close (%s)", g.path)
	return g.conn.Close()
}
