//go:build linux

package chardev

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

type fileConn struct {
	fd int
}

func openDevice(path string) (Conn, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &fileConn{fd: fd}, nil
}

func (c *fileConn) Ioctl(req uintptr, pkt *Packet) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), req, uintptr(unsafe.Pointer(pkt)))
	if errno != 0 {
		return errno
	}
	return nil
}

func (c *fileConn) Close() error {
	return unix.Close(c.fd)
}
