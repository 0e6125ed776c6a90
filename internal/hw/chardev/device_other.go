//go:build !linux

package chardev

import "errors"

func openDevice(path string) (Conn, error) {
	return nil, errors.New("servo character device is only available on linux")
}
