//go:build linux

package i2c

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE request from linux/i2c-dev.h.
const i2cSlave = 0x0703

// fileDevice is an i2c-dev character device.
type fileDevice struct {
	path string
	fd   int
}

func openDevice(path string) (Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &fileDevice{path: path, fd: fd}, nil
}

func (d *fileDevice) SetAddress(address uint16) error {
	if err := unix.IoctlSetInt(d.fd, i2cSlave, int(address)); err != nil {
		return fmt.Errorf("%s: set address 0x%02X: %w", d.path, address, err)
	}
	return nil
}

func (d *fileDevice) Read(p []byte) (int, error) {
	n, err := unix.Read(d.fd, p)
	if err != nil {
		return n, fmt.Errorf("read %s: %w", d.path, err)
	}
	return n, nil
}

func (d *fileDevice) Write(p []byte) (int, error) {
	n, err := unix.Write(d.fd, p)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", d.path, err)
	}
	return n, nil
}

func (d *fileDevice) Close() error {
	return unix.Close(d.fd)
}
