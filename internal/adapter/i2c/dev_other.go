//go:build !linux

package i2c

import (
	"fmt"
)

func openDevice(path string) (Device, error) {
	return nil, fmt.Errorf("open %s: i2c-dev unavailable on this platform", path)
}
