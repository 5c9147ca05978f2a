//go:build !linux

package devices

import (
	"errors"

	"fk-go/internal/fk"
)

// LinuxEnumerator is only available on Linux.
type LinuxEnumerator struct{}

func NewLinuxEnumerator() *LinuxEnumerator {
	return &LinuxEnumerator{}
}

func (e *LinuxEnumerator) Devices() ([]fk.Device, error) {
	return nil, errors.New("device enumeration requires linux; use devices.type = \"static\"")
}
