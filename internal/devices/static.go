package devices

import (
	"fk-go/internal/config"
	"fk-go/internal/fk"
)

// StaticEnumerator reports a fixed list of volumes.
type StaticEnumerator struct {
	devices []fk.Device
}

// NewStaticEnumerator creates an enumerator that always returns devices.
func NewStaticEnumerator(devices []fk.Device) *StaticEnumerator {
	return &StaticEnumerator{devices: devices}
}

// NewStaticEnumeratorFromConfig builds a StaticEnumerator from config entries.
func NewStaticEnumeratorFromConfig(entries []config.StaticDevice) *StaticEnumerator {
	devices := make([]fk.Device, len(entries))
	for i, e := range entries {
		devices[i] = fk.Device{
			UUID:       e.UUID,
			Label:      e.Label,
			MountPoint: e.MountPoint,
			Major:      e.Major,
			Minor:      e.Minor,
		}
	}
	return NewStaticEnumerator(devices)
}

// Devices returns a copy of the configured list.
func (e *StaticEnumerator) Devices() ([]fk.Device, error) {
	out := make([]fk.Device, len(e.devices))
	copy(out, e.devices)
	return out, nil
}

// SetMountPoint moves a volume to a new mount point, as after a remount.
func (e *StaticEnumerator) SetMountPoint(uuid, mountPoint string) {
	for i := range e.devices {
		if e.devices[i].UUID == uuid {
			e.devices[i].MountPoint = mountPoint
		}
	}
}

// Remove drops a volume, as after it is unplugged.
func (e *StaticEnumerator) Remove(uuid string) {
	kept := e.devices[:0]
	for _, d := range e.devices {
		if d.UUID != uuid {
			kept = append(kept, d)
		}
	}
	e.devices = kept
}

// Compile-time check that StaticEnumerator implements fk.DeviceEnumerator interface
var _ fk.DeviceEnumerator = (*StaticEnumerator)(nil)
