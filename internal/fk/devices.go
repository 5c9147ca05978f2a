package fk

// Device is one mounted volume as reported by a DeviceEnumerator.
type Device struct {
	UUID       string
	Label      string
	Node       string // e.g. /dev/sdb1
	MountPoint string
	FSType     string
	Major      uint32
	Minor      uint32
}

// DeviceEnumerator lists the volumes currently mounted on this host.
// The result is a point-in-time snapshot; callers query it once per invocation.
type DeviceEnumerator interface {
	Devices() ([]Device, error)
}
