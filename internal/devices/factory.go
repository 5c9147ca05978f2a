package devices

import (
	"fmt"

	"fk-go/internal/config"
	"fk-go/internal/fk"
)

// NewEnumeratorFromConfig creates a DeviceEnumerator based on the devices config type.
func NewEnumeratorFromConfig(cfg config.DevicesConfig) (fk.DeviceEnumerator, error) {
	switch cfg.Type {
	case "linux", "":
		return NewLinuxEnumerator(), nil
	case "static":
		if len(cfg.Static) == 0 {
			return nil, fmt.Errorf("static device list is empty")
		}
		for _, d := range cfg.Static {
			if d.UUID == "" || d.MountPoint == "" {
				return nil, fmt.Errorf("static device needs uuid and mount_point: %+v", d)
			}
		}
		return NewStaticEnumeratorFromConfig(cfg.Static), nil
	default:
		return nil, fmt.Errorf("unknown devices type: %s", cfg.Type)
	}
}
