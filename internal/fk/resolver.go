package fk

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolvedDevice is the volume owning a path together with where it is mounted now.
type ResolvedDevice struct {
	Device     Device
	MountPoint string
}

// RelativePath returns absPath relative to the mount point.
// The mount point itself maps to ".".
func (r *ResolvedDevice) RelativePath(absPath string) (string, error) {
	rel, err := filepath.Rel(r.MountPoint, absPath)
	if err != nil {
		return "", fmt.Errorf("computing path relative to %s: %w", r.MountPoint, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside mount point %s", absPath, r.MountPoint)
	}
	return rel, nil
}

// ResolveDevice finds the enumerated volume containing absPath by matching the
// device number of the path against each volume's major:minor. When several volumes
// share the number (bind mounts), the deepest mount point that is an ancestor of the
// path wins. Returns ErrNoDeviceFound when nothing matches.
func (s *FKService) ResolveDevice(absPath string) (*ResolvedDevice, error) {
	major, minor, err := s.fsmgr.DeviceNumber(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading device number of %s: %w", absPath, err)
	}

	devices, err := s.devices.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}

	return matchDevice(devices, absPath, major, minor)
}

func matchDevice(devices []Device, absPath string, major, minor uint32) (*ResolvedDevice, error) {
	var best *Device
	for i := range devices {
		d := &devices[i]
		if d.Major != major || d.Minor != minor || d.UUID == "" {
			continue
		}
		if !isWithin(d.MountPoint, absPath) {
			continue
		}
		if best == nil || len(d.MountPoint) > len(best.MountPoint) {
			best = d
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s (device %d:%d)", ErrNoDeviceFound, absPath, major, minor)
	}
	return &ResolvedDevice{Device: *best, MountPoint: best.MountPoint}, nil
}

// isWithin reports whether path is dir or lies beneath it.
func isWithin(dir, path string) bool {
	dir = filepath.Clean(dir)
	path = filepath.Clean(path)
	if dir == path || dir == string(filepath.Separator) {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

// mountPoints maps device UUIDs to their current mount points.
func (s *FKService) mountPoints() (map[string]string, error) {
	devices, err := s.devices.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	mounts := make(map[string]string, len(devices))
	for _, d := range devices {
		if d.UUID == "" {
			continue
		}
		// The first mount of a volume wins; later ones are bind mounts or duplicates.
		if _, ok := mounts[d.UUID]; !ok {
			mounts[d.UUID] = d.MountPoint
		}
	}
	return mounts, nil
}
