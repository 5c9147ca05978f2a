package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"fk-go/internal/devices"
	"fk-go/internal/fk"
	"fk-go/internal/fs"
)

// Volume is a directory standing in for a mounted volume. Its device number is
// the real one of the temp filesystem, so device resolution runs unmodified.
type Volume struct {
	UUID       string
	MountPoint string
	Enumerator *devices.StaticEnumerator
}

// NewVolume creates a fresh mount point under t.TempDir() and a static enumerator
// reporting it as the only volume.
func NewVolume(t *testing.T, uuid string) *Volume {
	t.Helper()

	mount := filepath.Join(t.TempDir(), "mnt")
	if err := os.MkdirAll(mount, 0755); err != nil {
		t.Fatalf("creating mount point: %v", err)
	}
	mount = canonical(t, mount)

	major, minor, err := fs.NewOSFilesystemManager(nil).DeviceNumber(mount)
	if err != nil {
		t.Fatalf("reading device number: %v", err)
	}

	return &Volume{
		UUID:       uuid,
		MountPoint: mount,
		Enumerator: devices.NewStaticEnumerator([]fk.Device{{
			UUID:       uuid,
			Label:      "test",
			MountPoint: mount,
			Major:      major,
			Minor:      minor,
		}}),
	}
}

// Path joins elements onto the mount point.
func (v *Volume) Path(elem ...string) string {
	return filepath.Join(append([]string{v.MountPoint}, elem...)...)
}

// Remount moves the volume's directory to a new location on the same filesystem
// and updates the enumerator, like unmounting and mounting it elsewhere.
func (v *Volume) Remount(t *testing.T) {
	t.Helper()

	target := filepath.Join(filepath.Dir(v.MountPoint), "remounted-"+filepath.Base(v.MountPoint))
	if err := os.Rename(v.MountPoint, target); err != nil {
		t.Fatalf("moving mount point: %v", err)
	}
	v.MountPoint = target
	v.Enumerator.SetMountPoint(v.UUID, target)
}

// Unplug removes the volume from the enumerator; its files stay on disk.
func (v *Volume) Unplug() {
	v.Enumerator.Remove(v.UUID)
}

func canonical(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatalf("resolving %s: %v", path, err)
	}
	return resolved
}
