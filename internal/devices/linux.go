//go:build linux

package devices

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"

	"fk-go/internal/fk"
)

// LinuxEnumerator lists mounted volumes by joining the mount table with the udev
// symlinks under /dev/disk/by-uuid and /dev/disk/by-label.
type LinuxEnumerator struct {
	// Mounts reads the mount table; mountinfo.GetMounts reads /proc/self/mountinfo.
	Mounts     func(mountinfo.FilterFunc) ([]*mountinfo.Info, error)
	ByUUIDDir  string
	ByLabelDir string
}

// NewLinuxEnumerator creates an enumerator reading the standard system locations.
func NewLinuxEnumerator() *LinuxEnumerator {
	return &LinuxEnumerator{
		Mounts:     mountinfo.GetMounts,
		ByUUIDDir:  "/dev/disk/by-uuid",
		ByLabelDir: "/dev/disk/by-label",
	}
}

// volumeRoots skips bind mounts of a subdirectory.
func volumeRoots(m *mountinfo.Info) (skip, stop bool) {
	return m.Root != "/", false
}

// blockNode is a device node found through a udev symlink.
type blockNode struct {
	Path string // resolved node, e.g. /dev/sdb1
	Name string // symlink name: the UUID or label
	Rdev uint64
}

// Devices returns one entry per mount of a volume that has a UUID. Bind mounts of a
// subdirectory are skipped, so every returned mount point is the volume's root.
func (e *LinuxEnumerator) Devices() ([]fk.Device, error) {
	mounts, err := e.Mounts(volumeRoots)
	if err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}

	uuids, err := readNodeLinks(e.ByUUIDDir)
	if err != nil {
		return nil, err
	}
	labels, err := readNodeLinks(e.ByLabelDir)
	if err != nil {
		return nil, err
	}

	labelByNode := make(map[string]string, len(labels))
	for _, l := range labels {
		labelByNode[l.Path] = l.Name
	}

	var devices []fk.Device
	for _, m := range mounts {
		node := matchNode(uuids, m)
		if node == nil {
			continue
		}
		devices = append(devices, fk.Device{
			UUID:       node.Name,
			Label:      labelByNode[node.Path],
			Node:       node.Path,
			MountPoint: m.Mountpoint,
			FSType:     m.FSType,
			Major:      uint32(m.Major),
			Minor:      uint32(m.Minor),
		})
	}
	return devices, nil
}

// matchNode finds the UUID link of a mount, first by device number and then by the
// mount source path (filesystems such as btrfs report an anonymous device number).
func matchNode(nodes []blockNode, m *mountinfo.Info) *blockNode {
	dev := unix.Mkdev(uint32(m.Major), uint32(m.Minor))
	for i := range nodes {
		if nodes[i].Rdev != 0 && nodes[i].Rdev == dev {
			return &nodes[i]
		}
	}
	source, err := filepath.EvalSymlinks(m.Source)
	if err != nil {
		source = m.Source
	}
	for i := range nodes {
		if nodes[i].Path == source {
			return &nodes[i]
		}
	}
	return nil
}

// readNodeLinks resolves every symlink in dir. A missing dir yields no links.
func readNodeLinks(dir string) ([]blockNode, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var nodes []blockNode
	for _, entry := range entries {
		target, err := filepath.EvalSymlinks(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		node := blockNode{Path: target, Name: unescapeUdev(entry.Name())}
		var st unix.Stat_t
		if err := unix.Stat(target, &st); err == nil && st.Mode&unix.S_IFMT == unix.S_IFBLK {
			node.Rdev = uint64(st.Rdev)
		}
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes, nil
}

// unescapeUdev decodes the \xNN escapes udev uses in link names.
func unescapeUdev(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && s[i+1] == 'x' {
			if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
				out = append(out, byte(v))
				i += 3
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}

// Compile-time check that LinuxEnumerator implements fk.DeviceEnumerator interface
var _ fk.DeviceEnumerator = (*LinuxEnumerator)(nil)
