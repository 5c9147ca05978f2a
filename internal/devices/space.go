//go:build linux || darwin

package devices

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SpaceUsage is the capacity of a mounted filesystem as reported by statfs.
type SpaceUsage struct {
	Total    uint64
	Free     uint64 // available to unprivileged users
	Reserved uint64 // free but reserved for root
}

// FreePercent is Free as a percentage of Total.
func (u *SpaceUsage) FreePercent() int {
	if u.Total == 0 {
		return 0
	}
	return int(u.Free * 100 / u.Total)
}

// Usage reports the space of the filesystem mounted at mountPoint.
func Usage(mountPoint string) (*SpaceUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(mountPoint, &st); err != nil {
		return nil, fmt.Errorf("statfs %s: %w", mountPoint, err)
	}
	bsize := uint64(st.Bsize)
	return &SpaceUsage{
		Total:    uint64(st.Blocks) * bsize,
		Free:     uint64(st.Bavail) * bsize,
		Reserved: (uint64(st.Bfree) - uint64(st.Bavail)) * bsize,
	}, nil
}
