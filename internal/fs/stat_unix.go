//go:build unix

package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"fk-go/internal/fk"
)

// inodeOf extracts the inode number from a FileInfo.
func inodeOf(info fs.FileInfo) (uint64, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("cannot extract stat data: expected *syscall.Stat_t, got %T", info.Sys())
	}
	return uint64(stat.Ino), nil
}

// DeviceNumber returns the major and minor number of the filesystem holding path.
func (m *OSFilesystemManager) DeviceNumber(path string) (uint32, uint32, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, 0, &fs.PathError{Op: "stat", Path: path, Err: err}
	}
	dev := uint64(st.Dev)
	return unix.Major(dev), unix.Minor(dev), nil
}

// Open opens path for reading. O_NOFOLLOW makes a symlink fail with ELOOP and
// O_NONBLOCK keeps a named pipe with no writer from blocking the open; the file
// type is then checked on the open descriptor.
func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NOFOLLOW|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.ELOOP) {
			return nil, &fs.PathError{Op: "open", Path: path, Err: fk.ErrNotRegular}
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, &fs.PathError{Op: "open", Path: path, Err: fk.ErrNotRegular}
	}
	return f, nil
}
