package fk

import "io"

// EntryKind classifies a directory entry found while walking.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDir
	KindSymlink
	KindOther // devices, pipes, sockets
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// WalkFunc is called for every entry under a walk root, root included.
// A non-nil err reports that the entry could not be read; returning nil
// continues the walk (skipping the unreadable directory), returning an error aborts it.
type WalkFunc func(path string, kind EntryKind, err error) error

// FilesystemManager abstracts the filesystem calls the scanner and hasher make.
type FilesystemManager interface {
	// Walk visits root and everything beneath it in lexical order without following
	// symbolic links.
	Walk(root string, fn WalkFunc) error

	// Lstat returns the tracked stat fields of path. Errors wrap fs.ErrNotExist
	// and fs.ErrPermission where applicable.
	Lstat(path string) (*FileStat, error)

	// DeviceNumber returns the major and minor number of the device holding path.
	DeviceNumber(path string) (major, minor uint32, err error)

	// Open opens a regular file for reading without following symbolic links.
	// Any other kind of file fails with an error wrapping ErrNotRegular.
	Open(path string) (io.ReadCloser, error)

	// IsIgnored reports whether path, found under the walk root, matches an ignore pattern.
	IsIgnored(root, path string) (bool, error)
}
