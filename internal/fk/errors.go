package fk

import "errors"

var (
	// ErrNoDeviceFound means no enumerated volume contains the requested path.
	ErrNoDeviceFound = errors.New("no device found for path")

	// ErrDuplicateIdentity means an insert collided with an existing unique identity.
	// It aborts only the single operation that raised it.
	ErrDuplicateIdentity = errors.New("duplicate identity")

	// ErrCorruptIndex means more than one row matched an identity that must be unique.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrNotRegular means a path indexed as a regular file is now something else,
	// such as a symbolic link or a named pipe.
	ErrNotRegular = errors.New("not a regular file")

	// ErrStoreNotFound means a read-only open was requested for a store that does not exist.
	ErrStoreNotFound = errors.New("store does not exist")
)
