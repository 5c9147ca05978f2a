package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"fk-go/internal/fk"
)

// OSFilesystemManager is the real filesystem implementation of fk.FilesystemManager.
type OSFilesystemManager struct {
	ignore []string

	mu       sync.Mutex
	matchers map[string]*IgnoreMatcher // by walk root
}

// NewOSFilesystemManager creates a filesystem manager that applies the given ignore
// patterns, plus those in the .fkignore file of each walk root.
func NewOSFilesystemManager(ignore []string) *OSFilesystemManager {
	return &OSFilesystemManager{
		ignore:   ignore,
		matchers: make(map[string]*IgnoreMatcher),
	}
}

// Walk visits root and everything beneath it in lexical order. Symbolic links are
// reported as fk.KindSymlink and never followed.
func (m *OSFilesystemManager) Walk(root string, fn fk.WalkFunc) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			kind := fk.KindOther
			if d != nil {
				kind = entryKind(d.Type())
			}
			return fn(path, kind, err)
		}
		return fn(path, entryKind(d.Type()), nil)
	})
}

func entryKind(mode fs.FileMode) fk.EntryKind {
	switch {
	case mode.IsDir():
		return fk.KindDir
	case mode&fs.ModeSymlink != 0:
		return fk.KindSymlink
	case mode.IsRegular():
		return fk.KindFile
	default:
		return fk.KindOther
	}
}

// Lstat returns the tracked stat fields of path without following links.
func (m *OSFilesystemManager) Lstat(path string) (*fk.FileStat, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	inode, err := inodeOf(info)
	if err != nil {
		return nil, err
	}
	return &fk.FileStat{
		Inode:   inode,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// IsIgnored reports whether path, relative to the walk root, matches an ignore pattern.
func (m *OSFilesystemManager) IsIgnored(root, path string) (bool, error) {
	matcher, err := m.matcherFor(root)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false, fmt.Errorf("computing ignore path: %w", err)
	}
	if rel == "." {
		return false, nil
	}
	return matcher.Match(rel), nil
}

func (m *OSFilesystemManager) matcherFor(root string) (*IgnoreMatcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if matcher, ok := m.matchers[root]; ok {
		return matcher, nil
	}

	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}

	patterns := make([]string, 0, len(defaultIgnorePatterns)+len(m.ignore)+len(fromFile))
	patterns = append(patterns, defaultIgnorePatterns...)
	patterns = append(patterns, m.ignore...)
	patterns = append(patterns, fromFile...)

	matcher := NewIgnoreMatcher(patterns)
	m.matchers[root] = matcher
	return matcher, nil
}

// Compile-time check that OSFilesystemManager implements fk.FilesystemManager interface
var _ fk.FilesystemManager = (*OSFilesystemManager)(nil)
