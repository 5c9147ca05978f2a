package testutil

import (
	"fmt"
	"io"
	"io/fs"
	"sync"

	"fk-go/internal/fk"
)

// FaultyFilesystemManager wraps a real FilesystemManager and injects errors for
// chosen paths.
type FaultyFilesystemManager struct {
	fk.FilesystemManager

	mu         sync.Mutex
	openErrors map[string]error
	statErrors map[string]error
	opened     []string
}

// NewFaultyFilesystemManager wraps inner.
func NewFaultyFilesystemManager(inner fk.FilesystemManager) *FaultyFilesystemManager {
	return &FaultyFilesystemManager{
		FilesystemManager: inner,
		openErrors:        make(map[string]error),
		statErrors:        make(map[string]error),
	}
}

// FailOpen makes Open(path) return err.
func (m *FaultyFilesystemManager) FailOpen(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErrors[path] = err
}

// FailLstat makes Lstat(path) return err.
func (m *FaultyFilesystemManager) FailLstat(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statErrors[path] = err
}

// Opened returns every path passed to Open, in call order.
func (m *FaultyFilesystemManager) Opened() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.opened...)
}

func (m *FaultyFilesystemManager) Open(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	m.opened = append(m.opened, path)
	err := m.openErrors[path]
	m.mu.Unlock()
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	return m.FilesystemManager.Open(path)
}

func (m *FaultyFilesystemManager) Lstat(path string) (*fk.FileStat, error) {
	m.mu.Lock()
	err := m.statErrors[path]
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("lstat %s: %w", path, err)
	}
	return m.FilesystemManager.Lstat(path)
}

// Compile-time check
var _ fk.FilesystemManager = (*FaultyFilesystemManager)(nil)
