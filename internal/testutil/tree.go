package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteFile creates path and its parent directories with the given content.
func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// HardLink creates newPath as a hard link to oldPath.
func HardLink(t *testing.T, oldPath, newPath string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		t.Fatalf("creating parent of %s: %v", newPath, err)
	}
	if err := os.Link(oldPath, newPath); err != nil {
		t.Fatalf("linking %s: %v", newPath, err)
	}
}

// Symlink creates newPath as a symbolic link to target.
func Symlink(t *testing.T, target, newPath string) {
	t.Helper()
	if err := os.Symlink(target, newPath); err != nil {
		t.Fatalf("symlinking %s: %v", newPath, err)
	}
}

// SetModTime sets both access and modification time of path.
func SetModTime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("setting mtime of %s: %v", path, err)
	}
}

// Remove deletes path.
func Remove(t *testing.T, path string) {
	t.Helper()
	if err := os.Remove(path); err != nil {
		t.Fatalf("removing %s: %v", path, err)
	}
}
