package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-tree ignore file read from a scan root.
const IgnoreFileName = ".fkignore"

// defaultIgnorePatterns are always applied regardless of config or .fkignore.
var defaultIgnorePatterns = []string{IgnoreFileName}

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against any path component
}

// IgnoreMatcher checks file paths against a set of ignore patterns.
// Patterns without '/' match any single component of the path, so "*.part" ignores
// a file and ".git" ignores everything beneath a .git directory.
// Patterns with '/' match against the full relative path from the scan root.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.TrimPrefix(raw, "/")
		patterns = append(patterns, ignorePattern{
			pattern:   strings.TrimSuffix(raw, "/"),
			matchPath: strings.Contains(strings.TrimSuffix(raw, "/"), "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the given relative path should be ignored.
// relativePath should use filepath separators and be relative to the scan root.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if len(m.patterns) == 0 || relativePath == "" {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	components := strings.Split(normalized, "/")

	for _, p := range m.patterns {
		if p.matchPath {
			if matchPrefix(p.pattern, components) {
				return true
			}
			continue
		}
		for _, c := range components {
			// A bad pattern never matches.
			if matched, err := filepath.Match(p.pattern, c); err == nil && matched {
				return true
			}
		}
	}
	return false
}

// matchPrefix reports whether pattern matches the path or one of its parent directories.
func matchPrefix(pattern string, components []string) bool {
	for i := 1; i <= len(components); i++ {
		prefix := strings.Join(components[:i], "/")
		if matched, err := filepath.Match(pattern, prefix); err == nil && matched {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
