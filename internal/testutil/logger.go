package testutil

import (
	"fmt"
	"strings"
	"sync"

	"fk-go/internal/fk"
)

// LogEntry is one message captured by RecordingLogger.
type LogEntry struct {
	Level   string
	Message string
	Args    []any
}

// RecordingLogger captures log messages for assertions.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (l *RecordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg, Args: args})
}

func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *RecordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

// Count returns how many entries carry msg.
func (l *RecordingLogger) Count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Message == msg {
			n++
		}
	}
	return n
}

// String renders all entries, one per line.
func (l *RecordingLogger) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	for _, e := range l.entries {
		fmt.Fprintf(&b, "%s %s %v\n", e.Level, e.Message, e.Args)
	}
	return b.String()
}

// Compile-time check
var _ fk.Logger = (*RecordingLogger)(nil)
