package app

import "testing"

func TestNewRunOperation(t *testing.T) {
	op := NewRunOperation("run-1", "scan")

	if op.RunID != "run-1" {
		t.Errorf("RunID = %q, want %q", op.RunID, "run-1")
	}
	if op.Operation != "scan" {
		t.Errorf("Operation = %q, want %q", op.Operation, "scan")
	}
	if op.Status != StatusSuccess {
		t.Errorf("Status = %q, want %q", op.Status, StatusSuccess)
	}
	if op.ID != 0 {
		t.Errorf("ID = %d, want 0", op.ID)
	}
}

func TestRunOperation_Persisted(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want bool
	}{
		{name: "not persisted when ID is 0", id: 0, want: false},
		{name: "persisted when ID is positive", id: 1, want: true},
		{name: "persisted when ID is large", id: 99999, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &RunOperation{ID: tt.id}
			if got := op.Persisted(); got != tt.want {
				t.Errorf("Persisted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatParameters(t *testing.T) {
	tests := []struct {
		name string
		kv   []any
		want string
	}{
		{name: "empty", kv: nil, want: ""},
		{name: "pairs", kv: []any{"root", "/media/usb", "min_size", 10}, want: "root=/media/usb min_size=10"},
		{name: "odd trailing key dropped", kv: []any{"a", 1, "b"}, want: "a=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatParameters(tt.kv...); got != tt.want {
				t.Errorf("formatParameters() = %q, want %q", got, tt.want)
			}
		})
	}
}
