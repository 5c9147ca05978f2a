package app

import (
	"fmt"
	"strings"
)

// Operation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RunOperation tracks a CLI invocation that may mutate the index.
// Operations are created in memory with ID=0. Only index-mutating commands
// persist them (giving them an auto-increment ID from the database); in a dry
// run the store assigns none and the operation stays in memory.
type RunOperation struct {
	ID         int64
	RunID      string
	Operation  string
	Parameters string
	Status     string
}

// NewRunOperation creates a new in-memory operation.
func NewRunOperation(runID, operation string) *RunOperation {
	return &RunOperation{
		RunID:     runID,
		Operation: operation,
		Status:    StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *RunOperation) Persisted() bool {
	return op.ID != 0
}

// formatParameters renders alternating key/value pairs as "k1=v1 k2=v2".
func formatParameters(kv ...any) string {
	var parts []string
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%v", kv[i], kv[i+1]))
	}
	return strings.Join(parts, " ")
}
