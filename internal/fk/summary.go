package fk

import (
	"fmt"
	"time"
)

// Summary counts the index contents. Hashes older than maxAge count as stale.
func (s *FKService) Summary(maxAge time.Duration) (*IndexSummary, error) {
	summary, err := s.database.Summary(s.clock.Now().Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("summarizing index: %w", err)
	}
	return summary, nil
}

// History returns the most recent operations, newest first.
func (s *FKService) History(limit int) ([]*Operation, error) {
	ops, err := s.database.ListOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Devices returns the volumes mounted right now.
func (s *FKService) Devices() ([]Device, error) {
	devices, err := s.devices.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	return devices, nil
}
