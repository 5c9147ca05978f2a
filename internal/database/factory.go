package database

import (
	"fmt"
	"os"
	"path/filepath"

	"fk-go/internal/config"
	"fk-go/internal/fk"
)

// StoreFileName is the name of the index file inside the data directory.
const StoreFileName = "fk.db"

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
// readOnly opens an existing store without write permission.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, readOnly bool) (fk.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if !readOnly {
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		return open(filepath.Join(cfg.DataDir, StoreFileName), readOnly)
	case "memory":
		return open(MemoryPath, readOnly)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

func open(path string, readOnly bool) (fk.Database, error) {
	db, err := NewSQLiteDatabase(path, readOnly)
	if err != nil {
		return nil, err
	}
	return db, nil
}
