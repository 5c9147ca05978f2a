package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"fk-go/internal/database"
)

// NewTestDatabase creates a new in-memory SQLite index with the schema migrated.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(database.MemoryPath, false)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// NewTestDatabaseFile creates a migrated SQLite index at path and closes it, so
// that it can be reopened (for example read-only) by the test.
func NewTestDatabaseFile(t *testing.T, path string) {
	t.Helper()

	db, err := database.NewSQLiteDatabase(path, false)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}
}

// StoreChecksum hashes the contents of every index table of the store at path,
// opened read-only.
func StoreChecksum(t *testing.T, path string) string {
	t.Helper()

	db, err := database.OpenConnection(path, true)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	h := sha256.New()
	queries := []string{
		"SELECT id, uuid_text FROM device ORDER BY id",
		"SELECT id, device_id, relative_path, inode, size, mtime FROM file ORDER BY id",
		"SELECT id, file_id, hash_text, computed_at, observed_size, algorithm FROM hash ORDER BY id",
		"SELECT id, run_id, operation, parameters, started_at, finished_at, status FROM operations ORDER BY id",
	}
	for _, q := range queries {
		rows, err := db.Query(q)
		if err != nil {
			t.Fatalf("query %q: %v", q, err)
		}
		cols, err := rows.Columns()
		if err != nil {
			rows.Close()
			t.Fatalf("columns of %q: %v", q, err)
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				t.Fatalf("scanning %q: %v", q, err)
			}
			fmt.Fprintf(h, "%v\n", values)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			t.Fatalf("reading %q: %v", q, err)
		}
		rows.Close()
		fmt.Fprintln(h, "--")
	}
	return hex.EncodeToString(h.Sum(nil))
}
