package fk_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fk-go/internal/database"
	"fk-go/internal/fk"
	"fk-go/internal/testutil"
)

func TestFKService_DryRunLeavesStoreUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fk.db")

	db, err := database.NewSQLiteDatabase(path, false)
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	e := newEnvWithDatabase(t, db, db)
	e.write(t, "kept.txt", "kept")
	e.write(t, "changed.txt", "before")
	e.scan(t)
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	before := testutil.StoreChecksum(t, path)

	ro, err := database.NewSQLiteDatabase(path, true)
	if err != nil {
		t.Fatalf("NewSQLiteDatabase(readOnly) error = %v", err)
	}
	defer ro.Close()
	if !ro.ReadOnly() {
		t.Fatal("ReadOnly() = false, want true")
	}

	e.write(t, "changed.txt", "after, and longer")
	e.write(t, "new.txt", "new")
	svc := fk.NewFKService(ro, e.fsmgr, e.vol.Enumerator, e.log, e.clock)

	scanStats, err := svc.Scan(e.vol.MountPoint, fk.ScanOptions{})
	if err != nil {
		t.Fatalf("dry-run Scan() error = %v", err)
	}
	if scanStats.New != 1 || scanStats.ChangedStat != 1 || scanStats.UnchangedStat != 1 {
		t.Errorf("dry-run scan New = %d, ChangedStat = %d, UnchangedStat = %d, want 1, 1, 1",
			scanStats.New, scanStats.ChangedStat, scanStats.UnchangedStat)
	}

	hashStats, err := svc.RefreshHashes(context.Background(), fk.HashOptions{MaxAge: 30 * day, BatchSize: 1})
	if err != nil {
		t.Fatalf("dry-run RefreshHashes() error = %v", err)
	}
	if hashStats.Hashed != 2 {
		t.Errorf("dry-run Hashed = %d, want 2", hashStats.Hashed)
	}

	op, err := ro.CreateOperation("run-1", "scan", "{}", e.clock.Now())
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if err := ro.FinishOperation(op.ID, "success", e.clock.Now().Add(time.Minute)); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}
	if _, err := svc.FindDuplicates(); err != nil {
		t.Fatalf("FindDuplicates() error = %v", err)
	}

	if after := testutil.StoreChecksum(t, path); after != before {
		t.Errorf("store changed by dry run: checksum %s, want %s", after, before)
	}
}

func TestFKService_DryRunMissingStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")

	_, err := database.NewSQLiteDatabase(path, true)
	if !errors.Is(err, fk.ErrStoreNotFound) {
		t.Fatalf("NewSQLiteDatabase(readOnly) error = %v, want %v", err, fk.ErrStoreNotFound)
	}
}
