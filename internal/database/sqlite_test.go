package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fk-go/internal/fk"
)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(MemoryPath, false)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

var testTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func mustDevice(t *testing.T, db *SQLiteDatabase, uuid string) *fk.DeviceIdentity {
	t.Helper()
	d, _, err := db.GetOrCreateDevice(uuid)
	if err != nil {
		t.Fatalf("GetOrCreateDevice() error = %v", err)
	}
	return d
}

func mustFile(t *testing.T, db *SQLiteDatabase, deviceID int64, rel string, size int64) *fk.FileRecord {
	t.Helper()
	f, _, err := db.GetOrCreateFile(
		fk.FileIdentity{DeviceID: deviceID, RelativePath: rel},
		fk.FileStat{Inode: uint64(len(rel)), Size: size, ModTime: testTime},
	)
	if err != nil {
		t.Fatalf("GetOrCreateFile() error = %v", err)
	}
	if _, _, err := db.GetOrCreateHash(f.ID); err != nil {
		t.Fatalf("GetOrCreateHash() error = %v", err)
	}
	return f
}

func setHashForTest(t *testing.T, db *SQLiteDatabase, f *fk.FileRecord, hash string, at time.Time) {
	t.Helper()
	err := db.UpdateHash(&fk.HashRecord{FileID: f.ID, Hash: hash, Algorithm: "sha256", ComputedAt: at, ObservedSize: f.Size})
	if err != nil {
		t.Fatalf("UpdateHash() error = %v", err)
	}
}

func TestSQLiteDatabase_GetOrCreateDevice(t *testing.T) {
	db := newTestDB(t)

	first, created, err := db.GetOrCreateDevice("1234-ABCD")
	if err != nil {
		t.Fatalf("GetOrCreateDevice() error = %v", err)
	}
	if !created {
		t.Error("created = false on first call, want true")
	}
	if first.ID == 0 || first.UUID != "1234-ABCD" {
		t.Errorf("device = %+v", first)
	}

	again, created, err := db.GetOrCreateDevice("1234-ABCD")
	if err != nil {
		t.Fatalf("GetOrCreateDevice() error = %v", err)
	}
	if created {
		t.Error("created = true on second call, want false")
	}
	if again.ID != first.ID {
		t.Errorf("ID = %d, want %d", again.ID, first.ID)
	}

	mustDevice(t, db, "5678-EF01")
	devices, err := db.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 2 || devices[0].UUID != "1234-ABCD" || devices[1].UUID != "5678-EF01" {
		t.Errorf("ListDevices() = %+v", devices)
	}
}

func TestSQLiteDatabase_GetOrCreateFile(t *testing.T) {
	t.Run("inserts defaults once", func(t *testing.T) {
		db := newTestDB(t)
		dev := mustDevice(t, db, "1234-ABCD")
		identity := fk.FileIdentity{DeviceID: dev.ID, RelativePath: "photos/a.jpg"}
		stat := fk.FileStat{Inode: 42, Size: 1000, ModTime: testTime.Add(123 * time.Nanosecond)}

		f, created, err := db.GetOrCreateFile(identity, stat)
		if err != nil {
			t.Fatalf("GetOrCreateFile() error = %v", err)
		}
		if !created {
			t.Error("created = false, want true")
		}
		if f.Inode != 42 || f.Size != 1000 || !f.ModTime.Equal(stat.ModTime) {
			t.Errorf("file = %+v, want stat %+v", f, stat)
		}

		other := fk.FileStat{Inode: 7, Size: 1, ModTime: testTime}
		again, created, err := db.GetOrCreateFile(identity, other)
		if err != nil {
			t.Fatalf("GetOrCreateFile() error = %v", err)
		}
		if created {
			t.Error("created = true for existing identity")
		}
		if again.ID != f.ID || again.Size != 1000 {
			t.Errorf("existing record = %+v, want it unchanged", again)
		}
	})

	t.Run("same path on two devices is two files", func(t *testing.T) {
		db := newTestDB(t)
		a := mustFile(t, db, mustDevice(t, db, "A").ID, "x", 1)
		b := mustFile(t, db, mustDevice(t, db, "B").ID, "x", 1)
		if a.ID == b.ID {
			t.Error("files on different devices share an ID")
		}
	})

	t.Run("update overwrites stat", func(t *testing.T) {
		db := newTestDB(t)
		f := mustFile(t, db, mustDevice(t, db, "A").ID, "x", 1)
		f.Size = 99
		f.Inode = 5
		f.ModTime = testTime.Add(time.Hour)
		if err := db.UpdateFile(f); err != nil {
			t.Fatalf("UpdateFile() error = %v", err)
		}

		got, created, err := db.GetOrCreateFile(fk.FileIdentity{DeviceID: f.DeviceID, RelativePath: "x"}, fk.FileStat{})
		if err != nil || created {
			t.Fatalf("GetOrCreateFile() = created %v, error %v", created, err)
		}
		if got.Size != 99 || got.Inode != 5 || !got.ModTime.Equal(testTime.Add(time.Hour)) {
			t.Errorf("file = %+v after update", got)
		}
	})
}

func TestSQLiteDatabase_ListFilesUnder(t *testing.T) {
	db := newTestDB(t)
	dev := mustDevice(t, db, "A")
	for _, rel := range []string{"a/one", "a/b/two", "ab/three", "top"} {
		mustFile(t, db, dev.ID, rel, 1)
	}
	mustFile(t, db, mustDevice(t, db, "B").ID, "a/elsewhere", 1)

	tests := []struct {
		prefix string
		want   int
	}{
		{prefix: "", want: 4},
		{prefix: "a", want: 2},
		{prefix: "a/b", want: 1},
		{prefix: "top", want: 1},
		{prefix: "missing", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			files, err := db.ListFilesUnder(dev.ID, tt.prefix)
			if err != nil {
				t.Fatalf("ListFilesUnder() error = %v", err)
			}
			if len(files) != tt.want {
				t.Errorf("ListFilesUnder(%q) returned %d files, want %d", tt.prefix, len(files), tt.want)
			}
		})
	}
}

func TestSQLiteDatabase_Hashes(t *testing.T) {
	db := newTestDB(t)
	f := mustFile(t, db, mustDevice(t, db, "A").ID, "x", 10)

	h, created, err := db.GetOrCreateHash(f.ID)
	if err != nil {
		t.Fatalf("GetOrCreateHash() error = %v", err)
	}
	if created {
		t.Error("created = true, hash row already made by mustFile")
	}
	if h.Valid() || h.ObservedSize != -1 || !h.ComputedAt.IsZero() {
		t.Errorf("empty hash = %+v", h)
	}

	setHashForTest(t, db, f, "abc", testTime)
	h, _, err = db.GetOrCreateHash(f.ID)
	if err != nil {
		t.Fatalf("GetOrCreateHash() error = %v", err)
	}
	if h.Hash != "abc" || h.Algorithm != "sha256" || !h.ComputedAt.Equal(testTime) || h.ObservedSize != 10 {
		t.Errorf("hash = %+v", h)
	}

	if err := db.InvalidateHash(f.ID); err != nil {
		t.Fatalf("InvalidateHash() error = %v", err)
	}
	h, _, err = db.GetOrCreateHash(f.ID)
	if err != nil {
		t.Fatalf("GetOrCreateHash() error = %v", err)
	}
	if h.Valid() || h.ObservedSize != -1 || h.Algorithm != "" {
		t.Errorf("invalidated hash = %+v", h)
	}
}

func TestSQLiteDatabase_UniqueViolation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.queries.InsertDevice(ctx, "A"); err != nil {
		t.Fatalf("InsertDevice() error = %v", err)
	}
	_, err := db.queries.InsertDevice(ctx, "A")
	if err == nil {
		t.Fatal("second InsertDevice() expected error")
	}
	if !isUniqueViolation(err) {
		t.Errorf("isUniqueViolation(%v) = false, want true", err)
	}
	if isUniqueViolation(context.Canceled) {
		t.Error("isUniqueViolation(context.Canceled) = true")
	}
}

func TestSQLiteDatabase_Batches(t *testing.T) {
	t.Run("commit without batch fails", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.Commit(); err == nil {
			t.Error("Commit() expected error without open batch")
		}
		if err := db.Rollback(); err != nil {
			t.Errorf("Rollback() without batch error = %v", err)
		}
	})

	t.Run("nested begin fails", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.Begin(); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if err := db.Begin(); err == nil {
			t.Error("second Begin() expected error")
		}
	})

	t.Run("rollback discards only the open batch", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.Begin(); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		mustDevice(t, db, "kept")
		if err := db.Checkpoint(); err != nil {
			t.Fatalf("Checkpoint() error = %v", err)
		}
		mustDevice(t, db, "lost")
		if err := db.Rollback(); err != nil {
			t.Fatalf("Rollback() error = %v", err)
		}

		devices, err := db.ListDevices()
		if err != nil {
			t.Fatalf("ListDevices() error = %v", err)
		}
		if len(devices) != 1 || devices[0].UUID != "kept" {
			t.Errorf("ListDevices() = %+v, want only kept", devices)
		}
	})

	t.Run("reads see the open batch", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.Begin(); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		first := mustDevice(t, db, "A")
		again := mustDevice(t, db, "A")
		if first.ID != again.ID {
			t.Errorf("uncommitted device not visible: IDs %d, %d", first.ID, again.ID)
		}
		if err := db.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	})
}

func TestSQLiteDatabase_ReadOnly(t *testing.T) {
	db, err := NewSQLiteDatabase(MemoryPath, true)
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	defer db.Close()

	if err := db.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	dev, created, err := db.GetOrCreateDevice("A")
	if err != nil {
		t.Fatalf("GetOrCreateDevice() error = %v", err)
	}
	if !created || dev.ID != 0 || dev.UUID != "A" {
		t.Errorf("synthesized device = %+v, created %v", dev, created)
	}
	f, created, err := db.GetOrCreateFile(fk.FileIdentity{DeviceID: dev.ID, RelativePath: "x"}, fk.FileStat{Size: 3})
	if err != nil {
		t.Fatalf("GetOrCreateFile() error = %v", err)
	}
	if !created || f.Size != 3 {
		t.Errorf("synthesized file = %+v, created %v", f, created)
	}
	if err := db.UpdateHash(&fk.HashRecord{FileID: 1, Hash: "abc", ComputedAt: testTime}); err != nil {
		t.Errorf("UpdateHash() error = %v", err)
	}
	if err := db.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	summary, err := db.Summary(testTime)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.Devices != 0 || summary.Files != 0 {
		t.Errorf("read-only store was written: %+v", summary)
	}
}

func TestSQLiteDatabase_HashCandidates(t *testing.T) {
	db := newTestDB(t)
	dev := mustDevice(t, db, "A")
	now := testTime.Add(60 * 24 * time.Hour)
	staleBefore := now.Add(-30 * 24 * time.Hour)

	unhashed := mustFile(t, db, dev.ID, "unhashed", 10)
	fresh := mustFile(t, db, dev.ID, "fresh", 10)
	setHashForTest(t, db, fresh, "f", now)
	older := mustFile(t, db, dev.ID, "older", 20)
	setHashForTest(t, db, older, "o", testTime)
	old := mustFile(t, db, dev.ID, "old", 30)
	setHashForTest(t, db, old, "o2", testTime.Add(24*time.Hour))
	resized := mustFile(t, db, dev.ID, "resized", 10)
	if err := db.UpdateHash(&fk.HashRecord{FileID: resized.ID, Hash: "r", ComputedAt: now, ObservedSize: 4}); err != nil {
		t.Fatalf("UpdateHash() error = %v", err)
	}

	query := fk.HashCandidateQuery{StaleBefore: staleBefore}
	all, err := db.NextHashCandidates(query)
	if err != nil {
		t.Fatalf("NextHashCandidates() error = %v", err)
	}
	var got []string
	for _, c := range all {
		got = append(got, c.File.RelativePath)
		if c.DeviceUUID != "A" {
			t.Errorf("DeviceUUID = %q, want A", c.DeviceUUID)
		}
	}
	want := []string{"unhashed", "resized", "older", "old"}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidates = %v, want %v", got, want)
		}
	}
	if all[0].Key.Tier != 0 || all[2].Key.Tier != 1 {
		t.Errorf("tiers = %d, %d, want 0, 1", all[0].Key.Tier, all[2].Key.Tier)
	}
	for i := 1; i < len(all); i++ {
		if !all[i-1].Key.Less(all[i].Key) {
			t.Errorf("key %d %+v does not sort before %+v", i-1, all[i-1].Key, all[i].Key)
		}
	}

	count, bytes, err := db.CountHashCandidates(query)
	if err != nil {
		t.Fatalf("CountHashCandidates() error = %v", err)
	}
	if count != 4 || bytes != 70 {
		t.Errorf("CountHashCandidates() = %d, %d, want 4, 70", count, bytes)
	}

	t.Run("keyset pages", func(t *testing.T) {
		q := query
		q.Limit = 3
		page, err := db.NextHashCandidates(q)
		if err != nil {
			t.Fatalf("NextHashCandidates() error = %v", err)
		}
		if len(page) != 3 {
			t.Fatalf("first page has %d candidates, want 3", len(page))
		}
		q.After = &page[2].Key
		rest, err := db.NextHashCandidates(q)
		if err != nil {
			t.Fatalf("NextHashCandidates() error = %v", err)
		}
		if len(rest) != 1 || rest[0].File.ID != old.ID {
			t.Errorf("second page = %d candidates, want only old", len(rest))
		}
	})

	t.Run("candidates only", func(t *testing.T) {
		q := query
		q.CandidatesOnly = true
		list, err := db.NextHashCandidates(q)
		if err != nil {
			t.Fatalf("NextHashCandidates() error = %v", err)
		}
		if len(list) != 2 || list[0].File.ID != unhashed.ID || list[1].File.ID != resized.ID {
			t.Errorf("candidates-only returned %d candidates, want unhashed and resized", len(list))
		}
	})

	paths := func(t *testing.T, q fk.HashCandidateQuery) []string {
		t.Helper()
		list, err := db.NextHashCandidates(q)
		if err != nil {
			t.Fatalf("NextHashCandidates() error = %v", err)
		}
		var out []string
		for _, c := range list {
			out = append(out, c.File.RelativePath)
		}
		return out
	}

	tests := []struct {
		name      string
		query     func(fk.HashCandidateQuery) fk.HashCandidateQuery
		want      []string
		wantBytes int64
	}{
		{
			name: "other algorithm is never hashed",
			query: func(q fk.HashCandidateQuery) fk.HashCandidateQuery {
				q.Algorithm = "sha1"
				return q
			},
			want:      []string{"unhashed", "older", "old", "fresh", "resized"},
			wantBytes: 80,
		},
		{
			name: "same algorithm keeps its tier",
			query: func(q fk.HashCandidateQuery) fk.HashCandidateQuery {
				q.Algorithm = "sha256"
				return q
			},
			want:      []string{"unhashed", "resized", "older", "old"},
			wantBytes: 70,
		},
		{
			name: "hashed since run start is skipped",
			query: func(q fk.HashCandidateQuery) fk.HashCandidateQuery {
				q.Algorithm = "sha1"
				q.HashedBefore = now
				return q
			},
			want:      []string{"unhashed", "older", "old"},
			wantBytes: 60,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.query(query)
			if got := paths(t, q); !equalPaths(got, tt.want) {
				t.Errorf("candidates = %v, want %v", got, tt.want)
			}
			count, bytes, err := db.CountHashCandidates(q)
			if err != nil {
				t.Fatalf("CountHashCandidates() error = %v", err)
			}
			if count != int64(len(tt.want)) || bytes != tt.wantBytes {
				t.Errorf("CountHashCandidates() = %d, %d, want %d, %d", count, bytes, len(tt.want), tt.wantBytes)
			}
		})
	}
}

func equalPaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSQLiteDatabase_EachIndexedFile(t *testing.T) {
	db := newTestDB(t)
	dev := mustDevice(t, db, "A")

	small := mustFile(t, db, dev.ID, "small", 1)
	setHashForTest(t, db, small, "s", testTime)
	big := mustFile(t, db, dev.ID, "big", 100)
	setHashForTest(t, db, big, "b", testTime)
	stale := mustFile(t, db, dev.ID, "stale", 50)
	if err := db.UpdateHash(&fk.HashRecord{FileID: stale.ID, Hash: "x", ComputedAt: testTime, ObservedSize: 49}); err != nil {
		t.Fatalf("UpdateHash() error = %v", err)
	}

	var got []*fk.IndexedFile
	err := db.EachIndexedFile(func(f *fk.IndexedFile) error {
		got = append(got, f)
		return nil
	})
	if err != nil {
		t.Fatalf("EachIndexedFile() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("EachIndexedFile() visited %d files, want 3", len(got))
	}
	if got[0].RelativePath != "big" || got[1].RelativePath != "stale" || got[2].RelativePath != "small" {
		t.Errorf("order = %s, %s, %s, want big, stale, small", got[0].RelativePath, got[1].RelativePath, got[2].RelativePath)
	}
	if got[1].Hash != "" {
		t.Errorf("hash taken at another size = %q, want empty", got[1].Hash)
	}
	if got[0].Hash != "b" || got[0].DeviceUUID != "A" {
		t.Errorf("big = %+v", got[0])
	}
}

func TestSQLiteDatabase_Summary(t *testing.T) {
	db := newTestDB(t)
	dev := mustDevice(t, db, "A")
	a := mustFile(t, db, dev.ID, "a", 10)
	setHashForTest(t, db, a, "a", testTime)
	b := mustFile(t, db, dev.ID, "b", 20)
	setHashForTest(t, db, b, "b", testTime.Add(48*time.Hour))
	mustFile(t, db, dev.ID, "c", 30)

	got, err := db.Summary(testTime.Add(24 * time.Hour))
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	want := fk.IndexSummary{Devices: 1, Files: 3, Hashed: 2, Unhashed: 1, Stale: 1, TotalBytes: 60}
	if *got != want {
		t.Errorf("Summary() = %+v, want %+v", *got, want)
	}
}

func TestSQLiteDatabase_Operations(t *testing.T) {
	db := newTestDB(t)

	op, err := db.CreateOperation("run-1", "scan", `{"root":"/"}`, testTime)
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if op.ID == 0 || op.Status != "running" || op.FinishedAt != nil {
		t.Errorf("new operation = %+v", op)
	}
	if !op.StartedAt.Equal(testTime) {
		t.Errorf("StartedAt = %v, want %v", op.StartedAt, testTime)
	}

	if err := db.FinishOperation(op.ID, "failed", testTime.Add(time.Second)); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}
	ops, err := db.ListOperations(5)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 1 || ops[0].Status != "failed" || ops[0].FinishedAt == nil {
		t.Errorf("ListOperations() = %+v", ops)
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	db := newTestDB(t)
	mustFile(t, db, mustDevice(t, db, "A").ID, "x", 1)
	dest := filepath.Join(t.TempDir(), "backup.db")

	if err := db.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := db.BackupTo(dest); err == nil {
		t.Error("BackupTo() expected error with open batch")
	}
	if err := db.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := db.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	backup, err := NewSQLiteDatabase(dest, true)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer backup.Close()
	summary, err := backup.Summary(testTime)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.Devices != 1 || summary.Files != 1 {
		t.Errorf("backup summary = %+v", summary)
	}
}
