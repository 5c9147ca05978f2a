package fk_test

import (
	"testing"

	"fk-go/internal/database"
	"fk-go/internal/fk"
	"fk-go/internal/fs"
	"fk-go/internal/testutil"
)

// env is a service over a temp volume and an in-memory index.
type env struct {
	svc   *fk.FKService
	db    *database.SQLiteDatabase
	vol   *testutil.Volume
	fsmgr *testutil.FaultyFilesystemManager
	clock *testutil.StubClock
	log   *testutil.RecordingLogger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	return newEnvWithDatabase(t, db, db)
}

// newEnvWithDatabase builds the service over svcDB, which may wrap db.
func newEnvWithDatabase(t *testing.T, db *database.SQLiteDatabase, svcDB fk.Database) *env {
	t.Helper()
	vol := testutil.NewVolume(t, "1111-AAAA")
	fsmgr := testutil.NewFaultyFilesystemManager(fs.NewOSFilesystemManager(nil))
	clock := testutil.FixedClock()
	log := testutil.NewRecordingLogger()
	return &env{
		svc:   fk.NewFKService(svcDB, fsmgr, vol.Enumerator, log, clock),
		db:    db,
		vol:   vol,
		fsmgr: fsmgr,
		clock: clock,
		log:   log,
	}
}

func (e *env) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := e.vol.Path(rel)
	testutil.WriteFile(t, path, []byte(content))
	return path
}

func (e *env) scan(t *testing.T) *fk.ScanStats {
	t.Helper()
	stats, err := e.svc.Scan(e.vol.MountPoint, fk.ScanOptions{})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	return stats
}

func (e *env) device(t *testing.T) *fk.DeviceIdentity {
	t.Helper()
	devices, err := e.db.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("len(ListDevices()) = %d, want 1", len(devices))
	}
	return devices[0]
}

func (e *env) files(t *testing.T) map[string]*fk.FileRecord {
	t.Helper()
	list, err := e.db.ListFilesUnder(e.device(t).ID, "")
	if err != nil {
		t.Fatalf("ListFilesUnder() error = %v", err)
	}
	out := make(map[string]*fk.FileRecord, len(list))
	for _, f := range list {
		out[f.RelativePath] = f
	}
	return out
}

func (e *env) hash(t *testing.T, rel string) *fk.HashRecord {
	t.Helper()
	f, ok := e.files(t)[rel]
	if !ok {
		t.Fatalf("file %s not indexed", rel)
	}
	h, created, err := e.db.GetOrCreateHash(f.ID)
	if err != nil {
		t.Fatalf("GetOrCreateHash() error = %v", err)
	}
	if created {
		t.Fatalf("hash record of %s was missing", rel)
	}
	return h
}
