package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/mattn/go-sqlite3"

	"fk-go/internal/database/migrations"
	"fk-go/internal/fk"
)

// MemoryPath selects an in-memory store.
const MemoryPath = ":memory:"

// SQLiteDatabase implements fk.Database on SQLite.
//
// The pool holds a single connection. While a batch is open every statement runs
// inside its transaction.
type SQLiteDatabase struct {
	db       *sql.DB
	queries  *Queries
	tx       *sql.Tx
	path     string
	readOnly bool
}

// NewSQLiteDatabase opens the store at path, or an in-memory store for ":memory:".
//
// A writable store is created if missing and migrated to the latest schema.
// A read-only store must already exist at the latest schema; it is opened
// without write permission and every write becomes a no-op.
func NewSQLiteDatabase(path string, readOnly bool) (*SQLiteDatabase, error) {
	if readOnly && path != MemoryPath {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", fk.ErrStoreNotFound, path)
			}
			return nil, fmt.Errorf("checking database file: %w", err)
		}
	}

	db, err := OpenConnection(path, readOnly)
	if err != nil {
		return nil, err
	}

	if readOnly && path != MemoryPath {
		if err := migrations.CheckDBMigrationStatus(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("checking schema: %w", err)
		}
	} else {
		if err := migrations.MigrateUp(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing schema: %w", err)
		}
	}

	return &SQLiteDatabase{
		db:       db,
		queries:  NewQueries(db),
		path:     path,
		readOnly: readOnly,
	}, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// path can be a file path or ":memory:".
func OpenConnection(path string, readOnly bool) (*sql.DB, error) {
	dsn := path
	if readOnly && path != MemoryPath {
		dsn = (&url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro"}).String()
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: an in-memory store lives only as long as its connection,
	// and a second connection would block on the batch transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

func (s *SQLiteDatabase) q() *Queries {
	if s.tx != nil {
		return s.queries.WithTx(s.tx)
	}
	return s.queries
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// Batch control

func (s *SQLiteDatabase) Begin() error {
	if s.readOnly {
		return nil
	}
	if s.tx != nil {
		return fmt.Errorf("batch already open")
	}
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *SQLiteDatabase) Checkpoint() error {
	if s.readOnly {
		return nil
	}
	if err := s.Commit(); err != nil {
		return err
	}
	return s.Begin()
}

func (s *SQLiteDatabase) Commit() error {
	if s.readOnly {
		return nil
	}
	if s.tx == nil {
		return fmt.Errorf("no open batch")
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ReadOnly() bool {
	return s.readOnly
}

// Device operations

func (s *SQLiteDatabase) findDevice(ctx context.Context, uuidText string) (*fk.DeviceIdentity, error) {
	rows, err := s.q().ListDevicesByUUID(ctx, uuidText)
	if err != nil {
		return nil, fmt.Errorf("finding device: %w", err)
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return toDeviceIdentity(rows[0]), nil
	default:
		return nil, fmt.Errorf("%w: %d devices with uuid %s", fk.ErrCorruptIndex, len(rows), uuidText)
	}
}

func (s *SQLiteDatabase) GetOrCreateDevice(uuidText string) (*fk.DeviceIdentity, bool, error) {
	ctx := context.Background()

	device, err := s.findDevice(ctx, uuidText)
	if err != nil {
		return nil, false, err
	}
	if device != nil {
		return device, false, nil
	}

	if s.readOnly {
		return &fk.DeviceIdentity{UUID: uuidText}, true, nil
	}

	row, err := s.q().InsertDevice(ctx, uuidText)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, fmt.Errorf("%w: device %s", fk.ErrDuplicateIdentity, uuidText)
		}
		return nil, false, fmt.Errorf("creating device: %w", err)
	}
	return toDeviceIdentity(row), true, nil
}

func (s *SQLiteDatabase) ListDevices() ([]*fk.DeviceIdentity, error) {
	rows, err := s.q().ListDevices(context.Background())
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	result := make([]*fk.DeviceIdentity, len(rows))
	for i := range rows {
		result[i] = toDeviceIdentity(rows[i])
	}
	return result, nil
}

// File operations

func (s *SQLiteDatabase) findFile(ctx context.Context, identity fk.FileIdentity) (*fk.FileRecord, error) {
	rows, err := s.q().ListFilesByIdentity(ctx, FileIdentityParams{
		DeviceID:     identity.DeviceID,
		RelativePath: identity.RelativePath,
	})
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return toFileRecord(rows[0]), nil
	default:
		return nil, fmt.Errorf("%w: %d files for device %d path %s",
			fk.ErrCorruptIndex, len(rows), identity.DeviceID, identity.RelativePath)
	}
}

func (s *SQLiteDatabase) GetOrCreateFile(identity fk.FileIdentity, defaults fk.FileStat) (*fk.FileRecord, bool, error) {
	ctx := context.Background()

	file, err := s.findFile(ctx, identity)
	if err != nil {
		return nil, false, err
	}
	if file != nil {
		return file, false, nil
	}

	if s.readOnly {
		return &fk.FileRecord{
			DeviceID:     identity.DeviceID,
			RelativePath: identity.RelativePath,
			Inode:        defaults.Inode,
			Size:         defaults.Size,
			ModTime:      defaults.ModTime,
		}, true, nil
	}

	row, err := s.q().InsertFile(ctx, InsertFileParams{
		DeviceID:     identity.DeviceID,
		RelativePath: identity.RelativePath,
		Inode:        int64(defaults.Inode),
		Size:         defaults.Size,
		Mtime:        defaults.ModTime.UnixNano(),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, fmt.Errorf("%w: file %s", fk.ErrDuplicateIdentity, identity.RelativePath)
		}
		return nil, false, fmt.Errorf("creating file: %w", err)
	}
	return toFileRecord(row), true, nil
}

func (s *SQLiteDatabase) UpdateFile(file *fk.FileRecord) error {
	if s.readOnly {
		return nil
	}
	err := s.q().UpdateFile(context.Background(), UpdateFileParams{
		Inode: int64(file.Inode),
		Size:  file.Size,
		Mtime: file.ModTime.UnixNano(),
		ID:    file.ID,
	})
	if err != nil {
		return fmt.Errorf("updating file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListFilesUnder(deviceID int64, prefix string) ([]*fk.FileRecord, error) {
	rows, err := s.q().ListFilesUnder(context.Background(), ListFilesUnderParams{
		DeviceID: deviceID,
		Prefix:   prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	result := make([]*fk.FileRecord, len(rows))
	for i := range rows {
		result[i] = toFileRecord(rows[i])
	}
	return result, nil
}

// Hash operations

func (s *SQLiteDatabase) GetOrCreateHash(fileID int64) (*fk.HashRecord, bool, error) {
	ctx := context.Background()

	rows, err := s.q().ListHashesByFileID(ctx, fileID)
	if err != nil {
		return nil, false, fmt.Errorf("finding hash: %w", err)
	}
	switch len(rows) {
	case 0:
	case 1:
		return toHashRecord(rows[0]), false, nil
	default:
		return nil, false, fmt.Errorf("%w: %d hashes for file %d", fk.ErrCorruptIndex, len(rows), fileID)
	}

	if s.readOnly {
		return &fk.HashRecord{FileID: fileID, ObservedSize: -1}, true, nil
	}

	row, err := s.q().InsertHash(ctx, fileID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, fmt.Errorf("%w: hash for file %d", fk.ErrDuplicateIdentity, fileID)
		}
		return nil, false, fmt.Errorf("creating hash: %w", err)
	}
	return toHashRecord(row), true, nil
}

func (s *SQLiteDatabase) UpdateHash(hash *fk.HashRecord) error {
	if s.readOnly {
		return nil
	}
	params := SetHashParams{FileID: hash.FileID}
	if hash.Valid() {
		params.HashText = sql.NullString{String: hash.Hash, Valid: true}
		params.ComputedAt = sql.NullInt64{Int64: hash.ComputedAt.Unix(), Valid: true}
		params.ObservedSize = sql.NullInt64{Int64: hash.ObservedSize, Valid: true}
		params.Algorithm = sql.NullString{String: hash.Algorithm, Valid: hash.Algorithm != ""}
	}
	if err := s.q().SetHash(context.Background(), params); err != nil {
		return fmt.Errorf("updating hash: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) InvalidateHash(fileID int64) error {
	if s.readOnly {
		return nil
	}
	if err := s.q().InvalidateHash(context.Background(), fileID); err != nil {
		return fmt.Errorf("invalidating hash: %w", err)
	}
	return nil
}

func candidateParams(query fk.HashCandidateQuery) HashCandidatesParams {
	params := HashCandidatesParams{
		CandidatesOnly: query.CandidatesOnly,
		StaleBefore:    query.StaleBefore.Unix(),
		Limit:          int64(query.Limit),
		Algorithm:      query.Algorithm,
	}
	if !query.HashedBefore.IsZero() {
		params.HashedBefore = query.HashedBefore.Unix()
	}
	return params
}

func (s *SQLiteDatabase) NextHashCandidates(query fk.HashCandidateQuery) ([]*fk.HashCandidate, error) {
	params := candidateParams(query)
	if params.Limit <= 0 {
		params.Limit = -1 // no limit
	}
	if query.After != nil {
		params.HasAfter = true
		params.AfterTier = int64(query.After.Tier)
		params.AfterComputed = query.After.ComputedAt
		params.AfterFileID = query.After.FileID
	}

	rows, err := s.q().HashCandidates(context.Background(), params)
	if err != nil {
		return nil, fmt.Errorf("selecting hash candidates: %w", err)
	}

	result := make([]*fk.HashCandidate, len(rows))
	for i, row := range rows {
		result[i] = &fk.HashCandidate{
			Key: fk.CandidateKey{
				Tier:       int(row.Tier),
				ComputedAt: row.ComputedKey,
				FileID:     row.File.ID,
			},
			File:       *toFileRecord(row.File),
			Hash:       *toHashRecord(row.Hash),
			DeviceUUID: row.UuidText,
		}
	}
	return result, nil
}

func (s *SQLiteDatabase) CountHashCandidates(query fk.HashCandidateQuery) (int64, int64, error) {
	count, bytes, err := s.q().CountHashCandidates(context.Background(), candidateParams(query))
	if err != nil {
		return 0, 0, fmt.Errorf("counting hash candidates: %w", err)
	}
	return count, bytes, nil
}

// EachIndexedFile holds a result set open while fn runs, so fn must not use the database.
func (s *SQLiteDatabase) EachIndexedFile(fn func(*fk.IndexedFile) error) error {
	return s.q().EachIndexedFile(context.Background(), func(row IndexedFileRow) error {
		return fn(&fk.IndexedFile{
			FileID:       row.FileID,
			DeviceID:     row.DeviceID,
			DeviceUUID:   row.UuidText,
			RelativePath: row.RelativePath,
			Inode:        uint64(row.Inode),
			Size:         row.Size,
			Hash:         row.HashText.String,
			Algorithm:    row.Algorithm.String,
		})
	})
}

func (s *SQLiteDatabase) Summary(staleBefore time.Time) (*fk.IndexSummary, error) {
	row, err := s.q().Summary(context.Background(), staleBefore.Unix())
	if err != nil {
		return nil, fmt.Errorf("summarizing index: %w", err)
	}
	return &fk.IndexSummary{
		Devices:    row.Devices,
		Files:      row.Files,
		Hashed:     row.Hashed,
		Unhashed:   row.Files - row.Hashed,
		Stale:      row.Stale,
		TotalBytes: row.TotalBytes,
	}, nil
}

// Operation tracking

func (s *SQLiteDatabase) CreateOperation(runID, operation, parameters string, startedAt time.Time) (*fk.Operation, error) {
	if s.readOnly {
		return &fk.Operation{
			RunID:      runID,
			Operation:  operation,
			Parameters: parameters,
			StartedAt:  startedAt,
			Status:     "running",
		}, nil
	}
	row, err := s.q().InsertOperation(context.Background(), InsertOperationParams{
		RunID:      runID,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  startedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return toOperation(row), nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status string, finishedAt time.Time) error {
	if s.readOnly {
		return nil
	}
	err := s.q().FinishOperation(context.Background(), FinishOperationParams{
		FinishedAt: sql.NullTime{Time: finishedAt.UTC(), Valid: true},
		Status:     status,
		ID:         id,
	})
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]*fk.Operation, error) {
	rows, err := s.q().ListOperations(context.Background(), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	result := make([]*fk.Operation, len(rows))
	for i := range rows {
		result[i] = toOperation(rows[i])
	}
	return result, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
// It works on read-only stores too.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if s.tx != nil {
		return fmt.Errorf("backing up database: batch still open")
	}
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close rolls back any open batch and closes the connection.
func (s *SQLiteDatabase) Close() error {
	if err := s.Rollback(); err != nil {
		s.db.Close()
		return err
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Row mapping

func toDeviceIdentity(row Device) *fk.DeviceIdentity {
	return &fk.DeviceIdentity{ID: row.ID, UUID: row.UuidText}
}

func toFileRecord(row File) *fk.FileRecord {
	return &fk.FileRecord{
		ID:           row.ID,
		DeviceID:     row.DeviceID,
		RelativePath: row.RelativePath,
		Inode:        uint64(row.Inode),
		Size:         row.Size,
		ModTime:      time.Unix(0, row.Mtime),
	}
}

func toHashRecord(row Hash) *fk.HashRecord {
	rec := &fk.HashRecord{
		ID:           row.ID,
		FileID:       row.FileID,
		Hash:         row.HashText.String,
		Algorithm:    row.Algorithm.String,
		ObservedSize: -1,
	}
	if row.ComputedAt.Valid {
		rec.ComputedAt = time.Unix(row.ComputedAt.Int64, 0)
	}
	if row.ObservedSize.Valid {
		rec.ObservedSize = row.ObservedSize.Int64
	}
	return rec
}

func toOperation(row Operation) *fk.Operation {
	op := &fk.Operation{
		ID:         row.ID,
		RunID:      row.RunID,
		Operation:  row.Operation,
		Parameters: row.Parameters,
		StartedAt:  row.StartedAt,
		Status:     row.Status,
	}
	if row.FinishedAt.Valid {
		t := row.FinishedAt.Time
		op.FinishedAt = &t
	}
	return op
}

// Compile-time check that SQLiteDatabase implements fk.Database interface
var _ fk.Database = (*SQLiteDatabase)(nil)
