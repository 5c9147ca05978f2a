package database

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the fixed, parameterized statements of the index.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Row types

type Device struct {
	ID       int64
	UuidText string
}

type File struct {
	ID           int64
	DeviceID     int64
	RelativePath string
	Inode        int64
	Size         int64
	Mtime        int64
}

type Hash struct {
	ID           int64
	FileID       int64
	HashText     sql.NullString
	ComputedAt   sql.NullInt64
	ObservedSize sql.NullInt64
	Algorithm    sql.NullString
}

type Operation struct {
	ID         int64
	RunID      string
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
}

type HashCandidateRow struct {
	Tier        int64
	ComputedKey int64
	File        File
	Hash        Hash
	UuidText    string
}

type IndexedFileRow struct {
	FileID       int64
	DeviceID     int64
	UuidText     string
	RelativePath string
	Inode        int64
	Size         int64
	HashText     sql.NullString
	Algorithm    sql.NullString
}

type SummaryRow struct {
	Devices    int64
	Files      int64
	Hashed     int64
	Stale      int64
	TotalBytes int64
}

// Devices

const listDevicesByUUID = `SELECT id, uuid_text FROM device WHERE uuid_text = ?1`

func (q *Queries) ListDevicesByUUID(ctx context.Context, uuidText string) ([]Device, error) {
	rows, err := q.db.QueryContext(ctx, listDevicesByUUID, uuidText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Device
	for rows.Next() {
		var i Device
		if err := rows.Scan(&i.ID, &i.UuidText); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertDevice = `INSERT INTO device (uuid_text) VALUES (?1) RETURNING id, uuid_text`

func (q *Queries) InsertDevice(ctx context.Context, uuidText string) (Device, error) {
	var i Device
	err := q.db.QueryRowContext(ctx, insertDevice, uuidText).Scan(&i.ID, &i.UuidText)
	return i, err
}

const listDevices = `SELECT id, uuid_text FROM device ORDER BY id`

func (q *Queries) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := q.db.QueryContext(ctx, listDevices)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Device
	for rows.Next() {
		var i Device
		if err := rows.Scan(&i.ID, &i.UuidText); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// Files

const fileColumns = `id, device_id, relative_path, inode, size, mtime`

func scanFile(row interface{ Scan(...any) error }) (File, error) {
	var i File
	err := row.Scan(&i.ID, &i.DeviceID, &i.RelativePath, &i.Inode, &i.Size, &i.Mtime)
	return i, err
}

const listFilesByIdentity = `SELECT ` + fileColumns + ` FROM file WHERE device_id = ?1 AND relative_path = ?2`

type FileIdentityParams struct {
	DeviceID     int64
	RelativePath string
}

func (q *Queries) ListFilesByIdentity(ctx context.Context, arg FileIdentityParams) ([]File, error) {
	rows, err := q.db.QueryContext(ctx, listFilesByIdentity, arg.DeviceID, arg.RelativePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []File
	for rows.Next() {
		i, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertFile = `INSERT INTO file (device_id, relative_path, inode, size, mtime)
VALUES (?1, ?2, ?3, ?4, ?5)
RETURNING ` + fileColumns

type InsertFileParams struct {
	DeviceID     int64
	RelativePath string
	Inode        int64
	Size         int64
	Mtime        int64
}

func (q *Queries) InsertFile(ctx context.Context, arg InsertFileParams) (File, error) {
	row := q.db.QueryRowContext(ctx, insertFile, arg.DeviceID, arg.RelativePath, arg.Inode, arg.Size, arg.Mtime)
	return scanFile(row)
}

const updateFile = `UPDATE file SET inode = ?1, size = ?2, mtime = ?3 WHERE id = ?4`

type UpdateFileParams struct {
	Inode int64
	Size  int64
	Mtime int64
	ID    int64
}

func (q *Queries) UpdateFile(ctx context.Context, arg UpdateFileParams) error {
	_, err := q.db.ExecContext(ctx, updateFile, arg.Inode, arg.Size, arg.Mtime, arg.ID)
	return err
}

// An empty prefix selects the whole device.
const listFilesUnder = `SELECT ` + fileColumns + ` FROM file
WHERE device_id = ?1
  AND (?2 = '' OR relative_path = ?2 OR substr(relative_path, 1, length(?2) + 1) = ?2 || '/')
ORDER BY relative_path`

type ListFilesUnderParams struct {
	DeviceID int64
	Prefix   string
}

func (q *Queries) ListFilesUnder(ctx context.Context, arg ListFilesUnderParams) ([]File, error) {
	rows, err := q.db.QueryContext(ctx, listFilesUnder, arg.DeviceID, arg.Prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []File
	for rows.Next() {
		i, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// Hashes

const hashColumns = `id, file_id, hash_text, computed_at, observed_size, algorithm`

const listHashesByFileID = `SELECT ` + hashColumns + ` FROM hash WHERE file_id = ?1`

func (q *Queries) ListHashesByFileID(ctx context.Context, fileID int64) ([]Hash, error) {
	rows, err := q.db.QueryContext(ctx, listHashesByFileID, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Hash
	for rows.Next() {
		var i Hash
		if err := rows.Scan(&i.ID, &i.FileID, &i.HashText, &i.ComputedAt, &i.ObservedSize, &i.Algorithm); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertHash = `INSERT INTO hash (file_id) VALUES (?1) RETURNING ` + hashColumns

func (q *Queries) InsertHash(ctx context.Context, fileID int64) (Hash, error) {
	var i Hash
	err := q.db.QueryRowContext(ctx, insertHash, fileID).
		Scan(&i.ID, &i.FileID, &i.HashText, &i.ComputedAt, &i.ObservedSize, &i.Algorithm)
	return i, err
}

// The hash row is created if the scan that created the file was interrupted
// between the two inserts.
const setHash = `INSERT INTO hash (file_id, hash_text, computed_at, observed_size, algorithm)
VALUES (?1, ?2, ?3, ?4, ?5)
ON CONFLICT (file_id) DO UPDATE SET
    hash_text = excluded.hash_text,
    computed_at = excluded.computed_at,
    observed_size = excluded.observed_size,
    algorithm = excluded.algorithm`

type SetHashParams struct {
	FileID       int64
	HashText     sql.NullString
	ComputedAt   sql.NullInt64
	ObservedSize sql.NullInt64
	Algorithm    sql.NullString
}

func (q *Queries) SetHash(ctx context.Context, arg SetHashParams) error {
	_, err := q.db.ExecContext(ctx, setHash, arg.FileID, arg.HashText, arg.ComputedAt, arg.ObservedSize, arg.Algorithm)
	return err
}

const invalidateHash = `UPDATE hash SET hash_text = NULL, computed_at = NULL, observed_size = NULL, algorithm = NULL WHERE file_id = ?1`

func (q *Queries) InvalidateHash(ctx context.Context, fileID int64) error {
	_, err := q.db.ExecContext(ctx, invalidateHash, fileID)
	return err
}

// Hash work queue.
//
// tier 0: never hashed, invalidated, hashed at a different size than the file now
// has, or hashed by another algorithm than ?8 when ?8 is set.
// tier 1: hashed before the stale cutoff.
// Rows are ordered by (tier, computed_key, file_id); ?4..?6 resume after a key when ?3 is set.
// A nonzero ?9 drops rows hashed at or after that second.
const hashCandidates = `WITH candidate AS (
    SELECT
        CASE
            WHEN h.hash_text IS NULL OR h.observed_size IS NULL OR h.observed_size != f.size
                OR (?8 != '' AND h.algorithm IS NOT ?8) THEN 0
            ELSE 1
        END AS tier,
        COALESCE(h.computed_at, 0) AS computed_key,
        f.id AS file_id, f.device_id, f.relative_path, f.inode, f.size, f.mtime,
        COALESCE(h.id, 0) AS hash_id, h.hash_text, h.computed_at, h.observed_size, h.algorithm,
        d.uuid_text
    FROM file f
    JOIN device d ON d.id = f.device_id
    LEFT JOIN hash h ON h.file_id = f.id
    WHERE ?1 = 0 OR f.size IN (SELECT size FROM file GROUP BY size HAVING COUNT(*) > 1)
)
SELECT tier, computed_key, file_id, device_id, relative_path, inode, size, mtime,
       hash_id, hash_text, computed_at, observed_size, algorithm, uuid_text
FROM candidate
WHERE (tier = 0 OR computed_key < ?2)
  AND (?3 = 0 OR (tier, computed_key, file_id) > (?4, ?5, ?6))
  AND (?9 = 0 OR computed_key < ?9)
ORDER BY tier, computed_key, file_id
LIMIT ?7`

const countHashCandidates = `WITH candidate AS (
    SELECT
        CASE
            WHEN h.hash_text IS NULL OR h.observed_size IS NULL OR h.observed_size != f.size
                OR (?8 != '' AND h.algorithm IS NOT ?8) THEN 0
            ELSE 1
        END AS tier,
        COALESCE(h.computed_at, 0) AS computed_key,
        f.size
    FROM file f
    LEFT JOIN hash h ON h.file_id = f.id
    WHERE ?1 = 0 OR f.size IN (SELECT size FROM file GROUP BY size HAVING COUNT(*) > 1)
)
SELECT COUNT(*), COALESCE(SUM(size), 0)
FROM candidate
WHERE (tier = 0 OR computed_key < ?2)
  AND (?9 = 0 OR computed_key < ?9)`

type HashCandidatesParams struct {
	CandidatesOnly bool
	StaleBefore    int64
	HasAfter       bool
	AfterTier      int64
	AfterComputed  int64
	AfterFileID    int64
	Limit          int64
	Algorithm      string
	HashedBefore   int64
}

func (q *Queries) HashCandidates(ctx context.Context, arg HashCandidatesParams) ([]HashCandidateRow, error) {
	rows, err := q.db.QueryContext(ctx, hashCandidates,
		arg.CandidatesOnly, arg.StaleBefore,
		arg.HasAfter, arg.AfterTier, arg.AfterComputed, arg.AfterFileID,
		arg.Limit, arg.Algorithm, arg.HashedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []HashCandidateRow
	for rows.Next() {
		var i HashCandidateRow
		if err := rows.Scan(
			&i.Tier, &i.ComputedKey,
			&i.File.ID, &i.File.DeviceID, &i.File.RelativePath, &i.File.Inode, &i.File.Size, &i.File.Mtime,
			&i.Hash.ID, &i.Hash.HashText, &i.Hash.ComputedAt, &i.Hash.ObservedSize, &i.Hash.Algorithm,
			&i.UuidText,
		); err != nil {
			return nil, err
		}
		i.Hash.FileID = i.File.ID
		items = append(items, i)
	}
	return items, rows.Err()
}

// CountHashCandidates ignores the cursor and limit fields of arg.
func (q *Queries) CountHashCandidates(ctx context.Context, arg HashCandidatesParams) (int64, int64, error) {
	var count, bytes int64
	err := q.db.QueryRowContext(ctx, countHashCandidates,
		arg.CandidatesOnly, arg.StaleBefore,
		nil, nil, nil, nil, nil,
		arg.Algorithm, arg.HashedBefore).Scan(&count, &bytes)
	return count, bytes, err
}

// Duplicate grouping reads every file with its hash. A hash taken at a different
// size than the file has now is reported as NULL.
const indexedFiles = `SELECT f.id, f.device_id, d.uuid_text, f.relative_path, f.inode, f.size,
       CASE WHEN h.observed_size = f.size THEN h.hash_text END AS hash_text,
       h.algorithm
FROM file f
JOIN device d ON d.id = f.device_id
LEFT JOIN hash h ON h.file_id = f.id
ORDER BY f.size DESC, h.algorithm, hash_text, f.device_id, f.inode, f.relative_path`

// EachIndexedFile streams rows to fn while the result set is open.
func (q *Queries) EachIndexedFile(ctx context.Context, fn func(IndexedFileRow) error) error {
	rows, err := q.db.QueryContext(ctx, indexedFiles)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var i IndexedFileRow
		if err := rows.Scan(&i.FileID, &i.DeviceID, &i.UuidText, &i.RelativePath, &i.Inode, &i.Size, &i.HashText, &i.Algorithm); err != nil {
			return err
		}
		if err := fn(i); err != nil {
			return err
		}
	}
	return rows.Err()
}

const summary = `SELECT
    (SELECT COUNT(*) FROM device),
    (SELECT COUNT(*) FROM file),
    (SELECT COUNT(*) FROM hash h JOIN file f ON f.id = h.file_id
        WHERE h.hash_text IS NOT NULL AND h.observed_size = f.size),
    (SELECT COUNT(*) FROM hash h JOIN file f ON f.id = h.file_id
        WHERE h.hash_text IS NOT NULL AND h.observed_size = f.size AND h.computed_at < ?1),
    (SELECT COALESCE(SUM(size), 0) FROM file)`

func (q *Queries) Summary(ctx context.Context, staleBefore int64) (SummaryRow, error) {
	var i SummaryRow
	err := q.db.QueryRowContext(ctx, summary, staleBefore).
		Scan(&i.Devices, &i.Files, &i.Hashed, &i.Stale, &i.TotalBytes)
	return i, err
}

// Operations

const operationColumns = `id, run_id, operation, parameters, started_at, finished_at, status`

func scanOperation(row interface{ Scan(...any) error }) (Operation, error) {
	var i Operation
	err := row.Scan(&i.ID, &i.RunID, &i.Operation, &i.Parameters, &i.StartedAt, &i.FinishedAt, &i.Status)
	return i, err
}

const insertOperation = `INSERT INTO operations (run_id, operation, parameters, started_at, status)
VALUES (?1, ?2, ?3, ?4, 'running')
RETURNING ` + operationColumns

type InsertOperationParams struct {
	RunID      string
	Operation  string
	Parameters string
	StartedAt  time.Time
}

func (q *Queries) InsertOperation(ctx context.Context, arg InsertOperationParams) (Operation, error) {
	row := q.db.QueryRowContext(ctx, insertOperation, arg.RunID, arg.Operation, arg.Parameters, arg.StartedAt)
	return scanOperation(row)
}

const finishOperation = `UPDATE operations SET finished_at = ?1, status = ?2 WHERE id = ?3`

type FinishOperationParams struct {
	FinishedAt sql.NullTime
	Status     string
	ID         int64
}

func (q *Queries) FinishOperation(ctx context.Context, arg FinishOperationParams) error {
	_, err := q.db.ExecContext(ctx, finishOperation, arg.FinishedAt, arg.Status, arg.ID)
	return err
}

const listOperations = `SELECT ` + operationColumns + ` FROM operations ORDER BY id DESC LIMIT ?1`

func (q *Queries) ListOperations(ctx context.Context, limit int64) ([]Operation, error) {
	rows, err := q.db.QueryContext(ctx, listOperations, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Operation
	for rows.Next() {
		i, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
