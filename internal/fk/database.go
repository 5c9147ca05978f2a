package fk

import "time"

// Database is the persistent index of devices, files and hashes.
//
// Writes are grouped into batches: Begin opens a batch, Checkpoint commits it and
// opens the next one, Commit commits and closes it, Rollback discards it.
// An interrupted process loses only the open batch.
//
// A read-only Database accepts every write and discards it.
type Database interface {
	// Batch control

	Begin() error
	Checkpoint() error
	Commit() error
	Rollback() error

	// ReadOnly reports whether writes are being suppressed.
	ReadOnly() bool

	// Device operations

	// GetOrCreateDevice returns the device with the given UUID, creating it if needed.
	// created is true when a new row was inserted.
	GetOrCreateDevice(uuid string) (device *DeviceIdentity, created bool, err error)

	// ListDevices returns all known devices ordered by ID.
	ListDevices() ([]*DeviceIdentity, error)

	// File operations

	// GetOrCreateFile returns the file with the given identity. If none exists, a new
	// record is inserted from identity and defaults and returned with created=true.
	// An existing record is returned unchanged.
	GetOrCreateFile(identity FileIdentity, defaults FileStat) (file *FileRecord, created bool, err error)

	// UpdateFile writes all non-identity fields of an existing record.
	UpdateFile(file *FileRecord) error

	// ListFilesUnder returns the files of a device whose relative path is prefix
	// or lies beneath it. An empty prefix matches every file on the device.
	ListFilesUnder(deviceID int64, prefix string) ([]*FileRecord, error)

	// Hash operations

	// GetOrCreateHash returns the hash record of a file, creating an empty one if needed.
	GetOrCreateHash(fileID int64) (hash *HashRecord, created bool, err error)

	// UpdateHash writes the hash value, computation time and observed size.
	UpdateHash(hash *HashRecord) error

	// InvalidateHash clears the hash of a file.
	InvalidateHash(fileID int64) error

	// NextHashCandidates returns up to q.Limit candidates in CandidateKey order.
	NextHashCandidates(q HashCandidateQuery) ([]*HashCandidate, error)

	// CountHashCandidates returns the number and total size of all candidates for q,
	// ignoring q.After and q.Limit.
	CountHashCandidates(q HashCandidateQuery) (count int64, bytes int64, err error)

	// EachIndexedFile calls fn for every file joined with its hash, ordered by size
	// descending, then hash, device and inode. Iteration stops at the first error.
	EachIndexedFile(fn func(*IndexedFile) error) error

	// Summary counts the index contents; hashes computed before staleBefore count as stale.
	Summary(staleBefore time.Time) (*IndexSummary, error)

	// Operation tracking

	CreateOperation(runID, operation, parameters string, startedAt time.Time) (*Operation, error)
	FinishOperation(id int64, status string, finishedAt time.Time) error
	ListOperations(limit int) ([]*Operation, error)

	// BackupTo writes a consistent copy of the store to destPath.
	BackupTo(destPath string) error

	// Close closes the store. An open batch is rolled back.
	Close() error
}
