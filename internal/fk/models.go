package fk

import "time"

// DeviceIdentity is the stable identity of a storage volume.
// Rows are created the first time a volume is seen and are never updated or deleted.
type DeviceIdentity struct {
	ID   int64
	UUID string
}

// FileIdentity is the unique key of a FileRecord: the volume plus the path
// relative to that volume's mount point.
type FileIdentity struct {
	DeviceID     int64
	RelativePath string
}

// FileStat holds the stat fields the index tracks for change detection.
type FileStat struct {
	Inode   uint64
	Size    int64
	ModTime time.Time
}

// FileRecord is one file on one volume.
type FileRecord struct {
	ID           int64
	DeviceID     int64
	RelativePath string
	Inode        uint64
	Size         int64
	ModTime      time.Time
}

// Stat returns the tracked stat fields of the record.
func (r *FileRecord) Stat() FileStat {
	return FileStat{Inode: r.Inode, Size: r.Size, ModTime: r.ModTime}
}

// HashRecord holds the content hash of a FileRecord.
// An empty Hash means the file has never been hashed successfully
// (or its hash was invalidated by a stat change).
type HashRecord struct {
	ID           int64
	FileID       int64
	Hash         string
	Algorithm    string    // name of the HashAlgorithm that produced Hash
	ComputedAt   time.Time // zero when Hash is empty
	ObservedSize int64     // bytes read when Hash was computed; -1 when unknown
}

// Valid reports whether the record carries a hash.
func (h *HashRecord) Valid() bool {
	return h.Hash != ""
}

// CandidateKey is the stable ordering key of the hash work queue:
// tier 0 (never hashed, invalidated or size-mismatched) sorts before tier 1 (aged),
// then oldest computation first, then file ID.
type CandidateKey struct {
	Tier       int
	ComputedAt int64 // unix seconds, 0 when never computed
	FileID     int64
}

// Less reports whether k sorts before other.
func (k CandidateKey) Less(other CandidateKey) bool {
	if k.Tier != other.Tier {
		return k.Tier < other.Tier
	}
	if k.ComputedAt != other.ComputedAt {
		return k.ComputedAt < other.ComputedAt
	}
	return k.FileID < other.FileID
}

// HashCandidate is a file selected for (re)hashing.
type HashCandidate struct {
	Key        CandidateKey
	File       FileRecord
	Hash       HashRecord
	DeviceUUID string
}

// HashCandidateQuery selects the hash work queue.
type HashCandidateQuery struct {
	// StaleBefore marks hashes computed before this instant as aged.
	StaleBefore time.Time
	// CandidatesOnly restricts the queue to files whose size is shared by another file.
	CandidatesOnly bool
	// Algorithm, when set, puts hashes computed by any other algorithm in the
	// never-hashed tier.
	Algorithm string
	// HashedBefore, when set, drops files hashed at or after this instant.
	// A run passes its own start so files it rehashes are never queued again.
	HashedBefore time.Time
	// After, when set, returns only candidates that sort strictly after this key.
	After *CandidateKey
	Limit int
}

// IndexedFile is a file row joined with its hash, as read by the duplicate grouper.
// Hash is empty when the file is unhashed or its hash no longer matches its size.
type IndexedFile struct {
	FileID       int64
	DeviceID     int64
	DeviceUUID   string
	RelativePath string
	Inode        uint64
	Size         int64
	Hash         string
	Algorithm    string
}

// IndexSummary is a point-in-time count of the index contents.
type IndexSummary struct {
	Devices    int64
	Files      int64
	Hashed     int64
	Unhashed   int64
	Stale      int64
	TotalBytes int64
}

// Operation records one write-capable invocation of the tool.
type Operation struct {
	ID         int64
	RunID      string
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}
