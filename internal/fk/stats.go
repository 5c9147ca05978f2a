package fk

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// ScanStats are the counters of one inventory scan.
type ScanStats struct {
	DeviceUUID    string
	MountPoint    string
	Stated        int64 // regular files stat'ed successfully
	New           int64 // records created
	ChangedStat   int64 // records whose inode, size or mtime differed
	UnchangedStat int64
	Offline       int64 // files that vanished between listing and stat
	Symlinks      int64
	Special       int64 // devices, pipes, sockets
	Ignored       int64
	SkippedSmall  int64 // below the minimum size
	Missing       int64 // indexed under the scanned subtree but not found
	Errors        int64 // unreadable files or directories
	Bytes         int64 // total size of stat'ed files
	Duration      time.Duration
}

func (s *ScanStats) String() string {
	return fmt.Sprintf("stated:%d new:%d changed_stat:%d unchanged_stat:%d offline/deleted:%d "+
		"symlinks:%d special:%d ignored:%d small:%d missing:%d errors:%d bytes:%s in %s",
		s.Stated, s.New, s.ChangedStat, s.UnchangedStat, s.Offline,
		s.Symlinks, s.Special, s.Ignored, s.SkippedSmall, s.Missing, s.Errors,
		humanize.IBytes(uint64(s.Bytes)), s.Duration.Truncate(time.Millisecond))
}

// HashStats are the counters of one hash refresh run.
type HashStats struct {
	Candidates     int64 // queue length when the run started
	CandidateBytes int64
	Hashed         int64
	Bytes          int64 // bytes read while hashing
	Offline        int64 // device not mounted
	Deleted        int64 // file vanished since the scan
	Errors         int64
	Batches        int64 // batches committed
	Checkpoints    int64 // commits forced by the byte threshold
	Duration       time.Duration
}

func (s *HashStats) String() string {
	return fmt.Sprintf("hashed:%d/%d read:%s offline:%d deleted:%d errors:%d batches:%d in %s",
		s.Hashed, s.Candidates, humanize.IBytes(uint64(s.Bytes)),
		s.Offline, s.Deleted, s.Errors, s.Batches, s.Duration.Truncate(time.Millisecond))
}
