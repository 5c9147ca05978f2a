package fk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// Defaults for HashOptions.
const (
	DefaultHashBatchSize     = 100
	DefaultCommitBytes       = 1 << 30 // 1 GiB
	DefaultProgressThreshold = 100 << 20
	DefaultReportInterval    = 10 * time.Second
)

// HashOptions control a hash refresh run.
type HashOptions struct {
	// MaxAge is how long a computed hash stays fresh. Older hashes are recomputed
	// after every never-hashed file.
	MaxAge time.Duration
	// CandidatesOnly restricts the run to files whose size is shared by another file.
	CandidatesOnly bool
	// Algorithm is the content hash; nil selects sha256.
	Algorithm *HashAlgorithm
	// BatchSize is the number of candidates fetched and committed together.
	BatchSize int
	// BlockSize is the read size when streaming file content.
	BlockSize int
	// CommitBytes forces a checkpoint after this many bytes have been read.
	CommitBytes int64
	// ProgressThreshold enables per-file progress for files at least this large.
	ProgressThreshold int64
	// ReportInterval is the minimum time between throughput reports.
	ReportInterval time.Duration
}

func (o *HashOptions) setDefaults() error {
	if o.Algorithm == nil {
		alg, err := GetHashAlgorithm("sha256")
		if err != nil {
			return err
		}
		o.Algorithm = alg
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultHashBatchSize
	}
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.CommitBytes <= 0 {
		o.CommitBytes = DefaultCommitBytes
	}
	if o.ProgressThreshold <= 0 {
		o.ProgressThreshold = DefaultProgressThreshold
	}
	if o.ReportInterval <= 0 {
		o.ReportInterval = DefaultReportInterval
	}
	return nil
}

// RefreshHashes hashes every file that has no hash yet and then every file whose
// hash is older than opts.MaxAge, oldest first.
//
// Candidates are fetched opts.BatchSize at a time by walking a keyset cursor over
// the queue order. Files hashed since the run started are left out of the queue,
// so a file is fetched at most once even when its size no longer matches the index.
// Hashes made by another algorithm count as missing. Each batch is committed when
// it finishes, and an extra checkpoint is taken whenever opts.CommitBytes have been
// read. Cancelling ctx discards only the uncommitted part of the current batch.
func (s *FKService) RefreshHashes(ctx context.Context, opts HashOptions) (stats *HashStats, err error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	started := s.clock.Now()
	stats = &HashStats{}

	query := HashCandidateQuery{
		StaleBefore:    started.Add(-opts.MaxAge),
		CandidatesOnly: opts.CandidatesOnly,
		Algorithm:      opts.Algorithm.Name,
		HashedBefore:   started,
		Limit:          opts.BatchSize,
	}

	stats.Candidates, stats.CandidateBytes, err = s.database.CountHashCandidates(query)
	if err != nil {
		return nil, fmt.Errorf("counting hash candidates: %w", err)
	}

	mounts, err := s.mountPoints()
	if err != nil {
		return nil, err
	}

	s.logger.Info("hash refresh started",
		"candidates", stats.Candidates,
		"bytes", humanize.IBytes(uint64(stats.CandidateBytes)),
		"max_age", opts.MaxAge.String(),
		"candidates_only", opts.CandidatesOnly,
		"algorithm", opts.Algorithm.Name,
		"dry_run", s.database.ReadOnly())

	reporter := newThroughputReporter(s.clock, s.logger, opts.ReportInterval, stats.Candidates, stats.CandidateBytes)

	for {
		batch, err := s.database.NextHashCandidates(query)
		if err != nil {
			return nil, fmt.Errorf("selecting hash candidates: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if err := s.hashBatch(ctx, batch, mounts, opts, stats, reporter); err != nil {
			return nil, err
		}
		stats.Batches++

		last := batch[len(batch)-1].Key
		query.After = &last
	}

	stats.Duration = s.clock.Now().Sub(started)
	s.logger.Info("hash refresh complete", "stats", stats.String())
	return stats, nil
}

// hashBatch hashes one batch inside its own transaction.
func (s *FKService) hashBatch(ctx context.Context, batch []*HashCandidate, mounts map[string]string, opts HashOptions, stats *HashStats, reporter *throughputReporter) (err error) {
	if err := s.database.Begin(); err != nil {
		return fmt.Errorf("starting batch: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := s.database.Rollback(); rbErr != nil {
				s.logger.Error("rolling back hash batch", "error", rbErr)
			}
		}
	}()

	var sinceCommit int64
	for _, c := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}

		mount, ok := mounts[c.DeviceUUID]
		if !ok {
			stats.Offline++
			s.logger.Debug("device offline", "uuid", c.DeviceUUID, "path", c.File.RelativePath)
			continue
		}
		path := filepath.Join(mount, c.File.RelativePath)

		sum, read, err := s.hashOne(path, c.File.Size, opts, stats, reporter)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				stats.Deleted++
				s.logger.Debug("file deleted since scan", "path", path)
				continue
			}
			stats.Errors++
			s.logger.Warn("cannot hash file", "path", path, "error", err)
			continue
		}
		if read != c.File.Size {
			s.logger.Warn("file size changed since scan", "path", path,
				"indexed", c.File.Size, "read", read)
		}

		rec := c.Hash
		rec.FileID = c.File.ID
		rec.Hash = sum
		rec.Algorithm = opts.Algorithm.Name
		rec.ComputedAt = s.clock.Now()
		rec.ObservedSize = read
		if err := s.database.UpdateHash(&rec); err != nil {
			return fmt.Errorf("storing hash for %s: %w", path, err)
		}

		stats.Hashed++
		stats.Bytes += read
		sinceCommit += read
		if sinceCommit >= opts.CommitBytes {
			if err := s.database.Checkpoint(); err != nil {
				return fmt.Errorf("committing hashes: %w", err)
			}
			stats.Checkpoints++
			sinceCommit = 0
		}
		reporter.report(stats, 0)
	}

	if err := s.database.Commit(); err != nil {
		return fmt.Errorf("committing hash batch: %w", err)
	}
	return nil
}

// hashOne opens and hashes a single file.
func (s *FKService) hashOne(path string, size int64, opts HashOptions, stats *HashStats, reporter *throughputReporter) (string, int64, error) {
	f, err := s.fsmgr.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	var progress func(int64)
	if size >= opts.ProgressThreshold {
		s.logger.Info("hashing large file", "path", path, "size", humanize.IBytes(uint64(size)))
		progress = func(read int64) {
			reporter.reportFile(path, read, size, stats)
		}
	}

	return HashReader(f, opts.Algorithm, opts.BlockSize, progress)
}
