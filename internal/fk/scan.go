package fk

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// DefaultScanBatchSize is the number of files processed between index commits.
const DefaultScanBatchSize = 1000

// ScanOptions control an inventory scan.
type ScanOptions struct {
	// MinSize skips regular files smaller than this many bytes.
	MinSize int64
	// BatchSize is the number of files between checkpoints.
	BatchSize int
}

// Scan walks root, records every regular file in the index keyed by the owning
// volume and its path relative to the volume's mount point, and detects stat drift
// on files already indexed. A drifted file has its stored stat overwritten and its
// hash invalidated.
//
// Per-file failures are counted and skipped. The scan fails only when the root
// cannot be read, no volume owns it, or the index itself fails.
func (s *FKService) Scan(root string, opts ScanOptions) (stats *ScanStats, err error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultScanBatchSize
	}
	started := s.clock.Now()
	stats = &ScanStats{}

	root = filepath.Clean(root)
	resolved, err := s.ResolveDevice(root)
	if err != nil {
		return nil, err
	}
	stats.DeviceUUID = resolved.Device.UUID
	stats.MountPoint = resolved.MountPoint

	relRoot, err := resolved.RelativePath(root)
	if err != nil {
		return nil, err
	}

	s.logger.Info("scan started", "root", root, "uuid", resolved.Device.UUID,
		"mount", resolved.MountPoint, "dry_run", s.database.ReadOnly())

	if err := s.database.Begin(); err != nil {
		return nil, fmt.Errorf("starting batch: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := s.database.Rollback(); rbErr != nil {
				s.logger.Error("rolling back scan batch", "error", rbErr)
			}
		}
	}()

	device, _, err := s.database.GetOrCreateDevice(resolved.Device.UUID)
	if err != nil {
		return nil, fmt.Errorf("recording device: %w", err)
	}

	seen := make(map[string]struct{})
	var pending int

	walkErr := s.fsmgr.Walk(root, func(path string, kind EntryKind, werr error) error {
		if werr != nil {
			if path == root {
				return fmt.Errorf("reading scan root: %w", werr)
			}
			stats.Errors++
			s.logger.Warn("cannot read entry", "path", path, "error", werr)
			return nil
		}

		switch kind {
		case KindDir:
			return nil
		case KindSymlink:
			stats.Symlinks++
			s.logger.Debug("skipping symlink", "path", path)
			return nil
		case KindOther:
			stats.Special++
			return nil
		}

		rel, err := resolved.RelativePath(path)
		if err != nil {
			stats.Errors++
			s.logger.Warn("cannot relate path to mount point", "path", path, "error", err)
			return nil
		}
		seen[rel] = struct{}{}

		ignored, err := s.fsmgr.IsIgnored(root, path)
		if err != nil {
			stats.Errors++
			s.logger.Warn("checking ignore rules", "path", path, "error", err)
			return nil
		}
		if ignored {
			stats.Ignored++
			return nil
		}

		st, err := s.fsmgr.Lstat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				stats.Offline++
				s.logger.Debug("file vanished before stat", "path", path)
				return nil
			}
			stats.Errors++
			s.logger.Warn("cannot stat file", "path", path, "error", err)
			return nil
		}
		stats.Stated++
		stats.Bytes += st.Size

		if st.Size < opts.MinSize {
			stats.SkippedSmall++
			return nil
		}

		if err := s.recordFile(device, rel, st, stats); err != nil {
			if errors.Is(err, ErrDuplicateIdentity) {
				stats.Errors++
				s.logger.Warn("skipping file", "path", path, "error", err)
				return nil
			}
			return err
		}

		pending++
		if pending >= opts.BatchSize {
			if err := s.database.Checkpoint(); err != nil {
				return fmt.Errorf("committing scan batch: %w", err)
			}
			pending = 0
			s.logger.Debug("scan checkpoint", "stated", stats.Stated)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if err := s.database.Commit(); err != nil {
		return nil, fmt.Errorf("committing scan: %w", err)
	}

	missing, err := s.countMissing(device.ID, relRoot, seen)
	if err != nil {
		return nil, err
	}
	stats.Missing = missing

	stats.Duration = s.clock.Now().Sub(started)
	s.logger.Info("scan complete", "stats", stats.String())
	return stats, nil
}

// recordFile upserts one file record and compares its stored stat with st.
func (s *FKService) recordFile(device *DeviceIdentity, rel string, st *FileStat, stats *ScanStats) error {
	identity := FileIdentity{DeviceID: device.ID, RelativePath: rel}
	rec, created, err := s.database.GetOrCreateFile(identity, *st)
	if err != nil {
		return fmt.Errorf("recording file %s: %w", rel, err)
	}

	if created {
		if _, _, err := s.database.GetOrCreateHash(rec.ID); err != nil {
			return fmt.Errorf("recording hash for %s: %w", rel, err)
		}
		stats.New++
		s.logger.Debug("new file", "path", rel, "size", st.Size)
		return nil
	}

	changed := statChanges(rec.Stat(), *st)
	if len(changed) == 0 {
		stats.UnchangedStat++
		return nil
	}

	stats.ChangedStat++
	s.logger.Info("file changed", "path", rel, "fields", strings.Join(changed, ","))

	rec.Inode = st.Inode
	rec.Size = st.Size
	rec.ModTime = st.ModTime
	if err := s.database.UpdateFile(rec); err != nil {
		return fmt.Errorf("updating file %s: %w", rel, err)
	}
	if err := s.database.InvalidateHash(rec.ID); err != nil {
		return fmt.Errorf("invalidating hash for %s: %w", rel, err)
	}
	return nil
}

// statChanges names the tracked fields that differ between stored and current.
func statChanges(stored, current FileStat) []string {
	var changed []string
	if stored.Inode != current.Inode {
		changed = append(changed, "inode")
	}
	if stored.Size != current.Size {
		changed = append(changed, "size")
	}
	if !stored.ModTime.Equal(current.ModTime) {
		changed = append(changed, "mtime")
	}
	return changed
}

// countMissing counts indexed files under relRoot that the walk did not see.
func (s *FKService) countMissing(deviceID int64, relRoot string, seen map[string]struct{}) (int64, error) {
	prefix := relRoot
	if prefix == "." {
		prefix = ""
	}
	files, err := s.database.ListFilesUnder(deviceID, prefix)
	if err != nil {
		return 0, fmt.Errorf("listing indexed files: %w", err)
	}

	var missing int64
	for _, f := range files {
		if _, ok := seen[f.RelativePath]; ok {
			continue
		}
		missing++
		s.logger.Debug("indexed file not found", "path", f.RelativePath)
	}
	return missing, nil
}
