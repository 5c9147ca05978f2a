package fk

import (
	"fmt"
	"path/filepath"
)

// FileCopy is one on-disk file of a duplicate group: a (device, inode) pair and
// every indexed path that points at it. More than one path means hard links.
type FileCopy struct {
	DeviceID   int64
	DeviceUUID string
	Inode      uint64
	// Paths are absolute when the device is mounted, else "uuid:relative_path".
	Paths []string
}

// HardLinked reports whether the copy is reachable through more than one path.
func (c *FileCopy) HardLinked() bool {
	return len(c.Paths) > 1
}

// DuplicateGroup is a set of indexed files sharing size and content hash.
type DuplicateGroup struct {
	Hash   string
	Size   int64
	Copies []*FileCopy
}

// Records is the number of file records in the group.
func (g *DuplicateGroup) Records() int {
	n := 0
	for _, c := range g.Copies {
		n += len(c.Paths)
	}
	return n
}

// WastedBytes is the space that independent copies beyond the first occupy.
// Hard links occupy no extra space.
func (g *DuplicateGroup) WastedBytes() int64 {
	if len(g.Copies) < 2 {
		return 0
	}
	return g.Size * int64(len(g.Copies)-1)
}

// DuplicateReport is the result of FindDuplicates.
type DuplicateReport struct {
	Groups      []*DuplicateGroup
	WastedBytes int64
}

// EachDuplicateGroup streams the index ordered by size and calls fn for every set
// of two or more records with equal size and hash, largest size first.
// Unhashed files never form a group.
func (s *FKService) EachDuplicateGroup(fn func(*DuplicateGroup) error) error {
	mounts, err := s.mountPoints()
	if err != nil {
		return err
	}

	g := &grouper{mounts: mounts, emit: fn}
	if err := s.database.EachIndexedFile(g.add); err != nil {
		return fmt.Errorf("reading index: %w", err)
	}
	return g.flush()
}

// FindDuplicates collects every duplicate group and the total wasted space.
func (s *FKService) FindDuplicates() (*DuplicateReport, error) {
	report := &DuplicateReport{}
	err := s.EachDuplicateGroup(func(g *DuplicateGroup) error {
		report.Groups = append(report.Groups, g)
		report.WastedBytes += g.WastedBytes()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("duplicate search complete", "groups", len(report.Groups), "wasted", report.WastedBytes)
	return report, nil
}

// grouper partitions a stream of files ordered by size, algorithm and hash in one pass.
type grouper struct {
	mounts  map[string]string
	emit    func(*DuplicateGroup) error
	current []*IndexedFile
}

func (g *grouper) add(f *IndexedFile) error {
	if f.Hash == "" {
		// Unhashed files stay out of every group, but still end a run.
		return g.flush()
	}
	if len(g.current) > 0 {
		head := g.current[0]
		if head.Size != f.Size || head.Algorithm != f.Algorithm || head.Hash != f.Hash {
			if err := g.flush(); err != nil {
				return err
			}
		}
	}
	g.current = append(g.current, f)
	return nil
}

func (g *grouper) flush() error {
	members := g.current
	g.current = nil
	if len(members) < 2 {
		return nil
	}

	group := &DuplicateGroup{Hash: members[0].Hash, Size: members[0].Size}
	var last *FileCopy
	for _, m := range members {
		// Members are ordered by device then inode, so links of one file are adjacent.
		if last == nil || last.DeviceID != m.DeviceID || last.Inode != m.Inode {
			last = &FileCopy{DeviceID: m.DeviceID, DeviceUUID: m.DeviceUUID, Inode: m.Inode}
			group.Copies = append(group.Copies, last)
		}
		last.Paths = append(last.Paths, g.locate(m))
	}
	return g.emit(group)
}

// locate renders the path of a record for display.
func (g *grouper) locate(f *IndexedFile) string {
	if mount, ok := g.mounts[f.DeviceUUID]; ok {
		return filepath.Join(mount, f.RelativePath)
	}
	return f.DeviceUUID + ":" + f.RelativePath
}
