package fk_test

import (
	"errors"
	"testing"
	"time"

	"fk-go/internal/fk"
	"fk-go/internal/testutil"
)

func (e *env) duplicates(t *testing.T) *fk.DuplicateReport {
	t.Helper()
	report, err := e.svc.FindDuplicates()
	if err != nil {
		t.Fatalf("FindDuplicates() error = %v", err)
	}
	return report
}

func TestFKService_FindDuplicates(t *testing.T) {
	t.Run("groups equal content and folds hard links", func(t *testing.T) {
		e := newEnv(t)
		a := e.write(t, "a.bin", "same bytes")
		e.write(t, "b.bin", "same bytes")
		e.write(t, "c.bin", "diff bytes")
		e.write(t, "unique.bin", "nothing like it")
		testutil.HardLink(t, a, e.vol.Path("link.bin"))
		e.scan(t)
		e.refresh(t, fk.HashOptions{MaxAge: 30 * day})

		report := e.duplicates(t)
		if len(report.Groups) != 1 {
			t.Fatalf("len(Groups) = %d, want 1", len(report.Groups))
		}
		g := report.Groups[0]
		if g.Hash != testutil.SHA256Hex([]byte("same bytes")) {
			t.Errorf("Hash = %s, want digest of shared content", g.Hash)
		}
		if g.Records() != 3 {
			t.Errorf("Records() = %d, want 3", g.Records())
		}
		if len(g.Copies) != 2 {
			t.Fatalf("len(Copies) = %d, want 2", len(g.Copies))
		}

		var linked *fk.FileCopy
		for _, c := range g.Copies {
			if c.HardLinked() {
				if linked != nil {
					t.Fatal("more than one copy reported as hard linked")
				}
				linked = c
			}
		}
		if linked == nil {
			t.Fatal("no copy reported as hard linked")
		}
		if len(linked.Paths) != 2 || linked.Paths[0] != a || linked.Paths[1] != e.vol.Path("link.bin") {
			t.Errorf("linked Paths = %v, want [%s %s]", linked.Paths, a, e.vol.Path("link.bin"))
		}

		if g.WastedBytes() != int64(len("same bytes")) {
			t.Errorf("WastedBytes() = %d, want %d", g.WastedBytes(), len("same bytes"))
		}
		if report.WastedBytes != g.WastedBytes() {
			t.Errorf("report WastedBytes = %d, want %d", report.WastedBytes, g.WastedBytes())
		}
	})

	t.Run("hard links alone waste nothing", func(t *testing.T) {
		e := newEnv(t)
		a := e.write(t, "a.bin", "linked")
		testutil.HardLink(t, a, e.vol.Path("b.bin"))
		e.scan(t)
		e.refresh(t, fk.HashOptions{MaxAge: 30 * day})

		report := e.duplicates(t)
		if len(report.Groups) != 1 {
			t.Fatalf("len(Groups) = %d, want 1", len(report.Groups))
		}
		if report.WastedBytes != 0 {
			t.Errorf("WastedBytes = %d, want 0", report.WastedBytes)
		}
	})

	t.Run("unhashed files are never grouped", func(t *testing.T) {
		e := newEnv(t)
		e.write(t, "a.bin", "same bytes")
		e.write(t, "b.bin", "same bytes")
		e.scan(t)

		if report := e.duplicates(t); len(report.Groups) != 0 {
			t.Errorf("len(Groups) = %d before hashing, want 0", len(report.Groups))
		}

		e.refresh(t, fk.HashOptions{MaxAge: 30 * day})
		if report := e.duplicates(t); len(report.Groups) != 1 {
			t.Fatalf("len(Groups) = %d after hashing, want 1", len(report.Groups))
		}

		testutil.SetModTime(t, e.vol.Path("b.bin"), time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
		e.scan(t)
		if report := e.duplicates(t); len(report.Groups) != 0 {
			t.Errorf("len(Groups) = %d after stat change, want 0", len(report.Groups))
		}
	})

	t.Run("largest files first", func(t *testing.T) {
		e := newEnv(t)
		e.write(t, "small1", "abc")
		e.write(t, "small2", "abc")
		e.write(t, "large1", "0123456789")
		e.write(t, "large2", "0123456789")
		e.scan(t)
		e.refresh(t, fk.HashOptions{MaxAge: 30 * day})

		report := e.duplicates(t)
		if len(report.Groups) != 2 {
			t.Fatalf("len(Groups) = %d, want 2", len(report.Groups))
		}
		if report.Groups[0].Size != 10 || report.Groups[1].Size != 3 {
			t.Errorf("group sizes = %d, %d, want 10, 3", report.Groups[0].Size, report.Groups[1].Size)
		}
		if report.WastedBytes != 13 {
			t.Errorf("WastedBytes = %d, want 13", report.WastedBytes)
		}
	})

	t.Run("digests of different algorithms never group", func(t *testing.T) {
		e := newEnv(t)
		e.write(t, "a.bin", "same bytes")
		e.write(t, "b.bin", "same bytes")
		e.scan(t)
		e.refresh(t, fk.HashOptions{MaxAge: 30 * day})

		h := e.hash(t, "b.bin")
		h.Algorithm = "sha1"
		if err := e.db.UpdateHash(h); err != nil {
			t.Fatalf("UpdateHash() error = %v", err)
		}

		if report := e.duplicates(t); len(report.Groups) != 0 {
			t.Errorf("len(Groups) = %d, want 0", len(report.Groups))
		}
	})

	t.Run("offline devices are shown by uuid", func(t *testing.T) {
		e := newEnv(t)
		e.write(t, "a.bin", "same bytes")
		e.write(t, "b.bin", "same bytes")
		e.scan(t)
		e.refresh(t, fk.HashOptions{MaxAge: 30 * day})
		e.vol.Unplug()

		report := e.duplicates(t)
		if len(report.Groups) != 1 {
			t.Fatalf("len(Groups) = %d, want 1", len(report.Groups))
		}
		var paths []string
		for _, c := range report.Groups[0].Copies {
			paths = append(paths, c.Paths...)
		}
		want := []string{"1111-AAAA:a.bin", "1111-AAAA:b.bin"}
		if len(paths) != 2 || !((paths[0] == want[0] && paths[1] == want[1]) || (paths[0] == want[1] && paths[1] == want[0])) {
			t.Errorf("paths = %v, want %v", paths, want)
		}
	})
}

func TestFKService_EachDuplicateGroup_StopsOnError(t *testing.T) {
	e := newEnv(t)
	e.write(t, "a1", "aaaa")
	e.write(t, "a2", "aaaa")
	e.write(t, "b1", "bbb")
	e.write(t, "b2", "bbb")
	e.scan(t)
	e.refresh(t, fk.HashOptions{MaxAge: 30 * day})

	errStop := errors.New("stop")
	calls := 0
	err := e.svc.EachDuplicateGroup(func(*fk.DuplicateGroup) error {
		calls++
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("EachDuplicateGroup() error = %v, want %v", err, errStop)
	}
	if calls != 1 {
		t.Errorf("callback calls = %d, want 1", calls)
	}
}
