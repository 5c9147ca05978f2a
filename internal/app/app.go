package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fk-go/internal/config"
	"fk-go/internal/database"
	"fk-go/internal/devices"
	"fk-go/internal/fk"
	"fk-go/internal/fs"
)

// FKApp is the application layer between the CLI and FKService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the store lifecycle on Close.
type FKApp struct {
	cfg     *config.Config
	db      fk.Database
	service *fk.FKService
	clock   fk.Clock
	logger  fk.Logger
	op      *RunOperation
	logFile io.Closer
	dryRun  bool
}

// NewFKApp creates a fully wired FKApp from the given config.
// operation identifies the CLI command being run (e.g. "scan", "hash").
// dryRun opens the index read-only; every write becomes a no-op.
// The caller must call Close when done.
func NewFKApp(cfg *config.Config, operation string, dryRun bool) (*FKApp, error) {
	return newFKApp(cfg, operation, dryRun, os.Stderr, fk.RealClock{}, fk.UUIDGenerator{})
}

func newFKApp(cfg *config.Config, operation string, dryRun bool, console io.Writer, clock fk.Clock, ids fk.IDGenerator) (*FKApp, error) {
	enumerator, err := devices.NewEnumeratorFromConfig(cfg.Devices)
	if err != nil {
		return nil, fmt.Errorf("creating device enumerator: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, dryRun)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	runID := ids.New()
	logger, logFile, err := newLogger(cfg.Log, runID, console)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	fsmgr := fs.NewOSFilesystemManager(cfg.Scan.Ignore)
	adapter := &slogAdapter{l: logger}
	svc := fk.NewFKService(db, fsmgr, enumerator, adapter, clock)

	return &FKApp{
		cfg:     cfg,
		db:      db,
		service: svc,
		clock:   clock,
		logger:  adapter,
		op:      NewRunOperation(runID, operation),
		logFile: logFile,
		dryRun:  dryRun,
	}, nil
}

// RunID identifies this invocation in the log and the operation history.
func (a *FKApp) RunID() string {
	return a.op.RunID
}

// DryRun reports whether the index was opened read-only.
func (a *FKApp) DryRun() bool {
	return a.dryRun
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for index-mutating commands.
func (a *FKApp) persistOperation(parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	dbOp, err := a.db.CreateOperation(a.op.RunID, a.op.Operation, parameters, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// record marks the operation failed when err is non-nil and returns err.
func (a *FKApp) record(err error) error {
	if err != nil {
		a.op.Status = StatusError
	}
	return err
}

// Scan canonicalizes rawPath and indexes every file beneath it.
// minSize < 0 selects the configured minimum.
func (a *FKApp) Scan(rawPath string, minSize int64) (*fk.ScanStats, error) {
	root, err := canonicalPath(rawPath)
	if err != nil {
		return nil, a.record(err)
	}
	if minSize < 0 {
		minSize = a.cfg.Scan.MinSize
	}

	if err := a.persistOperation(formatParameters("root", root, "min_size", minSize)); err != nil {
		return nil, a.record(err)
	}

	stats, err := a.service.Scan(root, fk.ScanOptions{
		MinSize:   minSize,
		BatchSize: a.cfg.Scan.BatchSize,
	})
	return stats, a.record(err)
}

// HashRequest holds the command-line overrides of the hash config.
// Zero values keep the configured setting.
type HashRequest struct {
	MaxAge         string
	CandidatesOnly bool
	BatchSize      int
}

// hashOptions merges the hash config with req.
func (a *FKApp) hashOptions(req HashRequest) (fk.HashOptions, error) {
	hc := a.cfg.Hash
	if req.MaxAge != "" {
		hc.MaxAge = req.MaxAge
	}
	if req.BatchSize > 0 {
		hc.BatchSize = req.BatchSize
	}

	maxAge, err := hc.MaxAgeDuration()
	if err != nil {
		return fk.HashOptions{}, fmt.Errorf("max age: %w", err)
	}
	interval, err := hc.ReportIntervalDuration()
	if err != nil {
		return fk.HashOptions{}, err
	}
	alg, err := fk.GetHashAlgorithm(hc.Algorithm)
	if err != nil {
		return fk.HashOptions{}, err
	}

	return fk.HashOptions{
		MaxAge:            maxAge,
		CandidatesOnly:    req.CandidatesOnly,
		Algorithm:         alg,
		BatchSize:         hc.BatchSize,
		BlockSize:         hc.BlockSize,
		CommitBytes:       hc.CommitBytes,
		ProgressThreshold: hc.ProgressThreshold,
		ReportInterval:    interval,
	}, nil
}

// RefreshHashes backfills missing hashes and recomputes aged ones.
func (a *FKApp) RefreshHashes(ctx context.Context, req HashRequest) (*fk.HashStats, error) {
	opts, err := a.hashOptions(req)
	if err != nil {
		return nil, a.record(err)
	}

	params := formatParameters("max_age", opts.MaxAge, "candidates_only", opts.CandidatesOnly,
		"batch_size", opts.BatchSize, "algorithm", opts.Algorithm.Name)
	if err := a.persistOperation(params); err != nil {
		return nil, a.record(err)
	}

	stats, err := a.service.RefreshHashes(ctx, opts)
	if errors.Is(err, context.Canceled) {
		a.logger.Warn("hash refresh interrupted; committed batches are kept")
	}
	return stats, a.record(err)
}

// FindDuplicates reports every set of files sharing size and content hash.
func (a *FKApp) FindDuplicates() (*fk.DuplicateReport, error) {
	return a.service.FindDuplicates()
}

// Summary counts the index contents, using the configured max age for staleness.
func (a *FKApp) Summary() (*fk.IndexSummary, error) {
	maxAge, err := a.cfg.Hash.MaxAgeDuration()
	if err != nil {
		return nil, fmt.Errorf("max age: %w", err)
	}
	return a.service.Summary(maxAge)
}

// History returns the most recent operations.
func (a *FKApp) History(limit int) ([]*fk.Operation, error) {
	return a.service.History(limit)
}

// Backup writes a snapshot of the index to rawPath, which must not exist.
func (a *FKApp) Backup(rawPath string) (string, error) {
	dest, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("backup destination %s already exists", dest)
	}
	if err := a.db.BackupTo(dest); err != nil {
		return "", err
	}
	a.logger.Info("index backed up", "dest", dest)
	return dest, nil
}

// Close finalizes the operation and closes all resources.
// For persisted operations the operation record is finished with its status first.
func (a *FKApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status, a.clock.Now()); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing index: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// canonicalPath makes rawPath absolute and resolves symlinks.
func canonicalPath(rawPath string) (string, error) {
	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return resolved, nil
}
