package fk

import (
	"time"

	"github.com/dustin/go-humanize"
)

// throughputReporter logs aggregate hashing throughput at most once per interval.
type throughputReporter struct {
	clock      Clock
	logger     Logger
	interval   time.Duration
	started    time.Time
	lastReport time.Time
	totalFiles int64
	totalBytes int64
}

func newThroughputReporter(clock Clock, logger Logger, interval time.Duration, totalFiles, totalBytes int64) *throughputReporter {
	now := clock.Now()
	return &throughputReporter{
		clock:      clock,
		logger:     logger,
		interval:   interval,
		started:    now,
		lastReport: now,
		totalFiles: totalFiles,
		totalBytes: totalBytes,
	}
}

// due reports whether an interval has passed since the last report.
func (r *throughputReporter) due() bool {
	return r.interval > 0 && r.clock.Now().Sub(r.lastReport) >= r.interval
}

// report logs run totals if an interval has passed. inFlight is the number of
// bytes already read from the file currently being hashed.
func (r *throughputReporter) report(stats *HashStats, inFlight int64) {
	if !r.due() {
		return
	}
	now := r.clock.Now()
	r.lastReport = now

	done := stats.Bytes + inFlight
	elapsed := now.Sub(r.started).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(done) / elapsed
	}

	eta := "unknown"
	if rate > 0 && r.totalBytes > done {
		eta = time.Duration(float64(r.totalBytes-done) / rate * float64(time.Second)).Truncate(time.Second).String()
	}

	r.logger.Info("hash progress",
		"files", stats.Hashed,
		"of", r.totalFiles,
		"read", humanize.IBytes(uint64(done)),
		"total", humanize.IBytes(uint64(r.totalBytes)),
		"rate", humanize.IBytes(uint64(rate))+"/s",
		"eta", eta,
	)
}

// reportFile logs progress through one large file, followed by the run totals,
// if an interval has passed.
func (r *throughputReporter) reportFile(path string, read, size int64, stats *HashStats) {
	if !r.due() {
		return
	}
	var pct float64
	if size > 0 {
		pct = float64(read) * 100 / float64(size)
	}
	r.logger.Info("hashing file", "path", path,
		"read", humanize.IBytes(uint64(read)),
		"size", humanize.IBytes(uint64(size)),
		"percent", int(pct))
	r.report(stats, read)
}
