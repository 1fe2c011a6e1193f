//go:build linux

package mount

import (
	"encoding/json"
	"os"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Statistics is a thread-safe record of magic-mount outcomes.
//
// All counters use atomic operations. The engine runs single-threaded today,
// but the counters are modelled as atomics so a future parallel orchestrator
// remains safe without revisiting this type (see SPEC_FULL.md §3.H).
type Statistics struct {
	totalMounts     atomic.Int64
	successfulMounts atomic.Int64
	failedMounts    atomic.Int64
	tmpfsCreated    atomic.Int64
	filesMounted    atomic.Int64
	dirsMounted     atomic.Int64
	symlinksCreated atomic.Int64
	overlayMounts   atomic.Int64
}

// NewStatistics returns a zeroed Statistics record.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) incTotal()      { s.totalMounts.Add(1) }
func (s *Statistics) incSuccessful() { s.successfulMounts.Add(1) }
func (s *Statistics) incFailed()     { s.failedMounts.Add(1) }
func (s *Statistics) incTmpfs()      { s.tmpfsCreated.Add(1) }
func (s *Statistics) incFiles()      { s.filesMounted.Add(1) }
func (s *Statistics) incDirs()       { s.dirsMounted.Add(1) }
func (s *Statistics) incSymlinks()   { s.symlinksCreated.Add(1) }

// IncrementOverlayStats bumps the overlay-mount counter.
//
// It is a counter surface for an overlay backend outside this package (see
// SPEC_FULL.md §6); nothing in this package calls it, and the magic-mount
// engine never counts its own mounts here.
func (s *Statistics) IncrementOverlayStats() { s.overlayMounts.Add(1) }

// ResetMountStatistics zeroes all counters.
func (s *Statistics) ResetMountStatistics() {
	s.totalMounts.Store(0)
	s.successfulMounts.Store(0)
	s.failedMounts.Store(0)
	s.tmpfsCreated.Store(0)
	s.filesMounted.Store(0)
	s.dirsMounted.Store(0)
	s.symlinksCreated.Store(0)
	s.overlayMounts.Store(0)
}

// Snapshot is a point-in-time, JSON-serialisable copy of Statistics.
type Snapshot struct {
	TotalMounts     int64   `json:"total_mounts"`
	SuccessfulMounts int64  `json:"successful_mounts"`
	FailedMounts    int64   `json:"failed_mounts"`
	TmpfsCreated    int64   `json:"tmpfs_created"`
	FilesMounted    int64   `json:"files_mounted"`
	DirsMounted     int64   `json:"dirs_mounted"`
	SymlinksCreated int64   `json:"symlinks_created"`
	OverlayMounts   int64   `json:"overlay_mounts"`
	SuccessRate     float64 `json:"success_rate"`
}

// Snapshot returns a consistent-enough point-in-time copy of the counters.
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		TotalMounts:      s.totalMounts.Load(),
		SuccessfulMounts: s.successfulMounts.Load(),
		FailedMounts:     s.failedMounts.Load(),
		TmpfsCreated:     s.tmpfsCreated.Load(),
		FilesMounted:     s.filesMounted.Load(),
		DirsMounted:      s.dirsMounted.Load(),
		SymlinksCreated:  s.symlinksCreated.Load(),
		OverlayMounts:    s.overlayMounts.Load(),
		SuccessRate:      s.SuccessRate(),
	}
}

// SuccessRate returns successful/total * 100, or 0 when total is 0.
func (s *Statistics) SuccessRate() float64 {
	total := s.totalMounts.Load()
	if total == 0 {
		return 0
	}

	return float64(s.successfulMounts.Load()) * 100.0 / float64(total)
}

// SaveMountStatistics serialises the record as JSON to path.
func (s *Statistics) SaveMountStatistics(path string, logger *zap.Logger) error {
	logger = nopIfNil(logger)

	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal mount statistics")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write mount statistics to %q", path)
	}

	logger.Debug("saved mount statistics", zap.String("path", path), zap.Int64("total", s.totalMounts.Load()))

	return nil
}

// humanizeBytes formats a byte count for debug logs; GetOptimalTmpfsSize in
// partitions.go uses it for the computed tmpfs size.
func humanizeBytes(n uint64) string {
	return humanize.IBytes(n)
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

// statsOrNew returns s, or a freshly allocated (discarded after use)
// Statistics when s is nil, so counter-incrementing code never has to guard
// against a nil receiver.
func statsOrNew(s *Statistics) *Statistics {
	if s == nil {
		return NewStatistics()
	}

	return s
}
