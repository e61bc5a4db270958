// Package cleanup periodically prunes exported transcripts and archive rows.
package cleanup

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Pruner deletes archived runs started before cutoff
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result reports what one sweep removed
type Result struct {
	Files int
	Bytes int64
	Runs  int64
}

// Scheduler handles cleanup of old exports
type Scheduler struct {
	exportDir string
	interval  time.Duration
	maxAge    time.Duration
	archive   Pruner
	logger    *slog.Logger
	now       func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new cleanup scheduler. exportDir or archive may be
// empty/nil to skip that half of the sweep.
func NewScheduler(exportDir string, archive Pruner, interval, maxAge time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		exportDir: exportDir,
		interval:  interval,
		maxAge:    maxAge,
		archive:   archive,
		logger:    logger,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start runs a sweep now and then every interval until Stop
func (s *Scheduler) Start() {
	s.logger.Info("running initial cleanup")
	s.Sweep(context.Background())

	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.logger.Info("cleanup scheduler started",
		slog.Duration("interval", s.interval),
		slog.Duration("max_age", s.maxAge),
	)
}

// Stop stops the cleanup scheduler and waits for a running sweep
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.logger.Info("cleanup scheduler stopped")
}

// Sweep removes exports and archived runs older than the max age
func (s *Scheduler) Sweep(ctx context.Context) Result {
	var res Result
	if s.maxAge <= 0 {
		return res
	}
	cutoff := s.now().Add(-s.maxAge)

	if s.exportDir != "" {
		res.Files, res.Bytes = s.cleanOldFiles(cutoff)
	}

	if s.archive != nil {
		n, err := s.archive.Prune(ctx, cutoff)
		if err != nil {
			s.logger.Warn("failed to prune archive", slog.Any("error", err))
		}
		res.Runs = n
	}

	if res.Files > 0 || res.Runs > 0 {
		s.logger.Info("cleanup complete",
			slog.Int("files", res.Files),
			slog.Float64("freed_mb", float64(res.Bytes)/(1024*1024)),
			slog.Int64("runs", res.Runs),
		)
	}
	return res
}

// cleanOldFiles removes files last modified before cutoff, then any
// date directories left empty
func (s *Scheduler) cleanOldFiles(cutoff time.Time) (int, int64) {
	var (
		count int
		size  int64
		dirs  []string
	)

	err := filepath.WalkDir(s.exportDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if d.IsDir() {
			if path != s.exportDir {
				dirs = append(dirs, path)
			}
			return nil
		}

		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to delete old export", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		count++
		size += info.Size()
		s.logger.Debug("deleted old export", slog.String("file", filepath.Base(path)))
		return nil
	})
	if err != nil {
		s.logger.Warn("error during cleanup", slog.Any("error", err))
	}

	// deepest first so parents empty out after their children
	for i := len(dirs) - 1; i >= 0; i-- {
		os.Remove(dirs[i]) // only succeeds on empty dirs
	}
	return count, size
}
