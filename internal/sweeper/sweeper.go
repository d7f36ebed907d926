// Package sweeper enforces the retention window: anything sitting in
// the upload or artifact directories longer than the window is deleted,
// whether or not a download ever happened.
package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fileforge/fileforge/internal/observability"
)

// Sweeper periodically removes aged files from a set of directories.
// Each directory is swept independently, and a failure on one entry
// never aborts the rest of the pass.
type Sweeper struct {
	dirs     []string
	window   time.Duration
	interval time.Duration
	logger   *observability.Logger
}

func New(dirs []string, window, interval time.Duration, logger *observability.Logger) *Sweeper {
	return &Sweeper{
		dirs:     dirs,
		window:   window,
		interval: interval,
		logger:   logger.WithComponent("sweeper"),
	}
}

// Run sweeps on the configured interval until ctx is cancelled. One
// pass runs immediately on startup to clear anything left behind by a
// previous process.
func (s *Sweeper) Run(ctx context.Context) {
	s.SweepOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce removes every file older than the retention window from
// each directory. Returns the number of files removed.
func (s *Sweeper) SweepOnce() int {
	cutoff := time.Now().Add(-s.window)
	removed := 0
	for _, dir := range s.dirs {
		removed += s.sweepDir(dir, cutoff)
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("retention sweep complete")
	}
	return removed
}

func (s *Sweeper) sweepDir(dir string, cutoff time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warn().Str("dir", dir).Err(err).Msg("could not list directory")
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn().Str("name", entry.Name()).Err(err).Msg("could not stat entry")
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Str("path", path).Err(err).Msg("could not remove aged file")
			continue
		}
		removed++
		s.logger.Debug().
			Str("path", path).
			Dur("age", time.Since(info.ModTime())).
			Msg("aged file removed")
	}
	return removed
}
