package archive

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultPrefix     = "gamdl_"
	DefaultRetention  = 24 * time.Hour
	DefaultInterval   = 12 * time.Hour
	DefaultFirstDelay = 30 * time.Second
)

type SweepResult struct {
	Removed int
	Errors  int
}

// SweepWorkspaces removes top-level directories under base whose name starts
// with prefix and whose mtime is older than retention. Failures are counted
// and logged; the sweep always visits every candidate.
func SweepWorkspaces(base, prefix string, retention time.Duration, logger *slog.Logger) SweepResult {
	if logger == nil {
		logger = slog.Default()
	}
	var res SweepResult
	entries, err := os.ReadDir(base)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("workspace cleanup: read base failed", "base", base, "error", err)
			res.Errors++
		}
		return res
	}

	now := time.Now()
	cutoff := now.Add(-retention)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		path := filepath.Join(base, e.Name())
		info, err := e.Info()
		if err != nil {
			res.Errors++
			logger.Warn("workspace cleanup: stat failed", "path", path, "error", err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			res.Errors++
			logger.Warn("failed to remove workspace", "path", path, "error", err)
			continue
		}
		res.Removed++
		logger.Debug("removed stale workspace", "path", path, "age", humanize.RelTime(info.ModTime(), now, "old", "ahead"))
	}

	if res.Removed > 0 || res.Errors > 0 {
		logger.Info("workspace cleanup finished", "base", base, "removed", res.Removed, "errors", res.Errors)
	}
	return res
}

// Sweeper runs SweepWorkspaces at startup and then periodically.
type Sweeper struct {
	Base       string
	Prefix     string
	Retention  time.Duration
	Interval   time.Duration
	FirstDelay time.Duration
	Logger     *slog.Logger
}

func (s Sweeper) sweep() SweepResult {
	prefix := s.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	retention := s.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	return SweepWorkspaces(s.Base, prefix, retention, s.Logger)
}

// Run sweeps once immediately, again after FirstDelay, then every Interval
// until ctx is done.
func (s Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.sweep()

	first := time.NewTimer(s.FirstDelay)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
		s.sweep()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}
