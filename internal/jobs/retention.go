package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	cron "github.com/robfig/cron/v3"

	"fetchd/internal/config"
	"fetchd/internal/metrics"
)

const defaultMaxAge = 24 * time.Hour

// SweepStats captures what one retention pass reclaimed.
type SweepStats struct {
	FilesDeleted   int64 `json:"deleted_files"`
	BytesReclaimed int64 `json:"bytes_reclaimed"`
	JobsEvicted    int64 `json:"jobs_evicted"`
}

// Sweeper reclaims artifacts older than maxAge from the download
// directory. Artifact reclamation never touches job records; a separate
// pass evicts finished job records older than jobTTL when it is set.
type Sweeper struct {
	dir    string
	maxAge time.Duration
	jobTTL time.Duration
	store  *Store
	logger *slog.Logger
	now    func() time.Time

	// mu serializes scheduled and on-demand sweeps.
	mu   sync.Mutex
	cron *cron.Cron
}

func NewSweeper(dir string, maxAge, jobTTL time.Duration, store *Store, logger *slog.Logger) *Sweeper {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		dir:    dir,
		maxAge: maxAge,
		jobTTL: jobTTL,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// SweeperFromConfig builds a Sweeper from retention settings.
func SweeperFromConfig(cfg *config.Config, store *Store, logger *slog.Logger) *Sweeper {
	return NewSweeper(
		cfg.Storage.DownloadDir,
		time.Duration(cfg.Retention.MaxAgeHours)*time.Hour,
		time.Duration(cfg.Retention.JobTTLHours)*time.Hour,
		store,
		logger,
	)
}

// Sweep runs one retention pass.
func (s *Sweeper) Sweep(ctx context.Context) (SweepStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats SweepStats
	now := s.now()

	entries, err := os.ReadDir(s.dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return stats, fmt.Errorf("read download dir: %w", err)
	}

	cutoff := now.Add(-s.maxAge)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("retention_remove_failed", "path", path, "error", err)
			}
			continue
		}
		stats.FilesDeleted++
		stats.BytesReclaimed += info.Size()
	}

	if s.store != nil && s.jobTTL > 0 {
		stats.JobsEvicted = int64(s.store.EvictTerminal(now.Add(-s.jobTTL).UTC()))
	}

	metrics.RecordRetentionFiles(stats.FilesDeleted, stats.BytesReclaimed)
	metrics.RecordRetentionJobs(stats.JobsEvicted)

	s.logger.Info("retention_sweep",
		"deleted_files", stats.FilesDeleted,
		"reclaimed", humanize.Bytes(uint64(stats.BytesReclaimed)),
		"jobs_evicted", stats.JobsEvicted,
	)
	return stats, nil
}

// Start runs Sweep on a cron schedule such as "@every 1h".
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("retention_sweep_failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule retention sweep %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
