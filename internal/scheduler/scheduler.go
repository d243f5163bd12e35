// Package scheduler runs periodic maintenance on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/transcoder"
)

// DefaultSchedule runs cleanup every half hour
const DefaultSchedule = "@every 30m"

const cleanupLock = "cleanup:workspaces"

// Locker keeps two instances from sweeping the same directory at once
type Locker interface {
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, resource string) error
}

// Config configures workspace cleanup
type Config struct {
	Schedule string
	TempDir  string
	MaxAge   time.Duration
}

// Scheduler removes abandoned trim workspaces and clips
type Scheduler struct {
	cfg    Config
	locker Locker
	cron   *cron.Cron
	logger *logging.Logger
	now    func() time.Time
}

// New creates a scheduler. locker may be nil for a single instance.
func New(cfg Config, locker Locker, logger *logging.Logger) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 2 * time.Hour
	}
	return &Scheduler{
		cfg:    cfg,
		locker: locker,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Start schedules cleanup and blocks until ctx is done
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunCleanup(ctx); err != nil {
			s.logger.WithError(err).Error("Workspace cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.logger.WithField("schedule", s.cfg.Schedule).Info("Scheduler started")
	s.cron.Start()

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("Scheduler stopped")
	return ctx.Err()
}

// RunCleanup removes trim workspaces and clips older than the configured age
// and returns how many it removed
func (s *Scheduler) RunCleanup(ctx context.Context) (int, error) {
	if s.locker != nil {
		ok, err := s.locker.AcquireLock(ctx, cleanupLock, 10*time.Minute)
		if err != nil {
			return 0, fmt.Errorf("failed to acquire cleanup lock: %w", err)
		}
		if !ok {
			s.logger.Debug("Cleanup already running elsewhere")
			return 0, nil
		}
		defer func() {
			if err := s.locker.ReleaseLock(ctx, cleanupLock); err != nil {
				s.logger.WithError(err).Warn("Failed to release cleanup lock")
			}
		}()
	}

	entries, err := os.ReadDir(s.cfg.TempDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read temp dir: %w", err)
	}

	cutoff := s.now().Add(-s.cfg.MaxAge)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, transcoder.WorkspacePrefix) && !strings.HasPrefix(name, transcoder.ClipPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.cfg.TempDir, name)
		if err := os.RemoveAll(path); err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to remove stale workspace")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Removed stale trim workspaces")
	}
	return removed, nil
}
