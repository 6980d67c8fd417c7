// Package sweep removes output artifacts of terminal jobs past their
// retention window. Job records are kept, only the files and the paths
// pointing to them go away.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/printforge/slicerd/internal/storage"
	"github.com/printforge/slicerd/internal/store"
)

type Sweeper struct {
	db        *store.Store
	files     *storage.Storage
	interval  time.Duration
	retention time.Duration
	scheduler gocron.Scheduler
}

// New builds a sweeper. A retention of zero disables sweeping entirely:
// Start becomes a no-op and artifacts are kept forever.
func New(db *store.Store, files *storage.Storage, interval, retention time.Duration) *Sweeper {
	return &Sweeper{
		db:        db,
		files:     files,
		interval:  interval,
		retention: retention,
	}
}

// Start schedules periodic sweeps.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.retention <= 0 {
		slog.InfoContext(ctx, "artifact sweeping disabled")
		return nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.Sweep(ctx); err != nil {
				slog.ErrorContext(ctx, "artifact sweep failed", "error", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("initializing gocron job: %w", err)
	}

	s.scheduler = scheduler
	scheduler.Start()
	slog.InfoContext(ctx, "artifact sweeping enabled",
		"interval", s.interval.String(), "retention", s.retention.String())
	return nil
}

// Shutdown stops the scheduler. Safe to call when sweeping is disabled.
func (s *Sweeper) Shutdown() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

// Sweep runs one pass and returns how many jobs were cleaned. Partial
// failures skip the affected job and keep going.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.retention)
	jobs, err := s.db.ListExpiredJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing expired jobs: %w", err)
	}

	cleaned := 0
	for i := range jobs {
		job := &jobs[i]
		if err := s.files.CleanupOutput(job.ID); err != nil {
			slog.WarnContext(ctx, "removing job outputs failed", "job_id", job.ID, "error", err)
			continue
		}
		job.GcodePath = ""
		job.Project3MFPath = ""
		if err := s.db.SaveJob(ctx, job); err != nil {
			slog.WarnContext(ctx, "clearing artifact paths failed", "job_id", job.ID, "error", err)
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		slog.InfoContext(ctx, "swept expired job artifacts", "jobs", cleaned)
	}
	return cleaned, nil
}
