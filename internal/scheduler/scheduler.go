// Package scheduler runs the server's background jobs: life regeneration,
// expired-session cleanup and the nightly backup export.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/config"
	"deepsafe/internal/service"
)

const (
	regenEvery = time.Minute
	sweepEvery = time.Hour
	jobTimeout = 5 * time.Minute
)

// Regenerator applies life regeneration to every profile.
type Regenerator interface {
	RegenerateAll(ctx context.Context) (int, error)
}

// SessionSweeper deletes refresh sessions that expired before now.
type SessionSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Exporter writes a backup to object storage.
type Exporter interface {
	ExportTo(ctx context.Context, store service.ObjectStore, prefix string) (string, error)
}

// Jobs holds the job dependencies. Backup and Store may be nil, which
// disables the backup job.
type Jobs struct {
	Regen    Regenerator
	Sessions SessionSweeper
	Backup   Exporter
	Store    service.ObjectStore
}

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	cron gocron.Scheduler
	jobs Jobs
	cfg  config.BackupConfig
	ctx  context.Context
	now  func() time.Time
}

// New registers every job. Jobs do not run until Start.
func New(ctx context.Context, jobs Jobs, cfg config.BackupConfig, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	cron, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s := &Scheduler{cron: cron, jobs: jobs, cfg: cfg, ctx: ctx, now: time.Now}

	if _, err := cron.NewJob(
		gocron.DurationJob(regenEvery),
		gocron.NewTask(s.regenerate),
		gocron.WithName("regenerate_lives"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("failed to schedule regeneration: %w", err)
	}

	if _, err := cron.NewJob(
		gocron.DurationJob(sweepEvery),
		gocron.NewTask(s.sweepSessions),
		gocron.WithName("sweep_sessions"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("failed to schedule session cleanup: %w", err)
	}

	if cfg.Enabled && jobs.Backup != nil && jobs.Store != nil {
		if _, err := cron.NewJob(
			gocron.CronJob(cfg.Schedule, false),
			gocron.NewTask(s.backup),
			gocron.WithName("backup"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("failed to schedule backup %q: %w", cfg.Schedule, err)
		}
	} else if cfg.Enabled {
		log.Warn().Msg("Backups enabled but object storage is not configured, skipping backup job")
	}

	return s, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Jobs())).Msg("Scheduler started")
}

// Stop waits for running jobs and stops the scheduler.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

// JobNames returns the registered job names.
func (s *Scheduler) JobNames() []string {
	jobs := s.cron.Jobs()
	names := make([]string, len(jobs))
	for i, j := range jobs {
		names[i] = j.Name()
	}
	return names
}

func (s *Scheduler) regenerate() {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	n, err := s.jobs.Regen.RegenerateAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Life regeneration failed")
		return
	}
	if n > 0 {
		log.Info().Int("profiles", n).Msg("Lives regenerated")
	}
}

func (s *Scheduler) sweepSessions() {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	n, err := s.jobs.Sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		log.Error().Err(err).Msg("Session cleanup failed")
		return
	}
	log.Debug().Int64("sessions", n).Msg("Expired sessions deleted")
}

func (s *Scheduler) backup() {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	key, err := s.jobs.Backup.ExportTo(ctx, s.jobs.Store, s.cfg.Prefix)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled backup failed")
		return
	}
	log.Info().Str("key", key).Msg("Scheduled backup completed")
}
