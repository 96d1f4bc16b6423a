// Package scheduler runs the periodic rating recompute sweeps.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/addon-ratings/internal/config"
	prommetrics "github.com/aimd54/addon-ratings/internal/metrics"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

// Job names.
const (
	JobBayesian   = "bayesian_rating"
	JobAggregates = "rating_aggregates"
)

const batchSize = 100

// Recomputer recomputes rating statistics for every add-on.
type Recomputer interface {
	RecomputeAll(ctx context.Context, batchSize int, bayesianOnly bool) (int, error)
}

// Service handles periodic recompute scheduling.
type Service struct {
	config     *config.SchedulerConfig
	recomputer Recomputer
	log        *logger.Logger
	cron       *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(cfg *config.SchedulerConfig, recomputer Recomputer, log *logger.Logger) *Service {
	return &Service{
		config:     cfg,
		recomputer: recomputer,
		log:        log,
	}
}

// Start registers the sweeps and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}
	s.cron = cron.New(cron.WithLocation(location))

	jobs := []struct {
		name         string
		schedule     string
		bayesianOnly bool
	}{
		{JobAggregates, s.config.AggregatesCron, false},
		{JobBayesian, s.config.BayesianCron, true},
	}
	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		name, bayesianOnly := job.name, job.bayesianOnly
		if _, err := s.cron.AddFunc(job.schedule, func() {
			s.runRecompute(context.Background(), name, bayesianOnly)
		}); err != nil {
			return fmt.Errorf("failed to register %s job: %w", name, err)
		}
		s.log.Info().Str("job", name).Str("schedule", job.schedule).Msg("Recompute job registered")
	}

	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}
	s.log.Info().
		Str("timezone", s.config.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// runRecompute executes one sweep over every add-on.
func (s *Service) runRecompute(ctx context.Context, job string, bayesianOnly bool) {
	start := time.Now()
	s.log.Info().Str("job", job).Msg("Running recompute job")

	failed, err := s.recomputer.RecomputeAll(ctx, batchSize, bayesianOnly)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job).
			Dur("duration", time.Since(start)).
			Msg("Recompute job failed")
		prommetrics.RecordSchedulerJobRun(job, "error")
		return
	}

	status := "success"
	if failed > 0 {
		status = "partial"
	}
	prommetrics.RecordSchedulerJobRun(job, status)
	s.log.Info().
		Str("job", job).
		Int("failed_addons", failed).
		Dur("duration", time.Since(start)).
		Msg("Recompute job completed")
}
