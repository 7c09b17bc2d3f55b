/**
 * @description
 * Cron scheduler setup for the expiry sweep.
 */
package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	jobs     *Jobs
	schedule string
	logger   zerolog.Logger
}

// NewScheduler creates a new scheduler instance running the sweep on schedule
// (standard five-field cron syntax).
func NewScheduler(jobs *Jobs, schedule string, logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(&logger)),
		cron.SkipIfStillRunning(cron.PrintfLogger(&logger)),
	))

	return &Scheduler{
		cron:     c,
		jobs:     jobs,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.jobs.ExpireSubscriptions); err != nil {
		return fmt.Errorf("schedule subscription expiry job %q: %w", s.schedule, err)
	}
	s.logger.Info().Str("schedule", s.schedule).Msg("scheduled subscription expiry job")

	s.cron.Start()
	return nil
}

// Stop stops the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
