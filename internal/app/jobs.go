/**
 * @description
 * Scheduled job implementations for the in-process expiry sweep.
 */
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExpirySweeper is the sweep the scheduled job runs.
type ExpirySweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	sweeper ExpirySweeper
	timeout time.Duration
	logger  zerolog.Logger
}

// NewJobs creates a new Jobs runner. Each run is bounded by timeout.
func NewJobs(sweeper ExpirySweeper, timeout time.Duration, logger zerolog.Logger) *Jobs {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Jobs{
		sweeper: sweeper,
		timeout: timeout,
		logger:  logger.With().Str("component", "jobs").Logger(),
	}
}

// ExpireSubscriptions runs one expiry sweep. Failures are logged; the next
// scheduled run retries the whole sweep.
func (j *Jobs) ExpireSubscriptions() {
	j.logger.Info().Msg("starting subscription expiry job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	count, err := j.sweeper.Sweep(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("subscription expiry job failed")
		return
	}

	j.logger.Info().Int("deactivated", count).Msg("subscription expiry job finished")
}
