package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
	"github.com/StephenStolk/nutriapp-sub001/internal/metrics"
)

// Sweeper deactivates Pro subscriptions whose paid period has elapsed. It is
// safe to run at any time and any number of times.
type Sweeper struct {
	repo   Repository
	events eventNotifier
	logger zerolog.Logger
	nowFn  func() time.Time
}

// NewSweeper creates an expiry sweeper. publisher may be nil.
func NewSweeper(repo Repository, publisher EventPublisher, exchange string, logger zerolog.Logger) *Sweeper {
	logger = logger.With().Str("component", "expiry_sweeper").Logger()
	return &Sweeper{
		repo:   repo,
		events: newEventNotifier(publisher, exchange, logger),
		logger: logger,
		nowFn:  time.Now,
	}
}

// Sweep runs one pass and returns how many rows it deactivated.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.nowFn()
	userIDs, err := s.repo.DeactivateExpired(ctx, now)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return 0, err
	}

	metrics.SweepRuns.WithLabelValues("ok").Inc()
	metrics.SweepDeactivations.Add(float64(len(userIDs)))
	s.logger.Info().Int("deactivated", len(userIDs)).Msg("expiry sweep finished")

	for _, userID := range userIDs {
		s.events.notify(ctx, domain.EntitlementEvent{
			Type:       domain.EventSubscriptionExpired,
			UserID:     userID,
			PlanName:   domain.PlanPro,
			OccurredAt: now.UTC(),
		})
	}
	return len(userIDs), nil
}
