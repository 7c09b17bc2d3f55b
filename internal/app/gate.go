package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
	"github.com/StephenStolk/nutriapp-sub001/internal/metrics"
)

// UsageGate is the checkpoint every gated AI feature calls before doing work.
type UsageGate struct {
	repo   Repository
	logger zerolog.Logger
	nowFn  func() time.Time
}

// NewUsageGate creates a usage gate over the entitlement store.
func NewUsageGate(repo Repository, logger zerolog.Logger) *UsageGate {
	return &UsageGate{
		repo:   repo,
		logger: logger.With().Str("component", "usage_gate").Logger(),
		nowFn:  time.Now,
	}
}

// CheckAndConsume decides whether userID may use feature right now.
//
// Pro is unmetered and never touches the usage flags. A Pro row whose
// valid_till has passed is denied even if the sweep has not deactivated it
// yet. Free users consume their single use through one conditional write, so
// concurrent requests for the same feature produce exactly one Allowed.
// Denials are returned as decisions, not errors; an error means the store
// could not be consulted and the request must not proceed.
func (g *UsageGate) CheckAndConsume(ctx context.Context, userID string, feature domain.Feature) (domain.Decision, error) {
	if userID == "" {
		return domain.Decision{}, domain.ErrAuthentication
	}
	if _, err := domain.ParseFeature(string(feature)); err != nil {
		return domain.Decision{}, err
	}

	decision, err := g.decide(ctx, userID, feature)
	if err != nil {
		metrics.GateDecisions.WithLabelValues(string(feature), "error").Inc()
		g.logger.Error().Err(err).Str("user_id", userID).Str("feature", string(feature)).Msg("usage gate failed closed")
		return domain.Decision{}, err
	}

	metrics.GateDecisions.WithLabelValues(string(feature), decision.Outcome()).Inc()
	g.logger.Debug().
		Str("user_id", userID).
		Str("feature", string(feature)).
		Str("outcome", decision.Outcome()).
		Msg("usage gate decision")
	return decision, nil
}

func (g *UsageGate) decide(ctx context.Context, userID string, feature domain.Feature) (domain.Decision, error) {
	sub, err := g.repo.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrSubscriptionNotFound) {
			return domain.Decision{}, fmt.Errorf("load subscription: %w", err)
		}
		sub = nil
	}

	switch domain.DeriveState(sub, g.nowFn()) {
	case domain.StateActivePro:
		return domain.Allow(), nil
	case domain.StateExpired:
		return domain.Deny(domain.ReasonSubscriptionExpired), nil
	case domain.StateActiveFree:
		flipped, err := g.repo.ConditionalFlagSet(ctx, userID, feature)
		if err != nil {
			return domain.Decision{}, err
		}
		if flipped {
			return domain.Allow(), nil
		}
		return domain.Deny(domain.ReasonFreeQuotaExhausted), nil
	default:
		return domain.Deny(domain.ReasonNoSubscription), nil
	}
}
