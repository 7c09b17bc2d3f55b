package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
	"github.com/StephenStolk/nutriapp-sub001/internal/metrics"
)

const publishTimeout = 5 * time.Second

// eventNotifier publishes entitlement events on a best effort basis. A failed
// publish is logged and counted, never returned to the caller.
type eventNotifier struct {
	publisher EventPublisher
	exchange  string
	logger    zerolog.Logger
}

func newEventNotifier(publisher EventPublisher, exchange string, logger zerolog.Logger) eventNotifier {
	return eventNotifier{publisher: publisher, exchange: exchange, logger: logger}
}

func (n eventNotifier) notify(ctx context.Context, event domain.EntitlementEvent) {
	if n.publisher == nil || n.exchange == "" {
		return
	}

	// The request may already be finishing; give the broker its own deadline.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := n.publisher.Publish(pubCtx, n.exchange, event.Type, event); err != nil {
		metrics.EventPublishFailures.WithLabelValues(event.Type).Inc()
		n.logger.Warn().Err(err).
			Str("event_type", event.Type).
			Str("user_id", event.UserID).
			Msg("failed to publish entitlement event")
	}
}
