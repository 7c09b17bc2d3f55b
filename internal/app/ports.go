/**
 * @description
 * Interfaces the entitlement services depend on. The store, the payment
 * gateway client and the event producer are injected so tests can swap in
 * fakes without touching the network.
 */
package app

import (
	"context"
	"time"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
)

// Repository defines the entitlement store operations the services need.
type Repository interface {
	Get(ctx context.Context, userID string) (*domain.Subscription, error)
	Upsert(ctx context.Context, userID string, patch domain.SubscriptionPatch) (*domain.Subscription, error)
	OpenCheckout(ctx context.Context, userID, customerID, orderID string, now time.Time) (*domain.Subscription, error)
	SwitchToFree(ctx context.Context, userID string, now time.Time) (*domain.Subscription, bool, error)
	ConditionalFlagSet(ctx context.Context, userID string, feature domain.Feature) (bool, error)
	ActivatePayment(ctx context.Context, userID, orderID, paymentID string, validTill time.Time) (*domain.Subscription, bool, error)
	DeactivateExpired(ctx context.Context, now time.Time) ([]string, error)
}

// Gateway defines the payment gateway calls used to open a checkout.
type Gateway interface {
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	CreateOrder(ctx context.Context, planID, customerID string) (string, error)
}

// EventPublisher publishes entitlement events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}
