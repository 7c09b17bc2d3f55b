/**
 * @description
 * Entitlement events published to the message broker whenever a row changes
 * in a way other services care about (activation, free activation, expiry).
 */
package domain

import "time"

const (
	EventSubscriptionActivated = "subscription.activated"
	EventFreePlanActivated     = "subscription.free_activated"
	EventSubscriptionExpired   = "subscription.expired"
)

// EntitlementEvent is the payload written to the entitlement events exchange.
type EntitlementEvent struct {
	Type       string     `json:"type"`
	UserID     string     `json:"user_id"`
	PlanName   PlanName   `json:"plan_name"`
	ValidTill  *time.Time `json:"valid_till,omitempty"`
	PaymentID  string     `json:"payment_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
