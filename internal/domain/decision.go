package domain

// DenialReason explains why the usage gate refused a request. Denials route
// the user to the upgrade flow; they are not system errors.
type DenialReason string

const (
	ReasonNoSubscription      DenialReason = "no_subscription"
	ReasonFreeQuotaExhausted  DenialReason = "free_quota_exhausted"
	ReasonSubscriptionExpired DenialReason = "subscription_expired"
)

// Decision is the outcome of a usage gate check.
type Decision struct {
	Allowed bool         `json:"allowed"`
	Reason  DenialReason `json:"reason,omitempty"`
}

// Allow is the decision for a permitted request.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny is the decision for a refused request.
func Deny(reason DenialReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Outcome labels the decision for logs and metrics.
func (d Decision) Outcome() string {
	if d.Allowed {
		return "allowed"
	}
	return string(d.Reason)
}
