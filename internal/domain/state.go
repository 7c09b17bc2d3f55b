package domain

import "time"

// EntitlementState is derived from the stored fields of a subscription row.
// It is never persisted.
type EntitlementState string

const (
	StateAnonymous   EntitlementState = "anonymous"
	StatePendingFree EntitlementState = "pending_free"
	StatePendingPro  EntitlementState = "pending_pro"
	StateActiveFree  EntitlementState = "active_free"
	StateActivePro   EntitlementState = "active_pro"
	StateExpired     EntitlementState = "expired"
)

// GrantsAccess reports whether the state lets the user reach gated features at all.
// ActiveFree still goes through the one-shot usage flags.
func (s EntitlementState) GrantsAccess() bool {
	return s == StateActiveFree || s == StateActivePro
}

// DeriveState maps a row (nil when absent) to its entitlement state at now.
//
// A Pro row marked active but missing valid_till breaks the row invariant; it
// is treated as pending so it never grants access.
func DeriveState(sub *Subscription, now time.Time) EntitlementState {
	if sub == nil {
		return StateAnonymous
	}

	switch sub.PlanName {
	case PlanFree:
		if sub.IsActive {
			return StateActiveFree
		}
		return StatePendingFree
	case PlanPro:
		if sub.ValidTill == nil {
			return StatePendingPro
		}
		if sub.IsActive && !sub.ValidTill.Before(now) {
			return StateActivePro
		}
		return StateExpired
	default:
		return StateAnonymous
	}
}
