/**
 * @description
 * This file defines the core domain models for the entitlement service.
 * It includes the Subscription struct that maps to the single-row-per-user
 * `subscriptions` table, the partial-update type used for upserts, and the
 * plan and feature enums shared by every layer.
 */
package domain

import (
	"fmt"
	"strings"
	"time"
)

// PlanName is the plan a subscription row is on.
type PlanName string

const (
	PlanFree PlanName = "Free"
	PlanPro  PlanName = "Pro"
)

// ParsePlanName accepts the plan names case-insensitively.
func ParsePlanName(raw string) (PlanName, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "free":
		return PlanFree, nil
	case "pro":
		return PlanPro, nil
	default:
		return "", fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, raw)
	}
}

// Feature is a gated AI feature. Free users get exactly one use of each.
type Feature string

const (
	FeatureMealPlanner Feature = "meal_planner"
	FeatureAnalyzeFood Feature = "analyze_food"
	FeatureGetRecipe   Feature = "get_recipe"
)

// Features lists every gated feature.
var Features = []Feature{FeatureMealPlanner, FeatureAnalyzeFood, FeatureGetRecipe}

// ParseFeature validates a feature name taken from a URL or request body.
func ParseFeature(raw string) (Feature, error) {
	f := Feature(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Features {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown feature %q", ErrInvalidInput, raw)
}

// UsageColumn is the one-shot usage flag column backing the feature.
func (f Feature) UsageColumn() string {
	return "used_" + string(f)
}

// Subscription represents a user's entitlement row in the database.
type Subscription struct {
	UserID    string     `json:"user_id"`
	PlanName  PlanName   `json:"plan_name"`
	IsActive  bool       `json:"is_active"`
	ValidTill *time.Time `json:"valid_till,omitempty"`

	UsedMealPlanner     bool       `json:"used_meal_planner"`
	UsedAnalyzeFood     bool       `json:"used_analyze_food"`
	UsedGetRecipe       bool       `json:"used_get_recipe"`
	LastUsedAnalyzeFood *time.Time `json:"last_used_analyze_food,omitempty"`

	// Opaque gateway identifiers. GatewaySubscriptionID carries the order (or
	// subscription) id of the most recent checkout.
	CustomerID            string `json:"customer_id"`
	GatewaySubscriptionID string `json:"gateway_subscription_id"`
	GatewayPaymentID      string `json:"gateway_payment_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Used reports the usage flag for a feature.
func (s *Subscription) Used(f Feature) bool {
	switch f {
	case FeatureMealPlanner:
		return s.UsedMealPlanner
	case FeatureAnalyzeFood:
		return s.UsedAnalyzeFood
	case FeatureGetRecipe:
		return s.UsedGetRecipe
	}
	return false
}

// SubscriptionPatch carries the fields an Upsert should write. Nil fields are
// left untouched on an existing row and take the column default on insert.
type SubscriptionPatch struct {
	PlanName  *PlanName
	IsActive  *bool
	ValidTill *time.Time
	// ClearValidTill writes NULL to valid_till. It wins over ValidTill.
	ClearValidTill bool

	UsedMealPlanner *bool
	UsedAnalyzeFood *bool
	UsedGetRecipe   *bool

	CustomerID            *string
	GatewaySubscriptionID *string
	GatewayPaymentID      *string
}

// IsEmpty reports whether the patch would write nothing.
func (p SubscriptionPatch) IsEmpty() bool {
	return p.PlanName == nil && p.IsActive == nil && p.ValidTill == nil && !p.ClearValidTill &&
		p.UsedMealPlanner == nil && p.UsedAnalyzeFood == nil && p.UsedGetRecipe == nil &&
		p.CustomerID == nil && p.GatewaySubscriptionID == nil && p.GatewayPaymentID == nil
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// EntitlementSnapshot is the DTO the client entitlement view consumes. It is
// always a fresh read of the store, stamped with the time it was taken.
type EntitlementSnapshot struct {
	Plan            PlanName         `json:"plan,omitempty"`
	State           EntitlementState `json:"state"`
	HasSubscription bool             `json:"has_subscription"`
	IsActive        bool             `json:"is_active"`
	ValidTill       *time.Time       `json:"valid_till,omitempty"`
	UsedMealPlanner bool             `json:"used_meal_planner"`
	UsedAnalyzeFood bool             `json:"used_analyze_food"`
	UsedGetRecipe   bool             `json:"used_get_recipe"`
	FetchedAt       time.Time        `json:"fetched_at"`
}

// NewSnapshot builds the view DTO for a row, which may be nil when the user has none.
func NewSnapshot(sub *Subscription, now time.Time) EntitlementSnapshot {
	state := DeriveState(sub, now)
	snap := EntitlementSnapshot{
		State:           state,
		HasSubscription: state.GrantsAccess(),
		FetchedAt:       now,
	}
	if sub == nil {
		return snap
	}
	snap.Plan = sub.PlanName
	snap.IsActive = sub.IsActive
	snap.ValidTill = sub.ValidTill
	snap.UsedMealPlanner = sub.UsedMealPlanner
	snap.UsedAnalyzeFood = sub.UsedAnalyzeFood
	snap.UsedGetRecipe = sub.UsedGetRecipe
	return snap
}
