package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveState(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		sub  *Subscription
		want EntitlementState
	}{
		{"no row", nil, StateAnonymous},
		{"free inactive", &Subscription{PlanName: PlanFree}, StatePendingFree},
		{"free active", &Subscription{PlanName: PlanFree, IsActive: true}, StateActiveFree},
		{"pro pending", &Subscription{PlanName: PlanPro}, StatePendingPro},
		{"pro active without expiry fails closed", &Subscription{PlanName: PlanPro, IsActive: true}, StatePendingPro},
		{"pro active", &Subscription{PlanName: PlanPro, IsActive: true, ValidTill: &future}, StateActivePro},
		{"pro active at the boundary", &Subscription{PlanName: PlanPro, IsActive: true, ValidTill: &now}, StateActivePro},
		{"pro stale active", &Subscription{PlanName: PlanPro, IsActive: true, ValidTill: &past}, StateExpired},
		{"pro swept", &Subscription{PlanName: PlanPro, IsActive: false, ValidTill: &past}, StateExpired},
		{"pro inactive with future expiry", &Subscription{PlanName: PlanPro, IsActive: false, ValidTill: &future}, StateExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveState(tt.sub, now))
		})
	}
}

func TestNewSnapshot(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 1, 0)

	snap := NewSnapshot(&Subscription{
		PlanName:      PlanPro,
		IsActive:      true,
		ValidTill:     &future,
		UsedGetRecipe: true,
	}, now)
	assert.Equal(t, PlanPro, snap.Plan)
	assert.Equal(t, StateActivePro, snap.State)
	assert.True(t, snap.HasSubscription)
	assert.True(t, snap.UsedGetRecipe)
	assert.Equal(t, now, snap.FetchedAt)

	empty := NewSnapshot(nil, now)
	assert.Equal(t, StateAnonymous, empty.State)
	assert.False(t, empty.HasSubscription)
	assert.Empty(t, empty.Plan)
}

func TestParseFeature(t *testing.T) {
	f, err := ParseFeature(" Analyze_Food ")
	assert.NoError(t, err)
	assert.Equal(t, FeatureAnalyzeFood, f)
	assert.Equal(t, "used_analyze_food", f.UsageColumn())

	_, err = ParseFeature("chat")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParsePlanName(t *testing.T) {
	p, err := ParsePlanName("pro")
	assert.NoError(t, err)
	assert.Equal(t, PlanPro, p)

	_, err = ParsePlanName("enterprise")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTypedErrorsUnwrap(t *testing.T) {
	cause := assert.AnError
	var err error = &GatewayError{Op: "create_order", StatusCode: 503, Err: cause}
	assert.True(t, IsGatewayError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "status 503")

	err = &StoreWriteError{Op: "activate", Err: cause}
	assert.True(t, IsStoreWriteError(err))
	assert.False(t, IsGatewayError(err))
}
