package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
)

// ViewService serves fresh entitlement snapshots. It holds no state between calls.
type ViewService struct {
	repo  Repository
	nowFn func() time.Time
}

func NewViewService(repo Repository) *ViewService {
	return &ViewService{repo: repo, nowFn: time.Now}
}

// Snapshot reads the user's row and derives the current entitlement.
func (v *ViewService) Snapshot(ctx context.Context, userID string) (domain.EntitlementSnapshot, error) {
	sub, err := v.Inspect(ctx, userID)
	if err != nil {
		return domain.EntitlementSnapshot{}, err
	}
	return domain.NewSnapshot(sub, v.nowFn()), nil
}

// Inspect returns the raw row, or nil when the user has none.
func (v *ViewService) Inspect(ctx context.Context, userID string) (*domain.Subscription, error) {
	if userID == "" {
		return nil, domain.ErrAuthentication
	}
	sub, err := v.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return sub, nil
}
