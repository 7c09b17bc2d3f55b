/**
 * @description
 * This file implements the Entitlement Store: the only reader and writer of the
 * `subscriptions` table. Every write is either an upsert keyed by user_id or a
 * single conditional UPDATE, so concurrent callers never race through an
 * application-level read-modify-write.
 */
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
)

// ErrSubscriptionNotFound is returned by Get when the user has no row.
var ErrSubscriptionNotFound = domain.ErrSubscriptionNotFound

// Repository handles database operations for subscriptions.
type Repository struct {
	db    backend
	nowFn func() time.Time
}

func newRepository(db backend) *Repository {
	return &Repository{db: db, nowFn: time.Now}
}

// WithClock replaces the clock used for created_at, updated_at and usage stamps.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.nowFn = now
	return r
}

// EnsureSchema creates the subscriptions table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if err := r.db.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure subscriptions schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.ping(ctx)
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.close()
}

// Get retrieves the subscription row for a user.
func (r *Repository) Get(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := fmt.Sprintf(`
        SELECT %s
        FROM subscriptions
        WHERE user_id = %s
    `, subscriptionColumns, r.db.placeholder(1))

	sub, err := r.db.scanSubscription(r.db.queryRow(ctx, query, userID))
	if err != nil {
		if r.db.isNoRows(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// Upsert merges the patch into the user's row, creating it when absent.
// Applying the same patch twice leaves the row in the same state.
func (r *Repository) Upsert(ctx context.Context, userID string, patch domain.SubscriptionPatch) (*domain.Subscription, error) {
	query, args := buildUpsert(r.db, userID, patch, r.nowFn().UTC())
	sub, err := r.db.scanSubscription(r.db.queryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return sub, nil
}

// OpenCheckout points the user's row at a new pending Pro checkout, creating
// the row when absent. Any recorded payment id is cleared so only a callback
// for orderID can activate it. A row that currently grants Pro access keeps
// that access until the new payment is verified.
func (r *Repository) OpenCheckout(ctx context.Context, userID, customerID, orderID string, now time.Time) (*domain.Subscription, error) {
	query, args := buildOpenCheckout(r.db, userID, customerID, orderID, now.UTC())
	sub, err := r.db.scanSubscription(r.db.queryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("open checkout: %w", err)
	}
	return sub, nil
}

// SwitchToFree puts the user on the active Free plan in a single statement,
// creating the row when absent. It reports switched=false with a nil row when
// the row grants Pro access at now. Spent usage flags are kept unless the row
// has carried a paid Pro period.
func (r *Repository) SwitchToFree(ctx context.Context, userID string, now time.Time) (*domain.Subscription, bool, error) {
	query, args := buildSwitchToFree(r.db, userID, now.UTC())
	sub, err := r.db.scanSubscription(r.db.queryRow(ctx, query, args...))
	if err != nil {
		if r.db.isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("switch to free: %w", err)
	}
	return sub, true, nil
}

// ConditionalFlagSet flips a one-shot usage flag only when it is still false.
// It reports whether this call performed the flip. A missing row is reported
// as not flipped.
func (r *Repository) ConditionalFlagSet(ctx context.Context, userID string, feature domain.Feature) (bool, error) {
	if _, err := domain.ParseFeature(string(feature)); err != nil {
		return false, err
	}

	query, args := buildFlagSet(r.db, userID, feature, r.nowFn().UTC())
	affected, err := r.db.exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("set usage flag %s: %w", feature.UsageColumn(), err)
	}
	return affected == 1, nil
}

// ActivatePayment activates Pro for the user, but only while the row still
// carries orderID as its pending checkout and no payment has been recorded
// against it. It returns activated=false with a nil row when the condition
// does not hold.
func (r *Repository) ActivatePayment(ctx context.Context, userID, orderID, paymentID string, validTill time.Time) (*domain.Subscription, bool, error) {
	query, args := buildActivatePayment(r.db, userID, orderID, paymentID, validTill.UTC(), r.nowFn().UTC())
	sub, err := r.db.scanSubscription(r.db.queryRow(ctx, query, args...))
	if err != nil {
		if r.db.isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("activate payment: %w", err)
	}
	return sub, true, nil
}

// DeactivateExpired marks every active Pro row whose valid_till is before now
// as inactive and returns the affected user ids. A second call with the same
// now affects nothing.
func (r *Repository) DeactivateExpired(ctx context.Context, now time.Time) ([]string, error) {
	query, args := buildDeactivateExpired(r.db, now.UTC())
	userIDs, err := r.db.queryStrings(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("deactivate expired subscriptions: %w", err)
	}
	return userIDs, nil
}
