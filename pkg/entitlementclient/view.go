package entitlementclient

import (
	"context"
	"sync"
)

// TokenSource returns the current session token.
type TokenSource func(ctx context.Context) (string, error)

// View is a pull-based copy of the caller's entitlement. It only changes when
// Refresh succeeds; actions that change entitlement on the server refresh the
// view afterwards instead of guessing the outcome locally.
type View struct {
	client *Client
	token  TokenSource

	mu         sync.RWMutex
	snapshot   *Snapshot
	refreshing int
}

// NewView creates an empty view. It reports Loading until the first Refresh succeeds.
func NewView(client *Client, token TokenSource) *View {
	return &View{client: client, token: token}
}

// Plan is the stored plan name, or "" when unknown or absent.
func (v *View) Plan() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.snapshot == nil {
		return ""
	}
	return v.snapshot.Plan
}

// Loading reports whether no snapshot has been fetched yet or a refresh is in flight.
func (v *View) Loading() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshot == nil || v.refreshing > 0
}

// HasSubscription reports whether the last snapshot grants access.
func (v *View) HasSubscription() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshot != nil && v.snapshot.HasSubscription
}

// Snapshot returns a copy of the last fetched snapshot.
func (v *View) Snapshot() (Snapshot, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.snapshot == nil {
		return Snapshot{}, false
	}
	return *v.snapshot, true
}

// Refresh fetches the authoritative snapshot. On failure the previous
// snapshot is kept, and a snapshot older than the one already held is
// discarded.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	v.refreshing++
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		v.refreshing--
		v.mu.Unlock()
	}()

	token, err := v.token(ctx)
	if err != nil {
		return err
	}
	snapshot, err := v.client.Status(ctx, token)
	if err != nil {
		return err
	}

	v.mu.Lock()
	// Overlapping refreshes can complete out of order.
	if v.snapshot == nil || !snapshot.FetchedAt.Before(v.snapshot.FetchedAt) {
		v.snapshot = snapshot
	}
	v.mu.Unlock()
	return nil
}

// ActivateFree selects the Free plan and then refreshes the view.
func (v *View) ActivateFree(ctx context.Context) error {
	token, err := v.token(ctx)
	if err != nil {
		return err
	}
	actionErr := v.client.ActivateFree(ctx, token)
	return v.refreshAfter(ctx, actionErr)
}

// CompleteCheckout verifies a gateway callback and then refreshes the view,
// whether or not verification succeeded.
func (v *View) CompleteCheckout(ctx context.Context, cb Callback) error {
	token, err := v.token(ctx)
	if err != nil {
		return err
	}
	actionErr := v.client.Verify(ctx, token, cb)
	return v.refreshAfter(ctx, actionErr)
}

func (v *View) refreshAfter(ctx context.Context, actionErr error) error {
	refreshErr := v.Refresh(ctx)
	if actionErr != nil {
		return actionErr
	}
	return refreshErr
}
