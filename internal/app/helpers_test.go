package app

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
	"github.com/StephenStolk/nutriapp-sub001/internal/store"
)

const testSecret = "gateway-test-secret"

func newTestStore(t *testing.T) *store.Repository {
	t.Helper()
	repo, err := store.OpenSQLite(filepath.Join(t.TempDir(), "entitlements.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func discardLogger() zerolog.Logger {
	return zerolog.Nop()
}

func bufferLogger() (zerolog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return zerolog.New(buf), buf
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock {
	return &fixedClock{now: now}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// faultyRepo wraps a real store and injects failures per operation.
type faultyRepo struct {
	Repository
	getErr      error
	checkoutErr error
	switchErr   error
	flagErr     error
	activateErr error
	sweepErr    error
}

func (f *faultyRepo) Get(ctx context.Context, userID string) (*domain.Subscription, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Repository.Get(ctx, userID)
}

func (f *faultyRepo) OpenCheckout(ctx context.Context, userID, customerID, orderID string, now time.Time) (*domain.Subscription, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return f.Repository.OpenCheckout(ctx, userID, customerID, orderID, now)
}

func (f *faultyRepo) SwitchToFree(ctx context.Context, userID string, now time.Time) (*domain.Subscription, bool, error) {
	if f.switchErr != nil {
		return nil, false, f.switchErr
	}
	return f.Repository.SwitchToFree(ctx, userID, now)
}

func (f *faultyRepo) ConditionalFlagSet(ctx context.Context, userID string, feature domain.Feature) (bool, error) {
	if f.flagErr != nil {
		return false, f.flagErr
	}
	return f.Repository.ConditionalFlagSet(ctx, userID, feature)
}

func (f *faultyRepo) ActivatePayment(ctx context.Context, userID, orderID, paymentID string, validTill time.Time) (*domain.Subscription, bool, error) {
	if f.activateErr != nil {
		return nil, false, f.activateErr
	}
	return f.Repository.ActivatePayment(ctx, userID, orderID, paymentID, validTill)
}

func (f *faultyRepo) DeactivateExpired(ctx context.Context, now time.Time) ([]string, error) {
	if f.sweepErr != nil {
		return nil, f.sweepErr
	}
	return f.Repository.DeactivateExpired(ctx, now)
}

type gatewayStub struct {
	mu            sync.Mutex
	customerCalls int
	orderCalls    int
	customerErr   error
	orderErr      error
	lastPlanID    string
}

func (g *gatewayStub) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customerCalls++
	if g.customerErr != nil {
		return "", g.customerErr
	}
	return fmt.Sprintf("cust_%d", g.customerCalls), nil
}

func (g *gatewayStub) CreateOrder(ctx context.Context, planID, customerID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orderCalls++
	g.lastPlanID = planID
	if g.orderErr != nil {
		return "", g.orderErr
	}
	return fmt.Sprintf("order_%d", g.orderCalls), nil
}

type publisherStub struct {
	mu     sync.Mutex
	events []domain.EntitlementEvent
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if event, ok := body.(domain.EntitlementEvent); ok {
		p.events = append(p.events, event)
	}
	return nil
}

func (p *publisherStub) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// seedPendingOrder stores the row InitiateOrder leaves behind.
func seedPendingOrder(t *testing.T, repo Repository, userID, orderID string) {
	t.Helper()
	_, err := repo.Upsert(context.Background(), userID, domain.SubscriptionPatch{
		PlanName:              domain.Ptr(domain.PlanPro),
		IsActive:              domain.Ptr(false),
		ClearValidTill:        true,
		CustomerID:            domain.Ptr("cust_" + userID),
		GatewaySubscriptionID: domain.Ptr(orderID),
		GatewayPaymentID:      domain.Ptr(""),
	})
	require.NoError(t, err)
}

func seedActiveFree(t *testing.T, repo Repository, userID string) {
	t.Helper()
	_, err := repo.Upsert(context.Background(), userID, domain.SubscriptionPatch{
		PlanName: domain.Ptr(domain.PlanFree),
		IsActive: domain.Ptr(true),
	})
	require.NoError(t, err)
}

func seedPro(t *testing.T, repo Repository, userID string, active bool, validTill time.Time) {
	t.Helper()
	_, err := repo.Upsert(context.Background(), userID, domain.SubscriptionPatch{
		PlanName:  domain.Ptr(domain.PlanPro),
		IsActive:  domain.Ptr(active),
		ValidTill: &validTill,
	})
	require.NoError(t, err)
}
