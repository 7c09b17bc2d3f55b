package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
)

func newTestVerifier(repo Repository, clock *fixedClock, publisher EventPublisher) *VerificationService {
	svc := NewVerificationService(repo, testSecret, publisher, "entitlement_events", discardLogger())
	svc.nowFn = clock.Now
	return svc
}

func signedCallback(orderID, paymentID string) Callback {
	return Callback{OrderID: orderID, PaymentID: paymentID, Signature: SignCallback(testSecret, orderID, paymentID)}
}

func TestSignCallback_IsHexHMACOverJoinedIDs(t *testing.T) {
	sig := SignCallback("key", "order_1", "pay_1")
	assert.Len(t, sig, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", sig)
	assert.True(t, VerifySignature("key", "order_1", "pay_1", sig))
	assert.False(t, VerifySignature("other-key", "order_1", "pay_1", sig))
	assert.False(t, VerifySignature("key", "order_1", "pay_2", sig))
	assert.False(t, VerifySignature("key", "order_1", "pay_1", strings.ToUpper(sig)))
}

func TestVerify_ActivatesPendingOrder(t *testing.T) {
	repo := newTestStore(t)
	clock := newFixedClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	publisher := &publisherStub{}
	svc := newTestVerifier(repo, clock, publisher)
	seedPendingOrder(t, repo, "user-1", "order_1")

	result, err := svc.Verify(context.Background(), "user-1", signedCallback("order_1", "pay_1"))
	require.NoError(t, err)
	assert.False(t, result.AlreadyApplied)

	sub := result.Subscription
	assert.Equal(t, domain.PlanPro, sub.PlanName)
	assert.True(t, sub.IsActive)
	assert.Equal(t, "pay_1", sub.GatewayPaymentID)
	require.NotNil(t, sub.ValidTill)
	assert.True(t, clock.Now().AddDate(0, 1, 0).Equal(*sub.ValidTill))
	assert.Equal(t, domain.StateActivePro, domain.DeriveState(sub, clock.Now()))
	assert.Equal(t, []string{domain.EventSubscriptionActivated}, publisher.types())
}

func TestVerify_SameCallbackTwiceExtendsOnce(t *testing.T) {
	repo := newTestStore(t)
	clock := newFixedClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	publisher := &publisherStub{}
	svc := newTestVerifier(repo, clock, publisher)
	seedPendingOrder(t, repo, "user-1", "order_1")
	cb := signedCallback("order_1", "pay_1")

	first, err := svc.Verify(context.Background(), "user-1", cb)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	second, err := svc.Verify(context.Background(), "user-1", cb)
	require.NoError(t, err)
	assert.True(t, second.AlreadyApplied)

	require.NotNil(t, second.Subscription.ValidTill)
	assert.True(t, first.Subscription.ValidTill.Equal(*second.Subscription.ValidTill), "valid_till must not move on a repeated callback")
	assert.Len(t, publisher.types(), 1, "only one activation is announced")
}

func TestVerify_AnySingleByteMutationFails(t *testing.T) {
	repo := newTestStore(t)
	clock := newFixedClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	svc := newTestVerifier(repo, clock, nil)
	seedPendingOrder(t, repo, "user-1", "order_1")

	before, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)

	valid := signedCallback("order_1", "pay_1")
	for i := 0; i < len(valid.Signature); i++ {
		mutated := []byte(valid.Signature)
		mutated[i] ^= 0x01
		cb := valid
		cb.Signature = string(mutated)

		_, err := svc.Verify(context.Background(), "user-1", cb)
		require.ErrorIsf(t, err, domain.ErrSignatureInvalid, "mutation at byte %d was accepted", i)
	}

	after, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "a rejected callback must not touch the row")
}

func TestVerify_WrongSignatureLogsPossibleForgery(t *testing.T) {
	repo := newTestStore(t)
	logger, buf := bufferLogger()
	svc := NewVerificationService(repo, testSecret, nil, "", logger)
	seedPendingOrder(t, repo, "user-1", "order_1")

	_, err := svc.Verify(context.Background(), "user-1", Callback{OrderID: "order_1", PaymentID: "pay_1", Signature: "deadbeef"})
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)
	assert.Contains(t, buf.String(), `"event":"possible_forgery"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)

	sub, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, sub.IsActive)
	assert.Nil(t, sub.ValidTill)
	assert.Empty(t, sub.GatewayPaymentID)
}

func TestVerify_RejectsMissingFields(t *testing.T) {
	repo := newTestStore(t)
	svc := newTestVerifier(repo, newFixedClock(time.Now()), nil)

	_, err := svc.Verify(context.Background(), "user-1", Callback{OrderID: "order_1"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "payment_id")
	assert.Contains(t, err.Error(), "signature")
}

func TestVerify_RequiresAuthenticatedUser(t *testing.T) {
	repo := newTestStore(t)
	svc := newTestVerifier(repo, newFixedClock(time.Now()), nil)

	_, err := svc.Verify(context.Background(), "", signedCallback("order_1", "pay_1"))
	require.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestVerify_NeverActivatesAnotherUsersOrder(t *testing.T) {
	repo := newTestStore(t)
	svc := newTestVerifier(repo, newFixedClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)), nil)
	seedPendingOrder(t, repo, "owner", "order_1")
	seedPendingOrder(t, repo, "attacker", "order_2")

	_, err := svc.Verify(context.Background(), "attacker", signedCallback("order_1", "pay_1"))
	require.ErrorIs(t, err, domain.ErrOrderNotOwned)

	_, err = svc.Verify(context.Background(), "stranger", signedCallback("order_1", "pay_1"))
	require.ErrorIs(t, err, domain.ErrOrderNotOwned)

	for _, userID := range []string{"owner", "attacker"} {
		sub, err := repo.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.False(t, sub.IsActive, userID)
	}
	_, err = repo.Get(context.Background(), "stranger")
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestVerify_OldCallbackCannotReactivateAfterNewCheckout(t *testing.T) {
	repo := newTestStore(t)
	clock := newFixedClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	svc := newTestVerifier(repo, clock, nil)
	seedPendingOrder(t, repo, "user-1", "order_1")
	old := signedCallback("order_1", "pay_1")

	_, err := svc.Verify(context.Background(), "user-1", old)
	require.NoError(t, err)

	// Months later the user starts a new checkout and replays the old callback.
	clock.Advance(60 * 24 * time.Hour)
	seedPendingOrder(t, repo, "user-1", "order_2")

	_, err = svc.Verify(context.Background(), "user-1", old)
	require.ErrorIs(t, err, domain.ErrOrderNotOwned)

	sub, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, sub.IsActive)
}

func TestVerify_DifferentPaymentForSettledOrder(t *testing.T) {
	repo := newTestStore(t)
	svc := newTestVerifier(repo, newFixedClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)), nil)
	seedPendingOrder(t, repo, "user-1", "order_1")

	_, err := svc.Verify(context.Background(), "user-1", signedCallback("order_1", "pay_1"))
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), "user-1", signedCallback("order_1", "pay_2"))
	require.ErrorIs(t, err, domain.ErrPaymentMismatch)
}

func TestVerify_StoreFailureAfterSignatureIsDistinctFromSuccess(t *testing.T) {
	repo := newTestStore(t)
	seedPendingOrder(t, repo, "user-1", "order_1")
	faulty := &faultyRepo{Repository: repo, activateErr: errors.New("disk full")}
	svc := newTestVerifier(faulty, newFixedClock(time.Now()), nil)

	result, err := svc.Verify(context.Background(), "user-1", signedCallback("order_1", "pay_1"))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, domain.IsStoreWriteError(err))
	assert.False(t, errors.Is(err, domain.ErrSignatureInvalid))

	faulty = &faultyRepo{Repository: repo, getErr: errors.New("connection reset")}
	svc = newTestVerifier(faulty, newFixedClock(time.Now()), nil)
	_, err = svc.Verify(context.Background(), "user-1", signedCallback("order_1", "pay_1"))
	assert.True(t, domain.IsStoreWriteError(err))
}

func TestVerify_PublishFailureDoesNotChangeOutcome(t *testing.T) {
	repo := newTestStore(t)
	seedPendingOrder(t, repo, "user-1", "order_1")
	svc := newTestVerifier(repo, newFixedClock(time.Now()), &publisherStub{err: errors.New("broker down")})

	result, err := svc.Verify(context.Background(), "user-1", signedCallback("order_1", "pay_1"))
	require.NoError(t, err)
	assert.True(t, result.Subscription.IsActive)
}
