/**
 * @description
 * Payment verification. A gateway callback is trusted only after its HMAC
 * signature matches and the order it names is the caller's pending checkout.
 * Activation is a single conditional write, so a replayed callback can never
 * extend valid_till a second time.
 */
package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
	"github.com/StephenStolk/nutriapp-sub001/internal/metrics"
)

// Callback is the signed payload the gateway hands back after checkout.
type Callback struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

func (c Callback) validate() error {
	var missing []string
	if strings.TrimSpace(c.OrderID) == "" {
		missing = append(missing, "order_id")
	}
	if strings.TrimSpace(c.PaymentID) == "" {
		missing = append(missing, "payment_id")
	}
	if strings.TrimSpace(c.Signature) == "" {
		missing = append(missing, "signature")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// Verification is the outcome of a successful verification.
type Verification struct {
	Subscription *domain.Subscription
	// AlreadyApplied is true when this payment had been recorded by an earlier callback.
	AlreadyApplied bool
}

// SignCallback returns the hex HMAC-SHA256 of "order_id|payment_id" under secret.
func SignCallback(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the callback fields.
// The comparison is exact and constant time.
func VerifySignature(secret, orderID, paymentID, signature string) bool {
	expected := SignCallback(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerificationService validates gateway callbacks and activates Pro.
type VerificationService struct {
	repo   Repository
	secret string
	period func(time.Time) time.Time
	events eventNotifier
	logger zerolog.Logger
	nowFn  func() time.Time
}

// NewVerificationService creates a verification service. gatewaySecret is the
// gateway key secret shared with the gateway; publisher may be nil.
func NewVerificationService(repo Repository, gatewaySecret string, publisher EventPublisher, exchange string, logger zerolog.Logger) *VerificationService {
	logger = logger.With().Str("component", "verification").Logger()
	return &VerificationService{
		repo:   repo,
		secret: gatewaySecret,
		period: func(t time.Time) time.Time { return t.AddDate(0, 1, 0) },
		events: newEventNotifier(publisher, exchange, logger),
		logger: logger,
		nowFn:  time.Now,
	}
}

// Verify authenticates cb for userID and activates Pro for one month from now,
// or from the end of the current paid period when renewing early.
//
// Nothing is written unless the signature matches and the order is the
// caller's current checkout. Delivering the same callback again returns the
// stored row with AlreadyApplied set. Any store failure after the signature
// check is returned as *domain.StoreWriteError so the client re-reads its state.
func (s *VerificationService) Verify(ctx context.Context, userID string, cb Callback) (*Verification, error) {
	if userID == "" {
		metrics.Verifications.WithLabelValues("unauthenticated").Inc()
		return nil, domain.ErrAuthentication
	}
	if err := cb.validate(); err != nil {
		metrics.Verifications.WithLabelValues("invalid_input").Inc()
		return nil, err
	}

	if !VerifySignature(s.secret, cb.OrderID, cb.PaymentID, cb.Signature) {
		metrics.Verifications.WithLabelValues("signature_invalid").Inc()
		s.logger.Warn().
			Str("event", "possible_forgery").
			Str("user_id", userID).
			Str("order_id", cb.OrderID).
			Str("payment_id", cb.PaymentID).
			Msg("payment callback signature mismatch")
		return nil, domain.ErrSignatureInvalid
	}

	current, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return nil, s.notOwned(userID, cb.OrderID, "no pending checkout")
		}
		metrics.Verifications.WithLabelValues("store_error").Inc()
		return nil, &domain.StoreWriteError{Op: "load_subscription", Err: err}
	}
	if current.GatewaySubscriptionID != cb.OrderID {
		return nil, s.notOwned(userID, cb.OrderID, "order does not match pending checkout")
	}

	now := s.nowFn()
	sub, activated, err := s.repo.ActivatePayment(ctx, userID, cb.OrderID, cb.PaymentID, s.period(periodStart(current, now)))
	if err != nil {
		metrics.Verifications.WithLabelValues("store_error").Inc()
		s.logger.Error().Err(err).Str("user_id", userID).Str("order_id", cb.OrderID).Msg("failed to activate verified payment")
		return nil, &domain.StoreWriteError{Op: "activate_payment", Err: err}
	}

	if activated {
		metrics.Verifications.WithLabelValues("activated").Inc()
		s.logger.Info().
			Str("user_id", userID).
			Str("order_id", cb.OrderID).
			Str("payment_id", cb.PaymentID).
			Time("valid_till", *sub.ValidTill).
			Msg("pro subscription activated")
		s.events.notify(ctx, domain.EntitlementEvent{
			Type:       domain.EventSubscriptionActivated,
			UserID:     userID,
			PlanName:   domain.PlanPro,
			ValidTill:  sub.ValidTill,
			PaymentID:  cb.PaymentID,
			OccurredAt: now.UTC(),
		})
		return &Verification{Subscription: sub}, nil
	}

	// The conditional write matched nothing: either this payment is already
	// recorded or the row moved on since it was read.
	latest, err := s.repo.Get(ctx, userID)
	if err != nil {
		metrics.Verifications.WithLabelValues("store_error").Inc()
		return nil, &domain.StoreWriteError{Op: "reload_subscription", Err: err}
	}
	switch {
	case latest.GatewaySubscriptionID != cb.OrderID:
		return nil, s.notOwned(userID, cb.OrderID, "checkout replaced during verification")
	case latest.GatewayPaymentID == cb.PaymentID:
		metrics.Verifications.WithLabelValues("already_applied").Inc()
		s.logger.Info().Str("user_id", userID).Str("payment_id", cb.PaymentID).Msg("payment already applied")
		return &Verification{Subscription: latest, AlreadyApplied: true}, nil
	default:
		metrics.Verifications.WithLabelValues("payment_mismatch").Inc()
		s.logger.Warn().
			Str("user_id", userID).
			Str("order_id", cb.OrderID).
			Str("payment_id", cb.PaymentID).
			Str("recorded_payment_id", latest.GatewayPaymentID).
			Msg("order already settled by another payment")
		return nil, domain.ErrPaymentMismatch
	}
}

func (s *VerificationService) notOwned(userID, orderID, reason string) error {
	metrics.Verifications.WithLabelValues("not_owned").Inc()
	s.logger.Warn().
		Str("user_id", userID).
		Str("order_id", orderID).
		Str("reason", reason).
		Msg("payment callback rejected")
	return domain.ErrOrderNotOwned
}

// periodStart is when a newly verified period begins: now, or the end of the
// paid period the row still grants.
func periodStart(current *domain.Subscription, now time.Time) time.Time {
	if domain.DeriveState(current, now) == domain.StateActivePro && current.ValidTill.After(now) {
		return *current.ValidTill
	}
	return now
}
