/**
 * @description
 * Plan selection: opening a Pro checkout with the payment gateway and
 * activating the Free plan directly. A Pro checkout never grants access by
 * itself; access is granted later by payment verification.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
	"github.com/StephenStolk/nutriapp-sub001/internal/metrics"
)

// OrderHandle is returned to the client so it can open the gateway checkout.
type OrderHandle struct {
	OrderID    string          `json:"order_id"`
	GatewayKey string          `json:"gateway_key"`
	PlanName   domain.PlanName `json:"plan_name"`
}

// OrderConfig carries the gateway identifiers the order service needs.
type OrderConfig struct {
	// PublicKeyID is the gateway key id the client uses to open checkout.
	// The matching secret never leaves the server.
	PublicKeyID string
	ProPlanID   string
	Exchange    string
}

// OrderService opens checkouts and activates the Free plan.
type OrderService struct {
	repo    Repository
	gateway Gateway
	cfg     OrderConfig
	events  eventNotifier
	logger  zerolog.Logger
	nowFn   func() time.Time
}

// NewOrderService creates a new order service. publisher may be nil.
func NewOrderService(repo Repository, gateway Gateway, publisher EventPublisher, cfg OrderConfig, logger zerolog.Logger) *OrderService {
	logger = logger.With().Str("component", "orders").Logger()
	return &OrderService{
		repo:    repo,
		gateway: gateway,
		cfg:     cfg,
		events:  newEventNotifier(publisher, cfg.Exchange, logger),
		logger:  logger,
		nowFn:   time.Now,
	}
}

// InitiateOrder creates a gateway customer and order for the Pro plan and
// stores a pending row carrying the new order id.
//
// Every call creates a fresh gateway customer and order; earlier pending
// orders for the same user are not reused. A user who already has Pro access
// keeps it while renewing: only the order ids on the row change.
func (s *OrderService) InitiateOrder(ctx context.Context, user *domain.User, plan domain.PlanName) (*OrderHandle, error) {
	if user == nil || user.ID == "" {
		return nil, domain.ErrAuthentication
	}
	if plan != domain.PlanPro {
		return nil, fmt.Errorf("%w: plan %q has no checkout", domain.ErrInvalidInput, plan)
	}

	start := time.Now()
	customerID, err := s.gateway.CreateCustomer(ctx, user.Name, user.Email)
	observeGateway("create_customer", start, err)
	if err != nil {
		metrics.OrdersInitiated.WithLabelValues(string(plan), "gateway_error").Inc()
		return nil, wrapGatewayError("create_customer", err)
	}

	start = time.Now()
	orderID, err := s.gateway.CreateOrder(ctx, s.cfg.ProPlanID, customerID)
	observeGateway("create_order", start, err)
	if err != nil {
		metrics.OrdersInitiated.WithLabelValues(string(plan), "gateway_error").Inc()
		return nil, wrapGatewayError("create_order", err)
	}

	if _, err := s.repo.OpenCheckout(ctx, user.ID, customerID, orderID, s.nowFn()); err != nil {
		metrics.OrdersInitiated.WithLabelValues(string(plan), "store_error").Inc()
		s.logger.Error().Err(err).Str("user_id", user.ID).Str("order_id", orderID).Msg("failed to persist pending order")
		return nil, &domain.StoreWriteError{Op: "persist_pending_order", Err: err}
	}

	metrics.OrdersInitiated.WithLabelValues(string(plan), "created").Inc()
	s.logger.Info().
		Str("user_id", user.ID).
		Str("customer_id", customerID).
		Str("order_id", orderID).
		Msg("checkout order created")

	return &OrderHandle{
		OrderID:    orderID,
		GatewayKey: s.cfg.PublicKeyID,
		PlanName:   plan,
	}, nil
}

// ActivateFree puts the user on the Free plan without any gateway involvement.
//
// Usage flags already spent stay spent, including across an abandoned Pro
// checkout. Only a row that has carried a paid Pro period starts Free with a
// fresh allowance. An active Pro plan is never replaced; that check and the
// write happen in one statement.
func (s *OrderService) ActivateFree(ctx context.Context, userID string) (*domain.Subscription, error) {
	if userID == "" {
		return nil, domain.ErrAuthentication
	}

	sub, switched, err := s.repo.SwitchToFree(ctx, userID, s.nowFn())
	if err != nil {
		metrics.OrdersInitiated.WithLabelValues(string(domain.PlanFree), "store_error").Inc()
		return nil, &domain.StoreWriteError{Op: "activate_free", Err: err}
	}
	if !switched {
		metrics.OrdersInitiated.WithLabelValues(string(domain.PlanFree), "conflict").Inc()
		return nil, domain.ErrPlanConflict
	}

	metrics.OrdersInitiated.WithLabelValues(string(domain.PlanFree), "activated").Inc()
	s.logger.Info().Str("user_id", userID).Msg("free plan activated")
	s.events.notify(ctx, domain.EntitlementEvent{
		Type:       domain.EventFreePlanActivated,
		UserID:     userID,
		PlanName:   domain.PlanFree,
		OccurredAt: s.nowFn().UTC(),
	})
	return sub, nil
}

// statusCoder is implemented by gateway client errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

func observeGateway(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.GatewayRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

func wrapGatewayError(op string, err error) error {
	gwErr := &domain.GatewayError{Op: op, Err: err}
	var sc statusCoder
	if errors.As(err, &sc) {
		gwErr.StatusCode = sc.HTTPStatus()
	}
	return gwErr
}
