package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned when an operation has no authenticated user.
	ErrAuthentication = errors.New("authentication required")
	// ErrSignatureInvalid is returned when a gateway callback signature does not match.
	ErrSignatureInvalid = errors.New("payment signature invalid")
	// ErrOrderNotOwned is returned when a callback's order does not belong to the caller.
	ErrOrderNotOwned = errors.New("order does not belong to the authenticated user")
	// ErrSubscriptionNotFound is returned by the store when the user has no row.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrPlanConflict is returned when a plan selection would silently downgrade an active Pro plan.
	ErrPlanConflict = errors.New("an active Pro plan cannot be replaced by the Free plan")
	// ErrPaymentMismatch is returned when an order was already settled by a different payment.
	ErrPaymentMismatch = errors.New("order already settled by a different payment")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// GatewayError reports a failed call to the payment gateway. Gateway calls are
// never retried server-side, so the client decides whether to try again.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// StoreWriteError reports a failed write to the entitlement store. After a
// verified payment it means activation may not have happened and the client
// must re-fetch the authoritative state.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// IsGatewayError reports whether err is, or wraps, a *GatewayError.
func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}

// IsStoreWriteError reports whether err is, or wraps, a *StoreWriteError.
func IsStoreWriteError(err error) bool {
	var storeErr *StoreWriteError
	return errors.As(err, &storeErr)
}
