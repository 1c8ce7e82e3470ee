package domain

import "errors"

var (
	// ErrStreamDisconnect signals a broken order-book stream. The caller
	// should resubscribe with backoff.
	ErrStreamDisconnect = errors.New("order book stream disconnected")

	// ErrStaleData marks a snapshot pair too old to trade on.
	ErrStaleData = errors.New("stale order book data")

	// ErrRejectedOrder is returned when a venue rejects an order pre-trade
	// (insufficient balance, invalid size). The order took no position.
	ErrRejectedOrder = errors.New("order rejected by venue")

	// ErrOrderPending is the retryable poll state: the order exists but has
	// not reached a terminal state yet. Distinct from terminal faults.
	ErrOrderPending = errors.New("order not yet terminal")

	// ErrVerificationMismatch marks a paired trade whose legs both filled
	// but diverge beyond tolerance, or whose status stayed ambiguous.
	ErrVerificationMismatch = errors.New("leg fill verification mismatch")

	// ErrInsufficientCollateral is returned when a pre-trade balance check
	// fails even after attempting a reservoir redemption.
	ErrInsufficientCollateral = errors.New("insufficient collateral")

	// ErrFatalAdapter marks auth failures and venue outages. This is the
	// only error class that terminates a session.
	ErrFatalAdapter = errors.New("fatal venue adapter error")

	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")
)

// Fatal reports whether err belongs to the terminating class.
func Fatal(err error) bool {
	return errors.Is(err, ErrFatalAdapter)
}

// Retryable reports whether err is safe to retry on an idempotent read.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFatalAdapter) || errors.Is(err, ErrRejectedOrder) {
		return false
	}
	return true
}
