package domain

import "context"

// VenueAdapter is the uniform surface a hedge session needs from one
// exchange. Implementations live under internal/venue and wrap each
// venue's SDK or REST/WS API.
//
// PlaceMarketOrder is never retried by callers: a timeout after dispatch
// leaves the order's fate unknown and must be resolved through PollOrder.
type VenueAdapter interface {
	// Name returns a short stable identifier ("binance", "bybit").
	Name() string

	// StreamBookTop subscribes to top-of-book updates for instrument and
	// pushes them to out until ctx is cancelled or the stream breaks.
	// A broken stream returns an error wrapping ErrStreamDisconnect; the
	// caller resubscribes with backoff.
	StreamBookTop(ctx context.Context, instrument string, out chan<- BookTop) error

	// PlaceMarketOrder dispatches a market order and returns a handle for
	// polling. A definite venue-side rejection wraps ErrRejectedOrder.
	PlaceMarketOrder(ctx context.Context, instrument string, side OrderSide, qty float64, opts OrderOpts) (OrderHandle, error)

	// PollOrder reads the current status of a placed order. Safe to retry.
	PollOrder(ctx context.Context, h OrderHandle) (OrderStatus, error)

	// FetchBalance reads one asset's balance. Safe to retry.
	FetchBalance(ctx context.Context, asset string) (Balance, error)

	// FetchPosition reads the open position for instrument. Venues without
	// positions (spot) return a zero Position. Safe to retry.
	FetchPosition(ctx context.Context, instrument string) (Position, error)

	// SetLeverage configures position leverage for instrument. A venue
	// response meaning "already set" is treated as success.
	SetLeverage(ctx context.Context, instrument string, leverage int) error
}

// CapitalReservoir frees parked capital when the trading balance falls
// short of a pre-trade requirement (for example redeeming a flexible
// earn product back into the spot wallet).
type CapitalReservoir interface {
	// Redeem moves up to amount of asset from the reservoir into the free
	// trading balance. Returns the amount actually redeemed.
	Redeem(ctx context.Context, asset string, amount float64) (float64, error)
}
