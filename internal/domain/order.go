package domain

import "time"

// OrderSide is the direction of a single order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderState is the lifecycle state of an order as reported by a venue.
type OrderState string

const (
	OrderStateOpen            OrderState = "open"
	OrderStateFilled          OrderState = "filled"
	OrderStatePartiallyClosed OrderState = "partially_filled_closed"
	OrderStateCancelled       OrderState = "cancelled"
	OrderStateRejected        OrderState = "rejected"
)

// Terminal reports whether no further fills can be expected for this state.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStatePartiallyClosed, OrderStateCancelled, OrderStateRejected:
		return true
	default:
		return false
	}
}

// OrderHandle identifies a placed order for later status polling.
type OrderHandle struct {
	Venue        string
	Instrument   string
	OrderID      string
	ClientID     string
	Side         OrderSide
	RequestedQty float64
	PlacedAt     time.Time
}

// OrderStatus is an idempotent status read of a placed order.
type OrderStatus struct {
	State     OrderState
	FilledQty float64
	AvgPrice  float64
	FeeBase   float64 // fee charged in the base asset
	FeeQuote  float64 // fee charged in the quote currency
}

// OrderOpts carries venue-order options that are not part of the core
// (instrument, side, quantity) triple.
type OrderOpts struct {
	// ReduceOnly marks a contract order that may only shrink an existing
	// position, never open a new one.
	ReduceOnly bool
	// ClientID is a caller-chosen idempotency key forwarded to the venue.
	ClientID string
}

// Balance is one asset's balance on a venue.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// Total returns free plus locked.
func (b Balance) Total() float64 { return b.Free + b.Locked }

// Position is a venue's view of an open derivative (or spot-equivalent)
// position. Size is signed: negative for short.
type Position struct {
	Instrument string
	Size       float64
	EntryPrice float64
	Leverage   int
}
