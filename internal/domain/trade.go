package domain

import "time"

// HedgeDirection selects which way the paired trade runs.
type HedgeDirection string

const (
	// DirectionOpen buys spot on venue A and opens a short on venue B.
	DirectionOpen HedgeDirection = "open"
	// DirectionClose sells spot on venue A and buys back the short on
	// venue B (reduce-only).
	DirectionClose HedgeDirection = "close"
)

// SpotSide returns the spot-leg order side for the direction.
func (d HedgeDirection) SpotSide() OrderSide {
	if d == DirectionClose {
		return OrderSideSell
	}
	return OrderSideBuy
}

// ContractSide returns the contract-leg order side for the direction.
func (d HedgeDirection) ContractSide() OrderSide {
	return d.SpotSide().Opposite()
}

// TradeIntent is a single approved paired trade. It is created by the
// opportunity gate and consumed exactly once by the paired executor.
type TradeIntent struct {
	ID               string
	Instrument       string
	Direction        HedgeDirection
	Quantity         float64 // base-asset quantity per leg
	Spread           float64 // spread observed at decision time
	SpotRefPrice     float64 // top-of-book price the spot leg is expected to fill near
	ContractRefPrice float64
	CreatedAt        time.Time
}

// LegResult is the settled outcome of one leg of a paired trade.
type LegResult struct {
	Venue        string
	Side         OrderSide
	RequestedQty float64
	FilledQty    float64
	AvgPrice     float64
	FeeBase      float64
	FeeQuote     float64
	State        OrderState
	// Inferred marks a fill quantity reconstructed from a balance or
	// position delta because the venue reported a terminal state with a
	// zero fill.
	Inferred bool
}

// SlippageBps returns the signed fill slippage against ref in basis points.
// Positive means the fill was worse than the reference for the leg's side.
func (l LegResult) SlippageBps(ref float64) float64 {
	if ref <= 0 || l.AvgPrice <= 0 {
		return 0
	}
	bps := (l.AvgPrice - ref) / ref * 10_000
	if l.Side == OrderSideSell {
		bps = -bps
	}
	return bps
}

// PairResult bundles both settled legs of one paired trade.
type PairResult struct {
	Intent   TradeIntent
	Spot     LegResult
	Contract LegResult
}

// FillGap returns the relative difference between the two legs' filled
// quantities, as a fraction of the larger fill. Zero when neither filled.
func (r PairResult) FillGap() float64 {
	a, b := r.Spot.FilledQty, r.Contract.FilledQty
	max := a
	if b > max {
		max = b
	}
	if max <= 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff / max
}

// LedgerState is a read-only snapshot of the position ledger.
type LedgerState struct {
	CumulativeDiff      float64 // contract filled minus spot filled, base units
	CumulativeDiffValue float64 // diff at the last reference price, quote units
	ReferencePrice      float64
	Trades              int
	Rebalances          int
}

// RunSummary is the final reconciliation report of one hedge session.
type RunSummary struct {
	SessionID           string    `json:"session_id"`
	Instrument          string    `json:"instrument"`
	Direction           string    `json:"direction"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	StopReason          string    `json:"stop_reason"`
	TradesCompleted     int       `json:"trades_completed"`
	TradesTarget        int       `json:"trades_target"`
	Rebalances          int       `json:"rebalances"`
	TotalSpotFilled     float64   `json:"total_spot_filled"`
	TotalContractFilled float64   `json:"total_contract_filled"`
	TotalFeesQuote      float64   `json:"total_fees_quote"`
	CumulativeDiff      float64   `json:"cumulative_diff"`
	CumulativeDiffValue float64   `json:"cumulative_diff_value"`
	AvgSpotSlippageBps  float64   `json:"avg_spot_slippage_bps"`
	AvgContSlippageBps  float64   `json:"avg_contract_slippage_bps"`
}

// TradeRecord is the persisted row for one settled paired trade.
type TradeRecord struct {
	ID               string
	SessionID        string
	Instrument       string
	Direction        string
	SpotVenue        string
	ContractVenue    string
	SpotFilled       float64
	ContractFilled   float64
	SpotAvgPrice     float64
	ContractAvgPrice float64
	SpotFeeQuote     float64
	ContractFeeQuote float64
	Spread           float64
	SpotSlipBps      float64
	ContractSlipBps  float64
	ExecutedAt       time.Time
}

// RebalanceRecord is the persisted row for one corrective order.
type RebalanceRecord struct {
	ID         string
	SessionID  string
	Instrument string
	Venue      string
	Side       string
	Requested  float64
	Filled     float64
	AvgPrice   float64
	ExecutedAt time.Time
}
