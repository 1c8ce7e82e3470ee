// Package engine contains the cross-venue hedge execution core: book
// aggregation, trade gating, paired execution, imbalance accounting and
// rebalancing, driven by a session loop.
package engine

import (
	"fmt"
	"time"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

// GateParams are the strategy inputs the opportunity gate evaluates against.
type GateParams struct {
	Direction       domain.HedgeDirection
	TradeSize       float64
	MinSpread       float64
	MaxSpread       float64 // anomaly ceiling on |spread|
	DepthMultiplier float64
	MaxQuoteAge     time.Duration
}

// Decision is the outcome of one gate evaluation.
type Decision struct {
	Trade  bool
	Size   float64
	Spread float64
	// Reason is a human-readable skip explanation, empty on trade.
	Reason string
	// SpotRefPrice and ContractRefPrice are the book levels each leg is
	// expected to fill near, carried into slippage accounting.
	SpotRefPrice     float64
	ContractRefPrice float64
}

// Gate decides whether a snapshot pair justifies a paired trade. It is a
// pure function of its inputs and holds no state.
type Gate struct {
	params GateParams
}

// NewGate returns a gate bound to fixed strategy parameters.
func NewGate(params GateParams) *Gate {
	return &Gate{params: params}
}

// Evaluate inspects pair as of now and returns a trade or skip decision.
//
// For the open direction the trade buys at the spot ask and sells at the
// contract bid, so spread = (contractBid - spotAsk) / spotAsk. For the
// close direction it sells at the spot bid and buys at the contract ask,
// so spread = (spotBid - contractAsk) / contractAsk.
func (g *Gate) Evaluate(pair domain.SnapshotPair, now time.Time) Decision {
	p := g.params

	if !pair.Fresh(now, p.MaxQuoteAge) {
		return skip(fmt.Sprintf("stale snapshot pair (max age %s)", p.MaxQuoteAge))
	}

	var spread, spotRef, contractRef, spotDepth, contractDepth float64
	switch p.Direction {
	case domain.DirectionClose:
		spread = (pair.Spot.BidPrice - pair.Contract.AskPrice) / pair.Contract.AskPrice
		spotRef = pair.Spot.BidPrice
		contractRef = pair.Contract.AskPrice
		spotDepth = pair.Spot.BidSize
		contractDepth = pair.Contract.AskSize
	default:
		spread = (pair.Contract.BidPrice - pair.Spot.AskPrice) / pair.Spot.AskPrice
		spotRef = pair.Spot.AskPrice
		contractRef = pair.Contract.BidPrice
		spotDepth = pair.Spot.AskSize
		contractDepth = pair.Contract.BidSize
	}

	abs := spread
	if abs < 0 {
		abs = -abs
	}
	if abs > p.MaxSpread {
		return skip(fmt.Sprintf("anomalous spread %.4f exceeds ceiling %.4f", spread, p.MaxSpread))
	}
	if spread < p.MinSpread {
		d := skip(fmt.Sprintf("spread %.4f below minimum %.4f", spread, p.MinSpread))
		d.Spread = spread
		return d
	}

	required := p.TradeSize * p.DepthMultiplier
	if spotDepth < required {
		d := skip(fmt.Sprintf("insufficient depth on %s: %.4f < %.4f", pair.Spot.Venue, spotDepth, required))
		d.Spread = spread
		return d
	}
	if contractDepth < required {
		d := skip(fmt.Sprintf("insufficient depth on %s: %.4f < %.4f", pair.Contract.Venue, contractDepth, required))
		d.Spread = spread
		return d
	}

	return Decision{
		Trade:            true,
		Size:             p.TradeSize,
		Spread:           spread,
		SpotRefPrice:     spotRef,
		ContractRefPrice: contractRef,
	}
}

func skip(reason string) Decision {
	return Decision{Trade: false, Reason: reason}
}
