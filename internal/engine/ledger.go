package engine

import (
	"sync"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

// Ledger tracks the running signed fill imbalance between the two legs
// across the life of one session. The sign convention is fixed:
//
//	cumulativeDiff = total contract filled - total spot filled
//
// A positive diff means the contract leg ran ahead and the correction buys
// spot; a negative diff means the spot leg ran ahead and the correction
// grows the short. The ledger is the single source of truth for imbalance;
// only the executor (via Record) and the rebalancer (via ApplyCorrection)
// mutate it, and the session loop guarantees one mutation at a time. The
// mutex protects concurrent readers (metrics, logging).
type Ledger struct {
	mu sync.Mutex

	cumulativeDiff float64
	referencePrice float64
	trades         int
	rebalances     int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record folds one settled paired trade into the ledger. It must be called
// exactly once per settled pair, including partial failures where one leg
// filled zero.
func (l *Ledger) Record(r domain.PairResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cumulativeDiff += r.Contract.FilledQty - r.Spot.FilledQty
	l.trades++
	if p := referenceFrom(r); p > 0 {
		l.referencePrice = p
	}
}

// referenceFrom prefers the spot fill price, falling back to the contract
// fill, then the intent's reference levels.
func referenceFrom(r domain.PairResult) float64 {
	switch {
	case r.Spot.AvgPrice > 0:
		return r.Spot.AvgPrice
	case r.Contract.AvgPrice > 0:
		return r.Contract.AvgPrice
	case r.Intent.SpotRefPrice > 0:
		return r.Intent.SpotRefPrice
	default:
		return r.Intent.ContractRefPrice
	}
}

// SetReferencePrice updates the price used to value the imbalance. Called
// by the session with fresh book data between trades.
func (l *Ledger) SetReferencePrice(p float64) {
	if p <= 0 {
		return
	}
	l.mu.Lock()
	l.referencePrice = p
	l.mu.Unlock()
}

// NeedsRebalance reports whether the imbalance's quote value has reached
// threshold. It reads the live state on every call so that a correction
// that just landed immediately suppresses a second one.
func (l *Ledger) NeedsRebalance(threshold float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := l.cumulativeDiff * l.referencePrice
	if v < 0 {
		v = -v
	}
	return v >= threshold
}

// CorrectionFor returns the order that reduces the current imbalance: the
// venue-agnostic quantity and the side of the correcting leg. A positive
// diff is corrected by buying spot; a negative diff by selling short on
// the contract venue. spotLeg reports which venue the order belongs on.
func (l *Ledger) CorrectionFor() (qty float64, side domain.OrderSide, spotLeg bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cumulativeDiff > 0 {
		return l.cumulativeDiff, domain.OrderSideBuy, true
	}
	return -l.cumulativeDiff, domain.OrderSideSell, false
}

// ApplyCorrection folds a rebalance fill back into the ledger, shrinking
// the imbalance by the filled amount.
func (l *Ledger) ApplyCorrection(filled float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cumulativeDiff > 0 {
		l.cumulativeDiff -= filled
	} else {
		l.cumulativeDiff += filled
	}
	l.rebalances++
}

// State returns a read-only snapshot of the ledger.
func (l *Ledger) State() domain.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.LedgerState{
		CumulativeDiff:      l.cumulativeDiff,
		CumulativeDiffValue: l.cumulativeDiff * l.referencePrice,
		ReferencePrice:      l.referencePrice,
		Trades:              l.trades,
		Rebalances:          l.rebalances,
	}
}
