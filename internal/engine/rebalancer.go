package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

// Rebalancer flattens accumulated leg imbalance with a single corrective
// order. It shares the executor's settlement machinery so corrections get
// the same poll-then-infer verification as regular legs.
type Rebalancer struct {
	spot      domain.VenueAdapter
	contract  domain.VenueAdapter
	ledger    *Ledger
	executor  *Executor
	threshold float64
	logger    *slog.Logger
}

// NewRebalancer wires a rebalancer over the shared ledger and adapters.
func NewRebalancer(spot, contract domain.VenueAdapter, ledger *Ledger, executor *Executor, threshold float64, logger *slog.Logger) *Rebalancer {
	return &Rebalancer{
		spot:      spot,
		contract:  contract,
		ledger:    ledger,
		executor:  executor,
		threshold: threshold,
		logger:    logger.With(slog.String("component", "rebalancer")),
	}
}

// Run checks the ledger and, when the imbalance value is at or past the
// threshold, places one corrective order and folds the fill back in. The
// threshold check reads live ledger state, so a second call right after a
// successful correction is a no-op. The session loop guarantees Run never
// overlaps a paired trade.
func (r *Rebalancer) Run(ctx context.Context, instrument string) (*domain.RebalanceRecord, error) {
	if !r.ledger.NeedsRebalance(r.threshold) {
		return nil, nil
	}

	qty, side, spotLeg := r.ledger.CorrectionFor()
	if qty <= 0 {
		return nil, nil
	}
	venue := r.contract
	opts := domain.OrderOpts{}
	if spotLeg {
		venue = r.spot
	}

	r.logger.Info("issuing corrective order",
		slog.String("venue", venue.Name()),
		slog.String("side", string(side)),
		slog.Float64("quantity", qty),
		slog.Float64("imbalance_value", r.ledger.State().CumulativeDiffValue),
	)

	before, err := r.executor.snapshot(ctx, venue, instrument)
	if err != nil {
		return nil, fmt.Errorf("engine: rebalance snapshot: %w", err)
	}

	h, err := venue.PlaceMarketOrder(ctx, instrument, side, qty, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: rebalance order: %w", err)
	}

	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.executor.params.MaxFillWait)
	defer cancel()
	leg := r.executor.settleLeg(vctx, venue, h, before)

	if leg.FilledQty <= 0 {
		return nil, fmt.Errorf("engine: rebalance fill unresolved on %s order %s: %w",
			venue.Name(), h.OrderID, domain.ErrVerificationMismatch)
	}

	r.ledger.ApplyCorrection(leg.FilledQty)
	state := r.ledger.State()
	r.logger.Info("imbalance corrected",
		slog.Float64("filled", leg.FilledQty),
		slog.Float64("remaining_diff", state.CumulativeDiff),
	)

	return &domain.RebalanceRecord{
		ID:         uuid.NewString(),
		Instrument: instrument,
		Venue:      venue.Name(),
		Side:       string(side),
		Requested:  qty,
		Filled:     leg.FilledQty,
		AvgPrice:   leg.AvgPrice,
		ExecutedAt: time.Now().UTC(),
	}, nil
}
