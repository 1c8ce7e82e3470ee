package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
	"github.com/okay456okay/crypto-earn-sub001/internal/retry"
)

// ExecutorParams tune fill verification.
type ExecutorParams struct {
	BaseAsset        string
	PollInterval     time.Duration
	MaxFillWait      time.Duration
	FillGapTolerance float64
	// FeeCompensation pads the spot buy quantity so the post-fee base
	// amount still matches the contract leg.
	FeeCompensation float64
}

// Executor fires both legs of an approved trade concurrently and settles
// them into verified fill quantities.
type Executor struct {
	spot     domain.VenueAdapter
	contract domain.VenueAdapter
	params   ExecutorParams
	retry    retry.Policy
	logger   *slog.Logger
}

// NewExecutor builds an executor over the two venue adapters.
func NewExecutor(spot, contract domain.VenueAdapter, params ExecutorParams, logger *slog.Logger) *Executor {
	return &Executor{
		spot:     spot,
		contract: contract,
		params:   params,
		retry:    retry.DefaultPolicy(),
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// legSnapshot captures the observable state of one venue immediately before
// dispatch, used to infer fills when the venue reports a terminal state
// with a zero quantity.
type legSnapshot struct {
	balance  domain.Balance
	position domain.Position
}

// Run executes both legs of intent and returns their settled results.
//
// The returned PairResult is meaningful even on error: a leg that filled
// while its sibling failed carries its fill so the caller can record the
// imbalance. Verification runs on a context detached from cancellation;
// once an order is placed its fate must be resolved.
func (e *Executor) Run(ctx context.Context, intent domain.TradeIntent) (domain.PairResult, error) {
	res := domain.PairResult{Intent: intent}

	spotSide := intent.Direction.SpotSide()
	contractSide := intent.Direction.ContractSide()

	spotQty := intent.Quantity
	if spotSide == domain.OrderSideBuy {
		spotQty = intent.Quantity * (1 + e.params.FeeCompensation)
	}

	spotBefore, err := e.snapshot(ctx, e.spot, intent.Instrument)
	if err != nil {
		return res, fmt.Errorf("engine: pre-trade spot snapshot: %w", err)
	}
	contBefore, err := e.snapshot(ctx, e.contract, intent.Instrument)
	if err != nil {
		return res, fmt.Errorf("engine: pre-trade contract snapshot: %w", err)
	}

	contractOpts := domain.OrderOpts{ReduceOnly: intent.Direction == domain.DirectionClose}

	// Both dispatches fire before either response is awaited so the
	// one-legged exposure window stays as small as possible.
	var (
		wg               sync.WaitGroup
		spotH, contH     domain.OrderHandle
		spotErr, contErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		spotH, spotErr = e.spot.PlaceMarketOrder(ctx, intent.Instrument, spotSide, spotQty, domain.OrderOpts{})
	}()
	go func() {
		defer wg.Done()
		contH, contErr = e.contract.PlaceMarketOrder(ctx, intent.Instrument, contractSide, intent.Quantity, contractOpts)
	}()
	wg.Wait()

	// A placed order cannot be un-placed: verification must not be
	// abandoned by session shutdown.
	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.params.MaxFillWait)
	defer cancel()

	if spotErr == nil {
		res.Spot = e.settleLeg(vctx, e.spot, spotH, spotBefore)
	}
	if contErr == nil {
		res.Contract = e.settleLeg(vctx, e.contract, contH, contBefore)
	}
	res.Spot.Venue = e.spot.Name()
	res.Spot.Side = spotSide
	res.Spot.RequestedQty = spotQty
	res.Contract.Venue = e.contract.Name()
	res.Contract.Side = contractSide
	res.Contract.RequestedQty = intent.Quantity

	if spotErr != nil || contErr != nil {
		err := errors.Join(spotErr, contErr)
		e.logger.Error("leg dispatch failed",
			slog.String("intent_id", intent.ID),
			slog.Float64("spot_filled", res.Spot.FilledQty),
			slog.Float64("contract_filled", res.Contract.FilledQty),
			slog.String("error", err.Error()),
		)
		return res, fmt.Errorf("engine: leg dispatch: %w", err)
	}

	if verr := e.verify(res); verr != nil {
		e.logger.Warn("fill verification failed",
			slog.String("intent_id", intent.ID),
			slog.Float64("spot_filled", res.Spot.FilledQty),
			slog.Float64("contract_filled", res.Contract.FilledQty),
			slog.Float64("gap", res.FillGap()),
			slog.String("error", verr.Error()),
		)
		return res, verr
	}

	e.logger.Info("paired trade settled",
		slog.String("intent_id", intent.ID),
		slog.Float64("spot_filled", res.Spot.FilledQty),
		slog.Float64("spot_avg_price", res.Spot.AvgPrice),
		slog.Float64("contract_filled", res.Contract.FilledQty),
		slog.Float64("contract_avg_price", res.Contract.AvgPrice),
	)
	return res, nil
}

// settleLeg polls one order to a terminal state and reconstructs zero
// fills from balance or position deltas.
func (e *Executor) settleLeg(ctx context.Context, venue domain.VenueAdapter, h domain.OrderHandle, before legSnapshot) domain.LegResult {
	leg := domain.LegResult{State: domain.OrderStateOpen}

	status, err := e.awaitTerminal(ctx, venue, h)
	if err != nil {
		e.logger.Error("order never reached terminal state",
			slog.String("venue", venue.Name()),
			slog.String("order_id", h.OrderID),
			slog.String("error", err.Error()),
		)
		// Fall through: the delta inference below is the only estimate
		// left for an order of unknown fate.
	} else {
		leg.State = status.State
		leg.FilledQty = status.FilledQty
		leg.AvgPrice = status.AvgPrice
		leg.FeeBase = status.FeeBase
		leg.FeeQuote = status.FeeQuote
	}

	// Some venues report filled with a zero quantity right after the
	// fill. Reconstruct from the observable delta in that case.
	if leg.FilledQty == 0 && leg.State != domain.OrderStateRejected {
		if inferred, ok := e.inferFill(ctx, venue, h, before); ok {
			leg.FilledQty = inferred
			leg.Inferred = true
			if leg.State == domain.OrderStateOpen {
				leg.State = domain.OrderStateFilled
			}
			e.logger.Warn("fill inferred from balance delta",
				slog.String("venue", venue.Name()),
				slog.String("order_id", h.OrderID),
				slog.Float64("inferred_qty", inferred),
			)
		}
	}
	return leg
}

func (e *Executor) awaitTerminal(ctx context.Context, venue domain.VenueAdapter, h domain.OrderHandle) (domain.OrderStatus, error) {
	ticker := time.NewTicker(e.params.PollInterval)
	defer ticker.Stop()

	for {
		var status domain.OrderStatus
		err := e.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			status, err = venue.PollOrder(ctx, h)
			return err
		})
		if err == nil && status.State.Terminal() {
			return status, nil
		}
		if err != nil && !errors.Is(err, domain.ErrOrderPending) {
			return domain.OrderStatus{}, err
		}
		select {
		case <-ctx.Done():
			return domain.OrderStatus{}, fmt.Errorf("engine: fill wait: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// inferFill estimates the filled quantity from the base balance delta (spot
// venues) or the position delta (contract venues). The estimate is noisy
// when anything else moves the balance concurrently, so it only ever runs
// when the venue reported zero.
func (e *Executor) inferFill(ctx context.Context, venue domain.VenueAdapter, h domain.OrderHandle, before legSnapshot) (float64, bool) {
	after, err := e.snapshot(ctx, venue, h.Instrument)
	if err != nil {
		e.logger.Error("post-trade snapshot failed",
			slog.String("venue", venue.Name()),
			slog.String("error", err.Error()),
		)
		return 0, false
	}

	var delta float64
	if after.position != (domain.Position{}) || before.position != (domain.Position{}) {
		delta = after.position.Size - before.position.Size
	} else {
		delta = after.balance.Total() - before.balance.Total()
	}
	if h.Side == domain.OrderSideSell {
		delta = -delta
	}
	if delta <= 0 {
		return 0, false
	}
	return delta, true
}

func (e *Executor) snapshot(ctx context.Context, venue domain.VenueAdapter, instrument string) (legSnapshot, error) {
	var snap legSnapshot
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		bal, err := venue.FetchBalance(ctx, e.params.BaseAsset)
		if err != nil {
			return err
		}
		snap.balance = bal
		return nil
	})
	if err != nil {
		return snap, err
	}
	err = e.retry.Do(ctx, func(ctx context.Context) error {
		pos, err := venue.FetchPosition(ctx, instrument)
		if err != nil {
			return err
		}
		snap.position = pos
		return nil
	})
	return snap, err
}

// verify enforces the paired-fill contract: both legs filled something and
// their quantities agree within tolerance.
func (e *Executor) verify(res domain.PairResult) error {
	if res.Spot.FilledQty <= 0 || res.Contract.FilledQty <= 0 {
		return fmt.Errorf("engine: leg filled zero (spot %.6f, contract %.6f): %w",
			res.Spot.FilledQty, res.Contract.FilledQty, domain.ErrVerificationMismatch)
	}
	if gap := res.FillGap(); gap > e.params.FillGapTolerance {
		return fmt.Errorf("engine: fill gap %.4f exceeds tolerance %.4f: %w",
			gap, e.params.FillGapTolerance, domain.ErrVerificationMismatch)
	}
	return nil
}
