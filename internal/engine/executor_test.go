package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

func openIntent(qty float64) domain.TradeIntent {
	return domain.TradeIntent{
		ID:               "intent-1",
		Instrument:       "SOLUSDT",
		Direction:        domain.DirectionOpen,
		Quantity:         qty,
		SpotRefPrice:     100.00,
		ContractRefPrice: 100.30,
	}
}

func TestRunSettlesBothLegs(t *testing.T) {
	spot := &fakeVenue{name: "binance"}
	contract := &fakeVenue{name: "bybit"}
	e := newTestExecutor(t, spot, contract)

	res, err := e.Run(context.Background(), openIntent(10))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The spot buy is padded for fees; the contract sell is not.
	wantSpotQty := 10 * 1.001
	if math.Abs(spot.placedQty[0]-wantSpotQty) > 1e-12 {
		t.Errorf("spot requested = %v, want %v", spot.placedQty[0], wantSpotQty)
	}
	if contract.placedQty[0] != 10 {
		t.Errorf("contract requested = %v, want 10", contract.placedQty[0])
	}
	if spot.placedSides[0] != domain.OrderSideBuy || contract.placedSides[0] != domain.OrderSideSell {
		t.Errorf("sides = %v/%v, want buy/sell", spot.placedSides[0], contract.placedSides[0])
	}
	if res.Spot.FilledQty <= 0 || res.Contract.FilledQty <= 0 {
		t.Errorf("fills = %v/%v, want both positive", res.Spot.FilledQty, res.Contract.FilledQty)
	}
	if res.Spot.Venue != "binance" || res.Contract.Venue != "bybit" {
		t.Errorf("venues = %s/%s", res.Spot.Venue, res.Contract.Venue)
	}
}

func TestRunCloseDirectionUsesReduceOnly(t *testing.T) {
	spot := &fakeVenue{name: "binance"}
	contract := &fakeVenue{name: "bybit"}
	e := newTestExecutor(t, spot, contract)

	intent := openIntent(10)
	intent.Direction = domain.DirectionClose
	if _, err := e.Run(context.Background(), intent); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if spot.placedSides[0] != domain.OrderSideSell {
		t.Errorf("spot side = %v, want sell", spot.placedSides[0])
	}
	if contract.placedSides[0] != domain.OrderSideBuy {
		t.Errorf("contract side = %v, want buy", contract.placedSides[0])
	}
	if !contract.placedOpts[0].ReduceOnly {
		t.Error("contract close order not reduce-only")
	}
	// No fee padding on a spot sell.
	if spot.placedQty[0] != 10 {
		t.Errorf("spot requested = %v, want 10", spot.placedQty[0])
	}
}

func TestRunInfersFillFromBalanceDelta(t *testing.T) {
	// The venue reports filled with zero quantity; the base balance rose
	// by 9.99 across the trade.
	calls := 0
	spot := &fakeVenue{name: "binance"}
	spot.pollFn = func(h domain.OrderHandle, _ int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderStateFilled, FilledQty: 0}, nil
	}
	spot.balanceFn = func(asset string) (domain.Balance, error) {
		calls++
		if calls == 1 {
			return domain.Balance{Asset: asset, Free: 2.0}, nil
		}
		return domain.Balance{Asset: asset, Free: 11.99}, nil
	}
	contract := &fakeVenue{name: "bybit"}
	contract.pollFn = func(h domain.OrderHandle, _ int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderStateFilled, FilledQty: 10, AvgPrice: 100.3}, nil
	}
	e := newTestExecutor(t, spot, contract)

	res, err := e.Run(context.Background(), openIntent(10))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Spot.Inferred {
		t.Fatal("spot fill not marked inferred")
	}
	if math.Abs(res.Spot.FilledQty-9.99) > 1e-9 {
		t.Errorf("inferred fill = %v, want 9.99", res.Spot.FilledQty)
	}
}

func TestRunInfersShortFillFromPositionDelta(t *testing.T) {
	spot := &fakeVenue{name: "binance"}
	posCalls := 0
	contract := &fakeVenue{name: "bybit"}
	contract.pollFn = func(h domain.OrderHandle, _ int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderStateFilled, FilledQty: 0}, nil
	}
	contract.positionFn = func(string) (domain.Position, error) {
		posCalls++
		if posCalls == 1 {
			return domain.Position{Instrument: "SOLUSDT", Size: -5}, nil
		}
		return domain.Position{Instrument: "SOLUSDT", Size: -15}, nil
	}
	e := newTestExecutor(t, spot, contract)

	res, err := e.Run(context.Background(), openIntent(10))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Contract.Inferred {
		t.Fatal("contract fill not marked inferred")
	}
	if math.Abs(res.Contract.FilledQty-10) > 1e-9 {
		t.Errorf("inferred fill = %v, want 10", res.Contract.FilledQty)
	}
}

func TestRunFillGapBeyondTolerance(t *testing.T) {
	spot := &fakeVenue{name: "binance"}
	spot.pollFn = func(h domain.OrderHandle, _ int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderStateFilled, FilledQty: 10, AvgPrice: 100}, nil
	}
	contract := &fakeVenue{name: "bybit"}
	contract.pollFn = func(h domain.OrderHandle, _ int) (domain.OrderStatus, error) {
		// 8 vs 10 is a 20% gap against a 1% tolerance.
		return domain.OrderStatus{State: domain.OrderStatePartiallyClosed, FilledQty: 8, AvgPrice: 100.3}, nil
	}
	e := newTestExecutor(t, spot, contract)

	res, err := e.Run(context.Background(), openIntent(10))
	if !errors.Is(err, domain.ErrVerificationMismatch) {
		t.Fatalf("Run() error = %v, want ErrVerificationMismatch", err)
	}
	// Fills must still be reported so the caller records the imbalance.
	if res.Spot.FilledQty != 10 || res.Contract.FilledQty != 8 {
		t.Errorf("fills = %v/%v, want 10/8", res.Spot.FilledQty, res.Contract.FilledQty)
	}
}

func TestRunGapWithinToleranceVerifies(t *testing.T) {
	spot := &fakeVenue{name: "binance"}
	spot.pollFn = func(h domain.OrderHandle, _ int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderStateFilled, FilledQty: 10.0, AvgPrice: 100}, nil
	}
	contract := &fakeVenue{name: "bybit"}
	contract.pollFn = func(h domain.OrderHandle, _ int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderStateFilled, FilledQty: 9.95, AvgPrice: 100.3}, nil
	}
	e := newTestExecutor(t, spot, contract)

	if _, err := e.Run(context.Background(), openIntent(10)); err != nil {
		t.Fatalf("Run() error = %v for a 0.5%% gap with 1%% tolerance", err)
	}
}

func TestRunOneLegRejectedReportsSiblingFill(t *testing.T) {
	spot := &fakeVenue{name: "binance"}
	contract := &fakeVenue{name: "bybit"}
	contract.placeFn = func(string, domain.OrderSide, float64, domain.OrderOpts) (domain.OrderHandle, error) {
		return domain.OrderHandle{}, fmt.Errorf("bybit: %w", domain.ErrRejectedOrder)
	}
	e := newTestExecutor(t, spot, contract)

	res, err := e.Run(context.Background(), openIntent(10))
	if !errors.Is(err, domain.ErrRejectedOrder) {
		t.Fatalf("Run() error = %v, want ErrRejectedOrder", err)
	}
	if res.Spot.FilledQty <= 0 {
		t.Error("spot fill lost on sibling rejection, imbalance would go unrecorded")
	}
	if res.Contract.FilledQty != 0 {
		t.Errorf("contract fill = %v, want 0", res.Contract.FilledQty)
	}
}

func TestRunWaitsThroughPendingPolls(t *testing.T) {
	spot := &fakeVenue{name: "binance"}
	spot.pollFn = func(h domain.OrderHandle, nth int) (domain.OrderStatus, error) {
		if nth < 3 {
			return domain.OrderStatus{State: domain.OrderStateOpen}, nil
		}
		return domain.OrderStatus{State: domain.OrderStateFilled, FilledQty: h.RequestedQty, AvgPrice: 100}, nil
	}
	contract := &fakeVenue{name: "bybit"}
	e := newTestExecutor(t, spot, contract)

	res, err := e.Run(context.Background(), openIntent(10))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Spot.State != domain.OrderStateFilled {
		t.Errorf("spot state = %v, want filled", res.Spot.State)
	}
}

func TestRunVerificationSurvivesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	spot := &fakeVenue{name: "binance"}
	spot.placeFn = func(instrument string, side domain.OrderSide, qty float64, _ domain.OrderOpts) (domain.OrderHandle, error) {
		cancel() // shutdown lands while the order is in flight
		return domain.OrderHandle{Venue: "binance", Instrument: instrument, OrderID: "o1", Side: side, RequestedQty: qty}, nil
	}
	contract := &fakeVenue{name: "bybit"}
	e := newTestExecutor(t, spot, contract)

	res, err := e.Run(ctx, openIntent(10))
	if err != nil {
		t.Fatalf("Run() error = %v, verification must outlive cancellation", err)
	}
	if res.Spot.FilledQty <= 0 || res.Contract.FilledQty <= 0 {
		t.Errorf("fills = %v/%v, want both resolved", res.Spot.FilledQty, res.Contract.FilledQty)
	}
}
