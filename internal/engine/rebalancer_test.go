package engine

import (
	"context"
	"math"
	"testing"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

func newTestRebalancer(spot, contract *fakeVenue, ledger *Ledger) *Rebalancer {
	e := NewExecutor(spot, contract, ExecutorParams{
		BaseAsset:        "SOL",
		PollInterval:     testPollInterval,
		MaxFillWait:      testMaxFillWait,
		FillGapTolerance: 0.01,
	}, testLogger())
	e.retry = fastRetry()
	return NewRebalancer(spot, contract, ledger, e, 6.0, testLogger())
}

func TestRunBuysSpotWhenContractAhead(t *testing.T) {
	spot := &fakeVenue{name: "binance"}
	contract := &fakeVenue{name: "bybit"}
	ledger := NewLedger()
	// Contract ran 0.05 ahead, worth 6.5 quote units at 130.
	ledger.Record(pairFills(9.95, 10.0, 130))
	r := newTestRebalancer(spot, contract, ledger)

	rec, err := r.Run(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec == nil {
		t.Fatal("Run() = nil record, want a correction")
	}
	if rec.Venue != "binance" || rec.Side != "buy" {
		t.Errorf("correction = %s/%s, want binance/buy", rec.Venue, rec.Side)
	}
	if math.Abs(rec.Requested-0.05) > 1e-12 {
		t.Errorf("Requested = %v, want 0.05", rec.Requested)
	}
	if got := ledger.State().CumulativeDiff; math.Abs(got) > 1e-9 {
		t.Errorf("CumulativeDiff = %v, want ~0 after correction", got)
	}
	if contract.placedCount() != 0 {
		t.Error("correction touched the contract venue")
	}
}

func TestRunSellsShortWhenSpotAhead(t *testing.T) {
	spot := &fakeVenue{name: "binance"}
	contract := &fakeVenue{name: "bybit"}
	ledger := NewLedger()
	ledger.Record(pairFills(10.0, 9.95, 130)) // diff -0.05, value -6.5
	r := newTestRebalancer(spot, contract, ledger)

	rec, err := r.Run(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec == nil || rec.Venue != "bybit" || rec.Side != "sell" {
		t.Fatalf("correction = %+v, want bybit/sell", rec)
	}
	if spot.placedCount() != 0 {
		t.Error("correction touched the spot venue")
	}
}

func TestRunIsNoOpBelowThreshold(t *testing.T) {
	spot := &fakeVenue{name: "binance"}
	contract := &fakeVenue{name: "bybit"}
	ledger := NewLedger()
	ledger.Record(pairFills(10.0, 9.99, 100)) // value -1, below 6
	r := newTestRebalancer(spot, contract, ledger)

	rec, err := r.Run(context.Background(), "SOLUSDT")
	if err != nil || rec != nil {
		t.Fatalf("Run() = (%+v, %v), want no-op", rec, err)
	}
	if spot.placedCount()+contract.placedCount() != 0 {
		t.Error("no-op placed an order")
	}
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	spot := &fakeVenue{name: "binance"}
	contract := &fakeVenue{name: "bybit"}
	ledger := NewLedger()
	ledger.Record(pairFills(9.95, 10.0, 130))
	r := newTestRebalancer(spot, contract, ledger)

	if _, err := r.Run(context.Background(), "SOLUSDT"); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	rec, err := r.Run(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if rec != nil {
		t.Fatal("second Run() placed an order after the first zeroed the imbalance")
	}
	if spot.placedCount() != 1 {
		t.Fatalf("orders placed = %d, want exactly 1", spot.placedCount())
	}
}

func TestRunPartialCorrectionLeavesRemainder(t *testing.T) {
	spot := &fakeVenue{name: "binance"}
	spot.pollFn = func(h domain.OrderHandle, _ int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderStatePartiallyClosed, FilledQty: h.RequestedQty / 2, AvgPrice: 130}, nil
	}
	contract := &fakeVenue{name: "bybit"}
	ledger := NewLedger()
	ledger.Record(pairFills(9.9, 10.0, 130)) // diff +0.1, value 13
	r := newTestRebalancer(spot, contract, ledger)

	rec, err := r.Run(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if math.Abs(rec.Filled-0.05) > 1e-9 {
		t.Errorf("Filled = %v, want 0.05", rec.Filled)
	}
	if got := ledger.State().CumulativeDiff; math.Abs(got-0.05) > 1e-9 {
		t.Errorf("remaining diff = %v, want 0.05", got)
	}
}
