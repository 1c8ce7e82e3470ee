package engine

import (
	"math"
	"testing"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

func pairFills(spot, contract, price float64) domain.PairResult {
	return domain.PairResult{
		Intent:   domain.TradeIntent{Direction: domain.DirectionOpen},
		Spot:     domain.LegResult{FilledQty: spot, AvgPrice: price},
		Contract: domain.LegResult{FilledQty: contract, AvgPrice: price},
	}
}

func TestLedgerConservation(t *testing.T) {
	l := NewLedger()
	fills := [][2]float64{
		{10.0, 9.95},
		{5.0, 5.02},
		{0, 3.0}, // partial failure: only the contract leg filled
		{7.5, 7.5},
	}
	var want float64
	for _, f := range fills {
		l.Record(pairFills(f[0], f[1], 100))
		want += f[1] - f[0]
	}

	state := l.State()
	if math.Abs(state.CumulativeDiff-want) > 1e-12 {
		t.Fatalf("CumulativeDiff = %v, want %v", state.CumulativeDiff, want)
	}
	if state.Trades != len(fills) {
		t.Errorf("Trades = %d, want %d", state.Trades, len(fills))
	}
}

func TestLedgerDiffValueTracksReferencePrice(t *testing.T) {
	l := NewLedger()
	l.Record(pairFills(10.0, 9.95, 100)) // diff -0.05 at price 100

	if got := l.State().CumulativeDiffValue; math.Abs(got-(-5.0)) > 1e-9 {
		t.Fatalf("CumulativeDiffValue = %v, want -5.0", got)
	}

	l.SetReferencePrice(130)
	if got := l.State().CumulativeDiffValue; math.Abs(got-(-6.5)) > 1e-9 {
		t.Fatalf("CumulativeDiffValue = %v, want -6.5", got)
	}
}

func TestNeedsRebalanceThreshold(t *testing.T) {
	l := NewLedger()
	l.Record(pairFills(10.0, 9.95, 130)) // diff -0.05, value -6.5

	if !l.NeedsRebalance(6.0) {
		t.Fatal("NeedsRebalance(6.0) = false with |value| 6.5")
	}
	if l.NeedsRebalance(7.0) {
		t.Fatal("NeedsRebalance(7.0) = true with |value| 6.5")
	}
}

func TestCorrectionDirection(t *testing.T) {
	t.Run("spot ahead grows the short", func(t *testing.T) {
		l := NewLedger()
		l.Record(pairFills(10.0, 9.95, 100)) // diff -0.05
		qty, side, spotLeg := l.CorrectionFor()
		if math.Abs(qty-0.05) > 1e-12 || side != domain.OrderSideSell || spotLeg {
			t.Fatalf("CorrectionFor() = (%v, %v, %v), want (0.05, sell, contract leg)", qty, side, spotLeg)
		}
	})
	t.Run("contract ahead buys spot", func(t *testing.T) {
		l := NewLedger()
		l.Record(pairFills(9.9, 10.0, 100)) // diff +0.1
		qty, side, spotLeg := l.CorrectionFor()
		if math.Abs(qty-0.1) > 1e-12 || side != domain.OrderSideBuy || !spotLeg {
			t.Fatalf("CorrectionFor() = (%v, %v, %v), want (0.1, buy, spot leg)", qty, side, spotLeg)
		}
	})
}

func TestApplyCorrectionFlattens(t *testing.T) {
	l := NewLedger()
	l.Record(pairFills(10.0, 9.95, 130)) // diff -0.05

	l.ApplyCorrection(0.05)
	state := l.State()
	if math.Abs(state.CumulativeDiff) > 1e-12 {
		t.Fatalf("CumulativeDiff = %v, want 0 after full correction", state.CumulativeDiff)
	}
	if state.Rebalances != 1 {
		t.Errorf("Rebalances = %d, want 1", state.Rebalances)
	}
	if l.NeedsRebalance(6.0) {
		t.Error("NeedsRebalance still true after the imbalance was flattened")
	}
}

func TestApplyCorrectionPartialFill(t *testing.T) {
	l := NewLedger()
	l.Record(pairFills(9.9, 10.0, 100)) // diff +0.1

	l.ApplyCorrection(0.06)
	if got := l.State().CumulativeDiff; math.Abs(got-0.04) > 1e-12 {
		t.Fatalf("CumulativeDiff = %v, want 0.04 after partial correction", got)
	}
}
