package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
	"github.com/okay456okay/crypto-earn-sub001/internal/metrics"
	"github.com/okay456okay/crypto-earn-sub001/internal/retry"
)

const (
	testPollInterval = time.Millisecond
	testMaxFillWait  = 200 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

// fakeVenue is a scriptable VenueAdapter. Each hook has a benign default:
// orders fill in full at the requested quantity, balances and positions are
// zero, streams block until cancelled.
type fakeVenue struct {
	name string

	mu          sync.Mutex
	placedQty   []float64
	placedSides []domain.OrderSide
	placedOpts  []domain.OrderOpts
	polls       int
	leverage    int

	placeFn    func(instrument string, side domain.OrderSide, qty float64, opts domain.OrderOpts) (domain.OrderHandle, error)
	pollFn     func(h domain.OrderHandle, nthPoll int) (domain.OrderStatus, error)
	balanceFn  func(asset string) (domain.Balance, error)
	positionFn func(instrument string) (domain.Position, error)
	streamFn   func(ctx context.Context, instrument string, out chan<- domain.BookTop) error
	leverageFn func(instrument string, leverage int) error
}

var _ domain.VenueAdapter = (*fakeVenue)(nil)

func (f *fakeVenue) Name() string { return f.name }

func (f *fakeVenue) StreamBookTop(ctx context.Context, instrument string, out chan<- domain.BookTop) error {
	if f.streamFn != nil {
		return f.streamFn(ctx, instrument, out)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeVenue) PlaceMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, qty float64, opts domain.OrderOpts) (domain.OrderHandle, error) {
	f.mu.Lock()
	f.placedQty = append(f.placedQty, qty)
	f.placedSides = append(f.placedSides, side)
	f.placedOpts = append(f.placedOpts, opts)
	n := len(f.placedQty)
	f.mu.Unlock()

	if f.placeFn != nil {
		return f.placeFn(instrument, side, qty, opts)
	}
	return domain.OrderHandle{
		Venue:        f.name,
		Instrument:   instrument,
		OrderID:      f.name + "-order-" + string(rune('0'+n)),
		Side:         side,
		RequestedQty: qty,
		PlacedAt:     time.Now(),
	}, nil
}

func (f *fakeVenue) PollOrder(ctx context.Context, h domain.OrderHandle) (domain.OrderStatus, error) {
	f.mu.Lock()
	f.polls++
	n := f.polls
	f.mu.Unlock()
	if f.pollFn != nil {
		return f.pollFn(h, n)
	}
	return domain.OrderStatus{State: domain.OrderStateFilled, FilledQty: h.RequestedQty, AvgPrice: 100}, nil
}

func (f *fakeVenue) FetchBalance(ctx context.Context, asset string) (domain.Balance, error) {
	if f.balanceFn != nil {
		return f.balanceFn(asset)
	}
	return domain.Balance{Asset: asset}, nil
}

func (f *fakeVenue) FetchPosition(ctx context.Context, instrument string) (domain.Position, error) {
	if f.positionFn != nil {
		return f.positionFn(instrument)
	}
	return domain.Position{}, nil
}

func (f *fakeVenue) SetLeverage(ctx context.Context, instrument string, leverage int) error {
	f.mu.Lock()
	f.leverage = leverage
	f.mu.Unlock()
	if f.leverageFn != nil {
		return f.leverageFn(instrument, leverage)
	}
	return nil
}

func (f *fakeVenue) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placedQty)
}

// bookPair builds a fresh snapshot pair with the given levels.
func bookPair(now time.Time, spotBid, spotAsk, contBid, contAsk, size float64) domain.SnapshotPair {
	return domain.SnapshotPair{
		Spot: domain.BookTop{
			Venue: "binance", Instrument: "SOLUSDT",
			BidPrice: spotBid, BidSize: size,
			AskPrice: spotAsk, AskSize: size,
			CapturedAt: now,
		},
		Contract: domain.BookTop{
			Venue: "bybit", Instrument: "SOLUSDT",
			BidPrice: contBid, BidSize: size,
			AskPrice: contAsk, AskSize: size,
			CapturedAt: now,
		},
		PairedAt: now,
	}
}

func newTestExecutor(t *testing.T, spot, contract *fakeVenue) *Executor {
	t.Helper()
	e := NewExecutor(spot, contract, ExecutorParams{
		BaseAsset:        "SOL",
		PollInterval:     testPollInterval,
		MaxFillWait:      testMaxFillWait,
		FillGapTolerance: 0.01,
		FeeCompensation:  0.001,
	}, testLogger())
	e.retry = fastRetry()
	return e
}
