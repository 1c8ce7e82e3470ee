package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

const (
	resubscribeBase = time.Second
	resubscribeMax  = 30 * time.Second
)

// Aggregator merges the spot and contract venues' top-of-book streams into
// a single freshness-checked snapshot pair.
type Aggregator struct {
	spot       domain.VenueAdapter
	contract   domain.VenueAdapter
	instrument string
	maxAge     time.Duration
	logger     *slog.Logger

	mu      sync.RWMutex
	spotTop domain.BookTop
	contTop domain.BookTop
	spotOK  bool
	contOK  bool
}

// NewAggregator wires an aggregator over the two venue adapters.
func NewAggregator(spot, contract domain.VenueAdapter, instrument string, maxAge time.Duration, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		spot:       spot,
		contract:   contract,
		instrument: instrument,
		maxAge:     maxAge,
		logger:     logger.With(slog.String("component", "aggregator")),
	}
}

// Run subscribes to both venues and keeps the latest tops current until ctx
// is cancelled. Stream disconnects are resubscribed with exponential
// backoff; only a non-disconnect stream error stops the aggregator.
func (a *Aggregator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.consume(ctx, a.spot, a.setSpot) })
	g.Go(func() error { return a.consume(ctx, a.contract, a.setContract) })
	return g.Wait()
}

func (a *Aggregator) consume(ctx context.Context, venue domain.VenueAdapter, store func(domain.BookTop, bool)) error {
	backoff := resubscribeBase
	for {
		out := make(chan domain.BookTop, 64)
		done := make(chan error, 1)
		go func() {
			done <- venue.StreamBookTop(ctx, a.instrument, out)
		}()

	recv:
		for {
			select {
			case <-ctx.Done():
				<-done
				return ctx.Err()
			case top := <-out:
				store(top, true)
				backoff = resubscribeBase
			case err := <-done:
				// drain anything buffered before deciding
				for {
					select {
					case top := <-out:
						store(top, true)
					default:
						store(domain.BookTop{}, false)
						if err == nil || errors.Is(err, context.Canceled) {
							return err
						}
						if !errors.Is(err, domain.ErrStreamDisconnect) {
							return err
						}
						a.logger.Warn("book stream disconnected, resubscribing",
							slog.String("venue", venue.Name()),
							slog.Duration("backoff", backoff),
							slog.String("error", err.Error()),
						)
						break recv
					}
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > resubscribeMax {
			backoff = resubscribeMax
		}
	}
}

func (a *Aggregator) setSpot(top domain.BookTop, ok bool) {
	a.mu.Lock()
	if ok {
		a.spotTop = top
	}
	a.spotOK = ok
	a.mu.Unlock()
}

func (a *Aggregator) setContract(top domain.BookTop, ok bool) {
	a.mu.Lock()
	if ok {
		a.contTop = top
	}
	a.contOK = ok
	a.mu.Unlock()
}

// Latest returns the most recent snapshot pair, or false when either venue
// has no fresh usable data. It never blocks.
func (a *Aggregator) Latest(now time.Time) (domain.SnapshotPair, bool) {
	a.mu.RLock()
	pair := domain.SnapshotPair{Spot: a.spotTop, Contract: a.contTop, PairedAt: now}
	spotOK, contOK := a.spotOK, a.contOK
	a.mu.RUnlock()

	if !spotOK || !contOK {
		return domain.SnapshotPair{}, false
	}
	if !pair.Fresh(now, a.maxAge) {
		a.logger.Debug("snapshot pair stale",
			slog.Duration("spot_age", pair.Spot.Age(now)),
			slog.Duration("contract_age", pair.Contract.Age(now)),
		)
		return domain.SnapshotPair{}, false
	}
	return pair, true
}
