package binance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

// StreamBookTop subscribes to the symbol's book-ticker stream and forwards
// each update as a BookTop until ctx is cancelled. A broken stream returns
// an error wrapping ErrStreamDisconnect so the aggregator resubscribes.
func (a *Adapter) StreamBookTop(ctx context.Context, instrument string, out chan<- domain.BookTop) error {
	events := make(chan domain.BookTop, 64)
	streamErr := make(chan error, 1)

	handler := func(ev *binance.WsBookTickerEvent) {
		top := domain.BookTop{
			Venue:      venueName,
			Instrument: ev.Symbol,
			BidPrice:   parseFloat(ev.BestBidPrice),
			BidSize:    parseFloat(ev.BestBidQty),
			AskPrice:   parseFloat(ev.BestAskPrice),
			AskSize:    parseFloat(ev.BestAskQty),
			CapturedAt: time.Now().UTC(),
		}
		select {
		case events <- top:
		default:
			// Drop on backpressure; the next tick supersedes this one.
		}
	}
	errHandler := func(err error) {
		select {
		case streamErr <- err:
		default:
		}
	}

	doneC, stopC, err := binance.WsBookTickerServe(instrument, handler, errHandler)
	if err != nil {
		return fmt.Errorf("binance: subscribe book ticker %s: %w", instrument, domain.ErrStreamDisconnect)
	}
	a.logger.Info("book ticker stream connected", slog.String("symbol", instrument))

	for {
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return ctx.Err()
		case top := <-events:
			select {
			case out <- top:
			case <-ctx.Done():
				close(stopC)
				<-doneC
				return ctx.Err()
			}
		case err := <-streamErr:
			close(stopC)
			<-doneC
			return fmt.Errorf("binance: book ticker stream %s: %v: %w", instrument, err, domain.ErrStreamDisconnect)
		case <-doneC:
			return fmt.Errorf("binance: book ticker stream %s closed: %w", instrument, domain.ErrStreamDisconnect)
		}
	}
}
