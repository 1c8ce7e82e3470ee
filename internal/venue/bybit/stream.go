package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

const (
	wsWriteWait  = 10 * time.Second
	wsReadWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
)

type wsRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type wsEnvelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	TS    int64           `json:"ts"`
	Op    string          `json:"op"`
}

type wsOrderbookData struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
}

// StreamBookTop subscribes to the depth-1 orderbook topic and forwards
// each change as a BookTop until ctx is cancelled. Any transport failure
// returns an error wrapping ErrStreamDisconnect; the caller resubscribes.
func (a *Adapter) StreamBookTop(ctx context.Context, instrument string, out chan<- domain.BookTop) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		return fmt.Errorf("bybit: dial %s: %v: %w", a.wsURL, err, domain.ErrStreamDisconnect)
	}
	defer conn.Close()

	topic := "orderbook.1." + instrument
	sub := wsRequest{Op: "subscribe", Args: []string{topic}}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("bybit: subscribe %s: %v: %w", topic, err, domain.ErrStreamDisconnect)
	}
	a.logger.Info("orderbook stream connected", slog.String("topic", topic))

	// Close the connection when ctx ends so the read loop unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(wsRequest{Op: "ping"}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	// Depth-1 deltas only carry the sides that changed; the last seen
	// values fill the gaps.
	var book wsOrderbookData
	for {
		conn.SetReadDeadline(time.Now().Add(wsReadWait))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bybit: read %s: %v: %w", topic, err, domain.ErrStreamDisconnect)
		}

		var env wsEnvelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Topic != topic {
			continue // pong frames and subscription acks
		}
		var data wsOrderbookData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			a.logger.Warn("undecodable orderbook frame", slog.String("error", err.Error()))
			continue
		}
		mergeBook(&book, data, env.Type == "snapshot")

		top, ok := topOf(book, instrument, time.UnixMilli(env.TS))
		if !ok {
			continue
		}
		select {
		case out <- top:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// mergeBook applies a snapshot or delta frame to the retained book state.
func mergeBook(book *wsOrderbookData, frame wsOrderbookData, snapshot bool) {
	if snapshot {
		*book = frame
		return
	}
	if len(frame.Bids) > 0 {
		book.Bids = frame.Bids
	}
	if len(frame.Asks) > 0 {
		book.Asks = frame.Asks
	}
}

// topOf converts book state into a BookTop. Levels with zero size are
// treated as absent.
func topOf(book wsOrderbookData, instrument string, ts time.Time) (domain.BookTop, bool) {
	top := domain.BookTop{
		Venue:      venueName,
		Instrument: instrument,
		CapturedAt: ts,
	}
	if len(book.Bids) > 0 && len(book.Bids[0]) >= 2 {
		top.BidPrice = parseFloat(book.Bids[0][0])
		top.BidSize = parseFloat(book.Bids[0][1])
	}
	if len(book.Asks) > 0 && len(book.Asks[0]) >= 2 {
		top.AskPrice = parseFloat(book.Asks[0][0])
		top.AskSize = parseFloat(book.Asks[0][1])
	}
	if !top.Valid() || top.BidSize <= 0 || top.AskSize <= 0 {
		return domain.BookTop{}, false
	}
	return top, true
}
