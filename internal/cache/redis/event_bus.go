package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

// streamMaxLen caps the durable copy of each channel so an unattended
// deployment cannot grow Redis without bound.
const streamMaxLen = 10000

// EventBus fans hedge lifecycle events out over Redis. Every event is
// published on a pub/sub channel for live listeners and appended to a
// stream of the same name for consumers that attach later.
type EventBus struct {
	rdb *redis.Client
}

var _ domain.EventBus = (*EventBus)(nil)

func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish JSON-encodes payload and delivers it on channel.
func (b *EventBus) Publish(ctx context.Context, channel string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: encode event for %s: %w", channel, err)
	}
	if err := b.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: channel,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": raw},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: append %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of raw payloads published on channel. The
// subscription ends when ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := b.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
