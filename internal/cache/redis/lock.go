package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's
// unique token. This prevents one holder from accidentally releasing
// another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// SessionLock guards one instrument with Redis SETNX plus a TTL so that at
// most one hedge session trades it at a time, across processes. The lock
// is refreshed while held.
type SessionLock struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	key      string
	token    string
	ttl      time.Duration

	stopRefresh context.CancelFunc
}

var _ domain.SessionLock = (*SessionLock)(nil)

// NewSessionLock creates a lock for the given instrument.
func NewSessionLock(c *Client, instrument string, ttl time.Duration) *SessionLock {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SessionLock{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
		key:      "hedge:lock:" + instrument,
		token:    uuid.NewString(),
		ttl:      ttl,
	}
}

// Acquire takes the lock or returns domain.ErrLockHeld. While held, the
// TTL is extended in the background until Release.
func (l *SessionLock) Acquire(ctx context.Context) error {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: acquire %s: %w", l.key, err)
	}
	if !ok {
		return domain.ErrLockHeld
	}

	refreshCtx, cancel := context.WithCancel(context.Background())
	l.stopRefresh = cancel
	go l.refresh(refreshCtx)
	return nil
}

func (l *SessionLock) refresh(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = l.rdb.Expire(ctx, l.key, l.ttl).Err()
		}
	}
}

// Release frees the lock. Safe to call when the lock was never acquired.
func (l *SessionLock) Release(ctx context.Context) error {
	if l.stopRefresh != nil {
		l.stopRefresh()
		l.stopRefresh = nil
	}
	if err := l.unlockSc.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis: release %s: %w", l.key, err)
	}
	return nil
}
