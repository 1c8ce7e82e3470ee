// Package retry provides a small exponential-backoff wrapper for
// idempotent venue reads. Order placement is never routed through it.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

// Policy configures how an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy suits short REST reads: three attempts, 200ms base.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or ctx is done. Delays grow exponentially with jitter.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !domain.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
	return fmt.Errorf("retry: %d attempts: %w", p.MaxAttempts, err)
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	// up to 25% jitter to spread simultaneous retries
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}
