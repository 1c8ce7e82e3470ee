package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnFatal(t *testing.T) {
	calls := 0
	fatal := fmt.Errorf("auth: %w", domain.ErrFatalAdapter)
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, domain.ErrFatalAdapter) {
		t.Fatalf("Do() = %v, want ErrFatalAdapter", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on fatal)", calls)
	}
}

func TestDoStopsOnRejectedOrder(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("place: %w", domain.ErrRejectedOrder)
	})
	if !errors.Is(err, domain.ErrRejectedOrder) {
		t.Fatalf("Do() = %v, want ErrRejectedOrder", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	base := errors.New("flaky")
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return base
	})
	if !errors.Is(err, base) {
		t.Fatalf("Do() = %v, want wrapped %v", err, base)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Policy{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond}.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
