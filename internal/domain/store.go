package domain

import "context"

// TradeStore persists settled trades and corrective orders.
type TradeStore interface {
	SaveTrade(ctx context.Context, rec TradeRecord) error
	SaveRebalance(ctx context.Context, rec RebalanceRecord) error
	SaveSummary(ctx context.Context, sum RunSummary) error
}

// EventBus publishes session lifecycle and trade events for external
// consumers (dashboards, alert pipelines).
type EventBus interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// ReportWriter archives the final run summary to durable object storage.
type ReportWriter interface {
	WriteReport(ctx context.Context, key string, body []byte) error
}

// SessionLock guards one instrument so that at most one hedge session
// trades it at a time.
type SessionLock interface {
	// Acquire takes the lock or returns ErrLockHeld.
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Notifier delivers human-facing messages about session milestones.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}
