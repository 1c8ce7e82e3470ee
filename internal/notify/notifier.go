// Package notify delivers operator-facing messages about hedge session
// milestones over one or more channels (Telegram, Discord).
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
	Name() string
}

// Notifier fans a message out to every configured sender. One failing
// channel does not block the others.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

var _ domain.Notifier = (*Notifier)(nil)

// New creates a Notifier over the given senders. An empty sender list is
// valid; Notify then does nothing.
func New(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers subject and body to all senders and joins their errors.
func (n *Notifier) Notify(ctx context.Context, subject, body string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, subject, body); err != nil {
			n.logger.Warn("sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
