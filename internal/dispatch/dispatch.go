// Package dispatch hands newly stored messages to the downstream
// classification pipeline. Delivery is fire-and-forget from the sync
// engine's point of view; failures are logged, never retried inline, and
// never fail a sync.
package dispatch

import (
	"context"
	"log/slog"
	"time"
)

// MessageEvent is the contract with the classification pipeline. Exactly
// one event is emitted per canonical insert; re-observations are silent.
type MessageEvent struct {
	MessageID  uint      `json:"message_id"`
	AccountID  uint      `json:"account_id"`
	ReceivedAt time.Time `json:"received_at"`
}

// Dispatcher emits message events to the downstream pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, event MessageEvent) error
	Close()
}

// NopDispatcher logs and drops events. Used when DISPATCH_DISABLED is set.
type NopDispatcher struct {
	logger *slog.Logger
}

// NewNopDispatcher creates a NopDispatcher.
func NewNopDispatcher(logger *slog.Logger) *NopDispatcher {
	return &NopDispatcher{logger: logger}
}

// Dispatch implements Dispatcher.
func (d *NopDispatcher) Dispatch(_ context.Context, event MessageEvent) error {
	if d.logger != nil {
		d.logger.Debug("dispatch disabled, dropping event",
			slog.Uint64("message_id", uint64(event.MessageID)),
			slog.Uint64("account_id", uint64(event.AccountID)),
		)
	}
	return nil
}

// Close implements Dispatcher.
func (d *NopDispatcher) Close() {}
