package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const streamName = "CRM_EMAIL"

// JetStreamDispatcher publishes message events to NATS JetStream. The
// message ID doubles as the Nats-Msg-Id so the broker drops duplicates
// published inside the dedup window.
type JetStreamDispatcher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NewJetStreamDispatcher connects to NATS and ensures the stream exists.
func NewJetStreamDispatcher(url, subject string) (*JetStreamDispatcher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	d := &JetStreamDispatcher{nc: nc, js: js, subject: subject}
	if err := d.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return d, nil
}

func (d *JetStreamDispatcher) ensureStream() error {
	if info, err := d.js.StreamInfo(streamName); err == nil && info != nil {
		return nil
	}

	_, err := d.js.AddStream(&nats.StreamConfig{
		Name:       streamName,
		Subjects:   []string{"crm.email.>"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     7 * 24 * time.Hour,
	})
	if err != nil {
		if err == nats.ErrStreamNameAlreadyInUse {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Dispatch implements Dispatcher.
func (d *JetStreamDispatcher) Dispatch(_ context.Context, event MessageEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msgID := fmt.Sprintf("msg-%d", event.MessageID)
	if _, err := d.js.Publish(d.subject, payload, nats.MsgId(msgID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close implements Dispatcher.
func (d *JetStreamDispatcher) Close() {
	if d.nc != nil {
		d.nc.Close()
	}
}
