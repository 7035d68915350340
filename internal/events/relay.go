// Package events relays order events from the transactional outbox to the
// message broker.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Message is an outbox row waiting to be published.
type Message struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Outbox is the storage side of the relay.
type Outbox interface {
	// Pending returns up to limit unsent messages, oldest first.
	Pending(ctx context.Context, limit int) ([]Message, error)
	MarkSent(ctx context.Context, id int64) error
}

// Publisher delivers a message to the broker.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

const (
	DefaultInterval  = time.Second
	DefaultBatchSize = 100
)

// Relay moves messages from an Outbox to a Publisher. Delivery is at least
// once: a message published but not marked sent is published again.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	lg        *zap.Logger
	interval  time.Duration
	batchSize int
}

// NewRelay creates a Relay polling every interval.
func NewRelay(outbox Outbox, publisher Publisher, lg *zap.Logger, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		lg:        lg,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.Flush(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			r.lg.Warn("Relay order events", zap.Error(err))
		case n > 0:
			r.lg.Debug("Relayed order events", zap.Int("count", n))
		}
		// A full batch means more are probably waiting.
		if err == nil && n == r.batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and returns how many messages were sent. It
// stops at the first failure so messages keep their order.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	msgs, err := r.outbox.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "fetch pending")
	}
	for i, m := range msgs {
		if err := r.publisher.Publish(ctx, m); err != nil {
			return i, errors.Wrapf(err, "publish %s", m.EventID)
		}
		if err := r.outbox.MarkSent(ctx, m.ID); err != nil {
			return i, errors.Wrapf(err, "mark %s sent", m.EventID)
		}
	}
	return len(msgs), nil
}
