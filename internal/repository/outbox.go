package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/events"
)

const (
	fetchPendingSQL = `SELECT id, event_id::text, topic, key, payload, created_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`

	markSentSQL = `UPDATE outbox SET sent_at = now() WHERE id = $1`
)

var _ events.Outbox = (*OutboxRepository)(nil)

// OutboxRepository reads the outbox table filled by OrderStore.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Pending returns up to limit unsent messages, oldest first.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]events.Message, error) {
	rows, err := r.pool.Query(ctx, fetchPendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching pending outbox messages: %w", err)
	}
	return pgx.CollectRows(rows, scanOutboxMessage)
}

// MarkSent flags a message as published.
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, markSentSQL, id); err != nil {
		return fmt.Errorf("marking outbox message %d sent: %w", id, err)
	}
	return nil
}

func scanOutboxMessage(row pgx.CollectableRow) (events.Message, error) {
	var m events.Message
	err := row.Scan(&m.ID, &m.EventID, &m.Topic, &m.Key, &m.Payload, &m.CreatedAt)
	return m, err
}
