package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/outbox"
	"github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/postgres"
)

const selectColumns = `id, aggregate_id, aggregate_type, event_type, topic, payload, created_at, published_at, retry_count, last_error, max_retries`

// OutboxRepository implements outbox.Repository on Postgres. SaveAll joins
// the transaction carried by ctx.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository creates a new Postgres outbox repository
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// SaveAll inserts events as one batch
func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
INSERT INTO outbox_events (id, aggregate_id, aggregate_type, event_type, topic, payload, created_at, retry_count, last_error, max_retries)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.ID, e.AggregateID, e.AggregateType, e.EventType, e.Topic, []byte(e.Payload),
			e.CreatedAt, e.RetryCount, e.LastError, e.MaxRetries,
		)
	}

	var results pgx.BatchResults
	if tx := postgres.TxFromContext(ctx); tx != nil {
		results = tx.SendBatch(ctx, batch)
	} else {
		results = r.pool.SendBatch(ctx, batch)
	}
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save outbox events: %w", err)
		}
	}
	return nil
}

// FindUnpublished returns retryable unpublished events, oldest first
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	rows, err := postgres.Conn(ctx, r.pool).Query(ctx, `
SELECT `+selectColumns+`
FROM outbox_events
WHERE published_at IS NULL AND retry_count < max_retries
ORDER BY created_at
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find unpublished events: %w", err)
	}
	return scanEvents(rows)
}

// MarkPublished stamps published_at
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE outbox_events SET published_at = $2 WHERE id = $1`, eventID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event not found: %s", eventID)
	}
	return nil
}

// IncrementRetry bumps the retry count and records the last error
func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	_, err := postgres.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE outbox_events SET retry_count = retry_count + 1, last_error = $2 WHERE id = $1`, eventID, errorMsg)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}

// DeletePublished removes events published more than olderThan ago
func (r *OutboxRepository) DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM outbox_events WHERE published_at < $1`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to delete published events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FindByAggregateID returns every event recorded for an aggregate, oldest first
func (r *OutboxRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	rows, err := postgres.Conn(ctx, r.pool).Query(ctx, `
SELECT `+selectColumns+`
FROM outbox_events
WHERE aggregate_id = $1
ORDER BY created_at`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to find events by aggregate: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]*outbox.OutboxEvent, error) {
	defer rows.Close()

	var events []*outbox.OutboxEvent
	for rows.Next() {
		var (
			e       outbox.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Topic, &payload,
			&e.CreatedAt, &e.PublishedAt, &e.RetryCount, &e.LastError, &e.MaxRetries); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return events, nil
}

var _ outbox.Repository = (*OutboxRepository)(nil)
