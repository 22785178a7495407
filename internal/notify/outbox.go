package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OutboxEvent is one row of the transition outbox, written by the PAF store
// inside the transition transaction and drained here.
type OutboxEvent struct {
	ID        int64
	PAFID     int64
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// PostgresOutbox drains the paf_outbox table.
type PostgresOutbox struct {
	db *sql.DB
}

func NewPostgresOutbox(db *sql.DB) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

// Drain locks up to limit unpublished events, hands each to publish, and
// marks the successfully published ones inside the same transaction.
// SKIP LOCKED lets multiple instances drain concurrently without contending.
// Returns how many events were published.
func (s *PostgresOutbox) Drain(ctx context.Context, limit int, publish func(context.Context, OutboxEvent) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox drain: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, paf_id, event_type, payload, created_at
		FROM paf_outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("select unpublished events: %w", err)
	}

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.PAFID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("close outbox rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox events: %w", err)
	}

	published := 0
	now := time.Now().UTC()
	for _, e := range events {
		// Stop at the first failure; unpublished rows keep their order
		// and are retried on the next tick.
		if err := publish(ctx, e); err != nil {
			break
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE paf_outbox SET published_at = $2 WHERE id = $1`, e.ID, now); err != nil {
			return 0, fmt.Errorf("mark event published: %w", err)
		}
		published++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox drain: %w", err)
	}
	return published, nil
}
