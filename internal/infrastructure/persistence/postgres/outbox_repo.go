package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX
// Events are written in the same transaction as the state change they
// describe. The relay reads them in insertion order and marks them relayed.
// ══════════════════════════════════════════════════════════════════════════════

// Outbox implements shared.EventRecorder and the relay's store for PostgreSQL.
type Outbox struct {
	conn *Connection
}

var _ shared.EventRecorder = (*Outbox)(nil)

// NewOutbox creates a new Outbox.
func NewOutbox(conn *Connection) *Outbox {
	return &Outbox{conn: conn}
}

// Record implements shared.EventRecorder.
func (o *Outbox) Record(ctx context.Context, events ...shared.Event) error {
	for _, e := range events {
		payload, err := json.Marshal(e.Payload())
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", e.EventType(), err)
		}
		_, err = o.conn.Exec(ctx, `
			INSERT INTO outbox_events (id, type, aggregate_id, occurred_at, payload)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.NewString(), string(e.EventType()), e.AggregateID(), e.OccurredAt(), payload)
		if err != nil {
			return shared.Unavailable("outbox", "Record", err)
		}
	}
	return nil
}

// FetchUnrelayed returns up to limit undelivered events in insertion order.
// It must run inside WithinTx: the rows stay locked until that transaction
// ends, and rows locked by another relay are skipped.
func (o *Outbox) FetchUnrelayed(ctx context.Context, limit int) ([]*shared.RecordedEvent, error) {
	tx, err := o.conn.tx(ctx)
	if err != nil {
		return nil, shared.Unavailable("outbox", "FetchUnrelayed", err)
	}
	rows, err := tx.Query(ctx, `
		SELECT id, type, aggregate_id, occurred_at, payload
		FROM outbox_events
		WHERE relayed_at IS NULL
		ORDER BY seq
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, shared.Unavailable("outbox", "FetchUnrelayed", err)
	}
	defer rows.Close()

	var out []*shared.RecordedEvent
	for rows.Next() {
		var (
			ev         shared.RecordedEvent
			eventType  string
			rawPayload []byte
		)
		if err := rows.Scan(&ev.ID, &eventType, &ev.AggID, &ev.At, &rawPayload); err != nil {
			return nil, shared.Unavailable("outbox", "FetchUnrelayed", err)
		}
		ev.Type = shared.EventType(eventType)
		if err := json.Unmarshal(rawPayload, &ev.Values); err != nil {
			return nil, fmt.Errorf("failed to decode payload of %s: %w", ev.ID, err)
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Unavailable("outbox", "FetchUnrelayed", err)
	}
	return out, nil
}

// MarkRelayed flags the given events as delivered.
func (o *Outbox) MarkRelayed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := o.conn.Exec(ctx, `
		UPDATE outbox_events SET relayed_at = NOW()
		WHERE id = ANY($1) AND relayed_at IS NULL
	`, ids)
	if err != nil {
		return shared.Unavailable("outbox", "MarkRelayed", err)
	}
	return nil
}

// Pending returns the number of undelivered events.
func (o *Outbox) Pending(ctx context.Context) (int, error) {
	var n int
	if err := o.conn.QueryRow(ctx, `SELECT count(*) FROM outbox_events WHERE relayed_at IS NULL`).Scan(&n); err != nil {
		return 0, shared.Unavailable("outbox", "Pending", err)
	}
	return n, nil
}
