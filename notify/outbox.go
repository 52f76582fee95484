package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Enqueue writes the event into the notifications outbox inside the caller's
// transaction. The row becomes visible to the dispatcher only once the
// originating write commits, so an event can never reference a fact that did
// not durably happen.
func Enqueue(ctx context.Context, tx pgx.Tx, ev Event) error {
	if ev.ID == "" {
		return fmt.Errorf("notify: event id required")
	}
	if ev.Kind == "" {
		return fmt.Errorf("notify: event kind required")
	}

	body, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("notify: marshal event payload: %w", err)
	}

	const query = `
		INSERT INTO notifications (event_id, kind, recipient_id, recipient_role, dispute_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`
	if _, err := tx.Exec(ctx, query, ev.ID, ev.Kind, ev.RecipientID, ev.RecipientRole, ev.DisputeID, body); err != nil {
		return fmt.Errorf("notify: enqueue event: %w", err)
	}
	return nil
}

// Message is one claimed outbox row on its way to the transport.
type Message struct {
	ID            int64
	EventID       string
	Kind          Kind
	RecipientID   *string
	RecipientRole string
	DisputeID     *string
	Payload       []byte
	Attempts      int
	CreatedAt     time.Time
}

// PGOutbox drains pending notification rows with SKIP LOCKED claims so
// concurrent dispatchers never double-deliver a row they both hold.
type PGOutbox struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

func NewPGOutbox(pool *pgxpool.Pool, maxAttempts int) *PGOutbox {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &PGOutbox{pool: pool, maxAttempts: maxAttempts}
}

// ProcessBatch claims up to limit pending rows, runs deliver on each while
// the claim is held, and marks rows processed, retried, or dead before
// committing. Delivery failure never fails the batch; the row's attempt
// count decides whether it stays pending or goes dead.
func (o *PGOutbox) ProcessBatch(ctx context.Context, limit int, deliver func(context.Context, Message) error) (int, error) {
	if limit <= 0 {
		limit = 10
	}

	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify: begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const claimSQL = `
		SELECT id, event_id, kind, recipient_id::text, recipient_role, dispute_id::text, payload, attempts, created_at
		FROM notifications
		WHERE status = 'pending'
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`
	rows, err := tx.Query(ctx, claimSQL, limit)
	if err != nil {
		return 0, fmt.Errorf("notify: claim batch: %w", err)
	}

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.EventID, &m.Kind, &m.RecipientID, &m.RecipientRole, &m.DisputeID, &m.Payload, &m.Attempts, &m.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("notify: scan claimed row: %w", err)
		}
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("notify: iterate claimed rows: %w", err)
	}

	delivered := 0
	for _, m := range msgs {
		if err := deliver(ctx, m); err != nil {
			if m.Attempts+1 >= o.maxAttempts {
				if _, uerr := tx.Exec(ctx, `UPDATE notifications SET status='dead', attempts=attempts+1, last_attempt_at=now() WHERE id=$1`, m.ID); uerr != nil {
					return delivered, fmt.Errorf("notify: mark dead: %w", uerr)
				}
				deadTotal.Inc()
			} else {
				if _, uerr := tx.Exec(ctx, `UPDATE notifications SET attempts=attempts+1, last_attempt_at=now() WHERE id=$1`, m.ID); uerr != nil {
					return delivered, fmt.Errorf("notify: mark retry: %w", uerr)
				}
			}
			continue
		}
		if _, uerr := tx.Exec(ctx, `UPDATE notifications SET status='processed', attempts=attempts+1, last_attempt_at=now() WHERE id=$1`, m.ID); uerr != nil {
			return delivered, fmt.Errorf("notify: mark processed: %w", uerr)
		}
		delivered++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("notify: commit claim tx: %w", err)
	}
	return delivered, nil
}
