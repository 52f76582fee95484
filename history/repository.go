package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Append inserts one audit record inside the caller's transaction. The table
// carries a trigger rejecting UPDATE and DELETE, so commit means the record
// is permanent.
func Append(ctx context.Context, tx pgx.Tx, params AppendParams) (Entry, error) {
	if params.DisputeID == "" {
		return Entry{}, fmt.Errorf("history: dispute id required")
	}
	if params.NewStage == "" {
		return Entry{}, fmt.Errorf("history: new stage required")
	}
	if params.ActorRole == "" {
		return Entry{}, fmt.Errorf("history: actor role required")
	}

	const query = `
		INSERT INTO dispute_history (dispute_id, previous_stage, new_stage, actor_id, actor_role, source_payload_id)
		VALUES ($1, $2::dispute_stage, $3::dispute_stage, $4, $5, $6)
		RETURNING id, dispute_id, previous_stage::text, new_stage::text, actor_id::text, actor_role, source_payload_id::text, recorded_at
	`

	var e Entry
	err := tx.QueryRow(ctx, query,
		params.DisputeID,
		params.PreviousStage,
		params.NewStage,
		params.ActorID,
		params.ActorRole,
		params.SourcePayloadID,
	).Scan(&e.ID, &e.DisputeID, &e.PreviousStage, &e.NewStage, &e.ActorID, &e.ActorRole, &e.SourcePayloadID, &e.RecordedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("history: append entry: %w", err)
	}
	return e, nil
}

// Repository provides ordered reads over the audit trail.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByDispute returns the dispute's full trail in replay order.
func (r *Repository) ListByDispute(ctx context.Context, disputeID string) ([]Entry, error) {
	const query = `
		SELECT id, dispute_id, previous_stage::text, new_stage::text, actor_id::text, actor_role, source_payload_id::text, recorded_at
		FROM dispute_history
		WHERE dispute_id = $1
		ORDER BY recorded_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, disputeID)
	if err != nil {
		return nil, fmt.Errorf("history: list by dispute: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByMerchant pages through every trail entry under the merchant's
// businesses, newest first.
func (r *Repository) ListByMerchant(ctx context.Context, merchantID string, page, pageSize int) ([]Entry, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	const query = `
		SELECT h.id, h.dispute_id, h.previous_stage::text, h.new_stage::text, h.actor_id::text, h.actor_role, h.source_payload_id::text, h.recorded_at
		FROM dispute_history h
		JOIN disputes d ON d.id = h.dispute_id
		JOIN businesses b ON b.id = d.business_id
		WHERE b.merchant_id = $1
		ORDER BY h.recorded_at DESC, h.id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, merchantID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("history: list by merchant: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}

	const countQuery = `
		SELECT COUNT(*)
		FROM dispute_history h
		JOIN disputes d ON d.id = h.dispute_id
		JOIN businesses b ON b.id = d.business_id
		WHERE b.merchant_id = $1
	`
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, merchantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("history: count by merchant: %w", err)
	}

	return entries, total, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	out := make([]Entry, 0, 16)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.DisputeID, &e.PreviousStage, &e.NewStage, &e.ActorID, &e.ActorRole, &e.SourcePayloadID, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("history: scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate entries: %w", err)
	}
	return out, nil
}
