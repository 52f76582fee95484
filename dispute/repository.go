package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"disputeflow/directory"
	"disputeflow/history"
	"disputeflow/notify"
)

// Repository is the pgx-backed TransitionRepository.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	if lockTimeout <= 0 {
		lockTimeout = 2 * time.Second
	}
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// LockDispute takes the per-dispute exclusive lock under a bounded wait.
// Lock wait expiry surfaces as ErrBusy so the caller can retry with fresh
// state instead of queueing indefinitely.
func (r *Repository) LockDispute(ctx context.Context, tx pgx.Tx, disputeID string) (Record, error) {
	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, timeout); err != nil {
		return Record{}, fmt.Errorf("dispute: set lock timeout: %w", err)
	}

	const query = `
		SELECT d.id, d.business_id, b.merchant_id, d.current_stage::text,
		       d.assigned_analyst_id::text, d.assigned_manager_id::text,
		       d.created_at, d.updated_at
		FROM disputes d
		JOIN businesses b ON b.id = d.business_id
		WHERE d.id = $1
		FOR UPDATE OF d
	`

	var d Record
	err := tx.QueryRow(ctx, query, disputeID).Scan(
		&d.ID, &d.BusinessID, &d.MerchantID, &d.CurrentStage,
		&d.AssignedAnalystID, &d.AssignedManagerID,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return Record{}, mapLockErr(err)
	}
	return d, nil
}

// HasLatestAttachment reports whether the dispute has a current evidence version.
func (r *Repository) HasLatestAttachment(ctx context.Context, tx pgx.Tx, disputeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM attachments WHERE dispute_id = $1 AND is_latest)`

	var has bool
	if err := tx.QueryRow(ctx, query, disputeID).Scan(&has); err != nil {
		return false, fmt.Errorf("dispute: check latest attachment: %w", err)
	}
	return has, nil
}

// UpdateStage writes the new stage; the caller already holds the row lock.
func (r *Repository) UpdateStage(ctx context.Context, tx pgx.Tx, disputeID string, next Stage) error {
	const query = `
		UPDATE disputes
		SET current_stage = $1::dispute_stage,
		    updated_at = get_tx_timestamp()
		WHERE id = $2
	`
	if _, err := tx.Exec(ctx, query, next, disputeID); err != nil {
		return fmt.Errorf("dispute: update stage: %w", err)
	}
	return nil
}

// AppendHistory delegates to the audit trail inside the same transaction.
func (r *Repository) AppendHistory(ctx context.Context, tx pgx.Tx, params history.AppendParams) (history.Entry, error) {
	return history.Append(ctx, tx, params)
}

// InsertFeedback records the structured rejection reason bound to its
// history entry; the unique constraint guarantees exactly one per rejection.
func (r *Repository) InsertFeedback(ctx context.Context, tx pgx.Tx, disputeID string, entryID int64, actorID string, role directory.Role, fb Feedback) error {
	var actor *string
	if actorID != "" {
		actor = &actorID
	}

	const query = `
		INSERT INTO reject_feedbacks (dispute_id, history_entry_id, rejecting_actor_id, rejecting_role, reason, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, query, disputeID, entryID, actor, role, fb.Reason, fb.Comment); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("dispute: duplicate feedback for entry %d: %w", entryID, ErrConflict)
		}
		return fmt.Errorf("dispute: insert feedback: %w", err)
	}
	return nil
}

// CountRejections counts rejected transitions recorded so far, including any
// appended in the current transaction.
func (r *Repository) CountRejections(ctx context.Context, tx pgx.Tx, disputeID string) (int, error) {
	const query = `SELECT COUNT(*) FROM dispute_history WHERE dispute_id = $1 AND new_stage = 'rejected'`

	var n int
	if err := tx.QueryRow(ctx, query, disputeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("dispute: count rejections: %w", err)
	}
	return n, nil
}

// EnqueueNotification writes the outbox row in the same transaction.
func (r *Repository) EnqueueNotification(ctx context.Context, tx pgx.Tx, ev notify.Event) error {
	return notify.Enqueue(ctx, tx, ev)
}

// GetByID fetches a dispute outside any transition transaction.
func (r *Repository) GetByID(ctx context.Context, disputeID string) (Record, error) {
	const query = `
		SELECT d.id, d.business_id, b.merchant_id, d.current_stage::text,
		       d.assigned_analyst_id::text, d.assigned_manager_id::text,
		       d.created_at, d.updated_at
		FROM disputes d
		JOIN businesses b ON b.id = d.business_id
		WHERE d.id = $1
	`

	var d Record
	err := r.pool.QueryRow(ctx, query, disputeID).Scan(
		&d.ID, &d.BusinessID, &d.MerchantID, &d.CurrentStage,
		&d.AssignedAnalystID, &d.AssignedManagerID,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get by id: %w", err)
	}
	return d, nil
}

func mapLockErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03": // lock_not_available
			return ErrBusy
		case "40001": // serialization_failure
			return ErrConflict
		}
	}
	return fmt.Errorf("dispute: lock dispute: %w", err)
}

func mapCommitErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return ErrConflict
	}
	return fmt.Errorf("dispute: commit transition: %w", err)
}
