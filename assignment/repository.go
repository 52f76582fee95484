package assignment

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

// PGRepository is the pgx-backed Repository.
type PGRepository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewPGRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *PGRepository {
	if lockTimeout <= 0 {
		lockTimeout = 2 * time.Second
	}
	return &PGRepository{pool: pool, lockTimeout: lockTimeout}
}

func (r *PGRepository) BusinessMerchant(ctx context.Context, tx pgx.Tx, businessID string) (string, error) {
	const query = `SELECT merchant_id::text FROM businesses WHERE id = $1`

	var merchantID string
	if err := tx.QueryRow(ctx, query, businessID).Scan(&merchantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrBusinessNotFound
		}
		return "", fmt.Errorf("assignment: resolve business merchant: %w", err)
	}
	return merchantID, nil
}

// LockCursor takes the per-merchant-per-role serialization point under a
// bounded wait, creating the cursor row on first use.
func (r *PGRepository) LockCursor(ctx context.Context, tx pgx.Tx, merchantID string, role directory.Role) (*string, error) {
	const ensureSQL = `
		INSERT INTO staff_assignment_cursors (merchant_id, staff_role)
		VALUES ($1, $2::staff_role)
		ON CONFLICT DO NOTHING
	`
	if _, err := tx.Exec(ctx, ensureSQL, merchantID, role); err != nil {
		return nil, fmt.Errorf("assignment: ensure cursor: %w", err)
	}

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, timeout); err != nil {
		return nil, fmt.Errorf("assignment: set lock timeout: %w", err)
	}

	const lockSQL = `
		SELECT last_assigned_staff_id::text
		FROM staff_assignment_cursors
		WHERE merchant_id = $1 AND staff_role = $2::staff_role
		FOR UPDATE
	`
	var last *string
	if err := tx.QueryRow(ctx, lockSQL, merchantID, role).Scan(&last); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "55P03":
				return nil, ErrBusy
			case "40001":
				return nil, ErrConflict
			}
		}
		return nil, fmt.Errorf("assignment: lock cursor: %w", err)
	}
	return last, nil
}

// ActiveStaff reads a fresh ACTIVE snapshot in stable order inside the
// transaction; eligibility may change concurrently and must never be cached.
func (r *PGRepository) ActiveStaff(ctx context.Context, tx pgx.Tx, merchantID string, role directory.Role) ([]directory.Staff, error) {
	const query = `
		SELECT id, merchant_id, role::text, status::text, full_name, email, created_at
		FROM staff
		WHERE merchant_id = $1 AND role = $2::staff_role AND status = 'active'
		ORDER BY created_at ASC, id ASC
	`

	rows, err := tx.Query(ctx, query, merchantID, role)
	if err != nil {
		return nil, fmt.Errorf("assignment: list active staff: %w", err)
	}
	defer rows.Close()

	out := make([]directory.Staff, 0, 8)
	for rows.Next() {
		var s directory.Staff
		if err := rows.Scan(&s.ID, &s.MerchantID, &s.Role, &s.Status, &s.FullName, &s.Email, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("assignment: scan staff: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignment: iterate staff: %w", err)
	}
	return out, nil
}

// StaffByID fetches the cursor target's stable key. A missing row (staff
// deleted, cursor set-null raced) returns nil rather than an error.
func (r *PGRepository) StaffByID(ctx context.Context, tx pgx.Tx, staffID string) (*directory.Staff, error) {
	const query = `
		SELECT id, merchant_id, role::text, status::text, full_name, email, created_at
		FROM staff
		WHERE id = $1
	`

	var s directory.Staff
	err := tx.QueryRow(ctx, query, staffID).Scan(&s.ID, &s.MerchantID, &s.Role, &s.Status, &s.FullName, &s.Email, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("assignment: staff by id: %w", err)
	}
	return &s, nil
}

func (r *PGRepository) AdvanceCursor(ctx context.Context, tx pgx.Tx, merchantID string, role directory.Role, staffID string) error {
	const query = `
		UPDATE staff_assignment_cursors
		SET last_assigned_staff_id = $3,
		    updated_at = get_tx_timestamp()
		WHERE merchant_id = $1 AND staff_role = $2::staff_role
	`
	if _, err := tx.Exec(ctx, query, merchantID, role, staffID); err != nil {
		return fmt.Errorf("assignment: advance cursor: %w", err)
	}
	return nil
}

func (r *PGRepository) CreateDispute(ctx context.Context, tx pgx.Tx, businessID, analystID string) (string, error) {
	const query = `
		INSERT INTO disputes (business_id, current_stage, assigned_analyst_id)
		VALUES ($1, 'pending', $2)
		RETURNING id
	`

	var disputeID string
	if err := tx.QueryRow(ctx, query, businessID, analystID).Scan(&disputeID); err != nil {
		return "", fmt.Errorf("assignment: create dispute: %w", err)
	}
	return disputeID, nil
}

func (r *PGRepository) DisputeMerchant(ctx context.Context, tx pgx.Tx, disputeID string) (string, error) {
	const query = `
		SELECT b.merchant_id::text
		FROM disputes d
		JOIN businesses b ON b.id = d.business_id
		WHERE d.id = $1
	`

	var merchantID string
	if err := tx.QueryRow(ctx, query, disputeID).Scan(&merchantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("assignment: dispute %s not found", disputeID)
		}
		return "", fmt.Errorf("assignment: resolve dispute merchant: %w", err)
	}
	return merchantID, nil
}

func (r *PGRepository) SetManager(ctx context.Context, tx pgx.Tx, disputeID, managerID string) error {
	const query = `
		UPDATE disputes
		SET assigned_manager_id = $2,
		    updated_at = get_tx_timestamp()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, disputeID, managerID); err != nil {
		return fmt.Errorf("assignment: set manager: %w", err)
	}
	return nil
}

func (r *PGRepository) AppendHistory(ctx context.Context, tx pgx.Tx, params history.AppendParams) (history.Entry, error) {
	return history.Append(ctx, tx, params)
}

func (r *PGRepository) EnqueueNotification(ctx context.Context, tx pgx.Tx, ev notify.Event) error {
	return notify.Enqueue(ctx, tx, ev)
}
