package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrBusinessNotFound signals the business id does not resolve to a merchant.
	ErrBusinessNotFound = errors.New("directory: business not found")
	// ErrStaffNotFound signals the staff id does not exist.
	ErrStaffNotFound = errors.New("directory: staff not found")
)

// Repository provides read access to the merchant/business/staff directory.
// The engine never mutates directory data through this type.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// MerchantForBusiness resolves the owning merchant of a business.
func (r *Repository) MerchantForBusiness(ctx context.Context, businessID string) (Merchant, error) {
	const query = `
		SELECT m.id, m.name, m.status::text, m.created_at
		FROM merchants m
		JOIN businesses b ON b.merchant_id = m.id
		WHERE b.id = $1
	`

	var m Merchant
	err := r.pool.QueryRow(ctx, query, businessID).Scan(&m.ID, &m.Name, &m.Status, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Merchant{}, ErrBusinessNotFound
		}
		return Merchant{}, fmt.Errorf("directory: merchant for business: %w", err)
	}
	return m, nil
}

// ListActiveStaff returns the merchant's ACTIVE staff for the role in stable
// (created_at, id) order. Callers that need a transactional snapshot read the
// same ordering inside their own transaction.
func (r *Repository) ListActiveStaff(ctx context.Context, merchantID string, role Role) ([]Staff, error) {
	if !IsStaffRole(role) {
		return nil, fmt.Errorf("directory: %q is not a staff role", role)
	}

	const query = `
		SELECT id, merchant_id, role::text, status::text, full_name, email, created_at
		FROM staff
		WHERE merchant_id = $1 AND role = $2::staff_role AND status = 'active'
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, merchantID, role)
	if err != nil {
		return nil, fmt.Errorf("directory: list active staff: %w", err)
	}
	defer rows.Close()

	out := make([]Staff, 0, 8)
	for rows.Next() {
		var s Staff
		if err := rows.Scan(&s.ID, &s.MerchantID, &s.Role, &s.Status, &s.FullName, &s.Email, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("directory: scan staff: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: iterate staff: %w", err)
	}
	return out, nil
}

// IsActive reports whether the staff member is currently ACTIVE.
func (r *Repository) IsActive(ctx context.Context, staffID string) (bool, error) {
	const query = `SELECT status = 'active' FROM staff WHERE id = $1`

	var active bool
	if err := r.pool.QueryRow(ctx, query, staffID).Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrStaffNotFound
		}
		return false, fmt.Errorf("directory: is active: %w", err)
	}
	return active, nil
}

// GetStaff fetches a staff member by primary key.
func (r *Repository) GetStaff(ctx context.Context, staffID string) (Staff, error) {
	const query = `
		SELECT id, merchant_id, role::text, status::text, full_name, email, created_at
		FROM staff
		WHERE id = $1
	`

	var s Staff
	err := r.pool.QueryRow(ctx, query, staffID).Scan(&s.ID, &s.MerchantID, &s.Role, &s.Status, &s.FullName, &s.Email, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Staff{}, ErrStaffNotFound
		}
		return Staff{}, fmt.Errorf("directory: get staff: %w", err)
	}
	return s, nil
}
