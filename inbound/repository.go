package inbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the payload id does not exist.
	ErrNotFound = errors.New("inbound: payload not found")
	// ErrUnknownBusiness signals the referenced business does not exist.
	ErrUnknownBusiness = errors.New("inbound: unknown business")
)

// Repository stores raw inbound payloads. Rows are insert-only.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordParams enumerates the fields of a new payload record.
type RecordParams struct {
	BusinessID string
	Type       PayloadType
	RawBody    []byte
}

// Record persists a payload exactly as received.
func (r *Repository) Record(ctx context.Context, params RecordParams) (Payload, error) {
	if params.BusinessID == "" {
		return Payload{}, fmt.Errorf("inbound: business id required")
	}
	if params.Type != PayloadWebhook && params.Type != PayloadGstin {
		return Payload{}, fmt.Errorf("inbound: invalid payload type %q", params.Type)
	}
	body := params.RawBody
	if len(body) == 0 {
		body = []byte(`{}`)
	}

	const query = `
		INSERT INTO inbound_payloads (business_id, type, raw_body)
		VALUES ($1, $2::payload_type, $3::jsonb)
		RETURNING id, business_id, type::text, raw_body, received_at
	`

	var p Payload
	err := r.pool.QueryRow(ctx, query, params.BusinessID, params.Type, body).
		Scan(&p.ID, &p.BusinessID, &p.Type, &p.RawBody, &p.ReceivedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Payload{}, ErrUnknownBusiness
		}
		return Payload{}, fmt.Errorf("inbound: record payload: %w", err)
	}
	return p, nil
}

// GetByID fetches a stored payload.
func (r *Repository) GetByID(ctx context.Context, id string) (Payload, error) {
	const query = `
		SELECT id, business_id, type::text, raw_body, received_at
		FROM inbound_payloads
		WHERE id = $1
	`

	var p Payload
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.BusinessID, &p.Type, &p.RawBody, &p.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payload{}, ErrNotFound
		}
		return Payload{}, fmt.Errorf("inbound: get payload: %w", err)
	}
	return p, nil
}
