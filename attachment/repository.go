package attachment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"disputeflow/notify"
)

// Repository is the pgx-backed LedgerRepository plus read paths for
// collaborators.
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

// LockDispute serializes version writes against transitions on the same
// dispute by taking the same row lock the state machine takes.
func (r *Repository) LockDispute(ctx context.Context, tx pgx.Tx, disputeID string) (string, string, error) {
	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, timeout); err != nil {
		return "", "", fmt.Errorf("attachment: set lock timeout: %w", err)
	}

	const query = `
		SELECT d.current_stage::text, b.merchant_id::text
		FROM disputes d
		JOIN businesses b ON b.id = d.business_id
		WHERE d.id = $1
		FOR UPDATE OF d
	`

	var stage, merchantID string
	if err := tx.QueryRow(ctx, query, disputeID).Scan(&stage, &merchantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrDisputeNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
			return "", "", ErrBusy
		}
		return "", "", fmt.Errorf("attachment: lock dispute: %w", err)
	}
	return stage, merchantID, nil
}

func (r *Repository) ClearLatest(ctx context.Context, tx pgx.Tx, disputeID string) error {
	const query = `UPDATE attachments SET is_latest = false WHERE dispute_id = $1 AND is_latest`
	if _, err := tx.Exec(ctx, query, disputeID); err != nil {
		return fmt.Errorf("attachment: clear latest: %w", err)
	}
	return nil
}

func (r *Repository) InsertVersion(ctx context.Context, tx pgx.Tx, params AddParams, stage string) (Version, error) {
	const query = `
		INSERT INTO attachments (dispute_id, is_latest, uploader_id, uploader_role, stage_at_upload, file_name, content_type, size_bytes, storage_url)
		VALUES ($1, true, $2, $3, $4::dispute_stage, $5, $6, $7, $8)
		RETURNING id, dispute_id, is_latest, uploader_id::text, uploader_role, stage_at_upload::text, file_name, content_type, size_bytes, storage_url, created_at
	`

	var v Version
	err := tx.QueryRow(ctx, query,
		params.DisputeID,
		params.UploaderID,
		params.UploaderRole,
		stage,
		params.Metadata.FileName,
		params.Metadata.ContentType,
		params.Metadata.SizeBytes,
		params.Metadata.StorageURL,
	).Scan(&v.ID, &v.DisputeID, &v.IsLatest, &v.UploaderID, &v.UploaderRole, &v.StageAtUpload, &v.FileName, &v.ContentType, &v.SizeBytes, &v.StorageURL, &v.CreatedAt)
	if err != nil {
		return Version{}, fmt.Errorf("attachment: insert version: %w", err)
	}
	return v, nil
}

func (r *Repository) EnqueueNotification(ctx context.Context, tx pgx.Tx, ev notify.Event) error {
	return notify.Enqueue(ctx, tx, ev)
}

const versionColumns = `id, dispute_id, is_latest, uploader_id::text, uploader_role, stage_at_upload::text, file_name, content_type, size_bytes, storage_url, created_at`

// Latest returns the dispute's current evidence version.
func (r *Repository) Latest(ctx context.Context, disputeID string) (Version, error) {
	query := `SELECT ` + versionColumns + ` FROM attachments WHERE dispute_id = $1 AND is_latest`

	var v Version
	err := r.pool.QueryRow(ctx, query, disputeID).
		Scan(&v.ID, &v.DisputeID, &v.IsLatest, &v.UploaderID, &v.UploaderRole, &v.StageAtUpload, &v.FileName, &v.ContentType, &v.SizeBytes, &v.StorageURL, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, fmt.Errorf("attachment: no versions for dispute %s", disputeID)
		}
		return Version{}, fmt.Errorf("attachment: latest: %w", err)
	}
	return v, nil
}

// ListVersions returns every version for the dispute, newest first. Older
// versions stay addressable for audit replay.
func (r *Repository) ListVersions(ctx context.Context, disputeID string) ([]Version, error) {
	query := `SELECT ` + versionColumns + ` FROM attachments WHERE dispute_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, disputeID)
	if err != nil {
		return nil, fmt.Errorf("attachment: list versions: %w", err)
	}
	defer rows.Close()

	out := make([]Version, 0, 4)
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.DisputeID, &v.IsLatest, &v.UploaderID, &v.UploaderRole, &v.StageAtUpload, &v.FileName, &v.ContentType, &v.SizeBytes, &v.StorageURL, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("attachment: scan version: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attachment: iterate versions: %w", err)
	}
	return out, nil
}
