package attachment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"disputeflow/directory"
	"disputeflow/notify"
)

var (
	// ErrDisputeNotFound signals the dispute does not exist.
	ErrDisputeNotFound = errors.New("attachment: dispute not found")
	// ErrDisputeClosed signals an upload attempt on a terminal dispute.
	ErrDisputeClosed = errors.New("attachment: dispute is closed")
	// ErrBusy signals the dispute row lock could not be acquired in time.
	ErrBusy = errors.New("attachment: dispute lock busy, retry")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LedgerRepository defines the data access of a version write. All methods
// run inside the service's transaction under the dispute row lock, so the
// flip and the insert are one invariant-preserving write: no moment with
// zero or two latest rows is observable.
type LedgerRepository interface {
	LockDispute(ctx context.Context, tx pgx.Tx, disputeID string) (stage, merchantID string, err error)
	ClearLatest(ctx context.Context, tx pgx.Tx, disputeID string) error
	InsertVersion(ctx context.Context, tx pgx.Tx, params AddParams, stage string) (Version, error)
	EnqueueNotification(ctx context.Context, tx pgx.Tx, ev notify.Event) error
}

// Ledger tracks attachment versions per dispute.
type Ledger struct {
	pool TxBeginner
	repo LedgerRepository
}

func NewLedger(pool TxBeginner, repo LedgerRepository) *Ledger {
	return &Ledger{pool: pool, repo: repo}
}

// AddVersion records a new evidence version as the single latest one.
func (l *Ledger) AddVersion(ctx context.Context, params AddParams) (Version, error) {
	if params.DisputeID == "" {
		return Version{}, fmt.Errorf("attachment: dispute id required")
	}
	if params.UploaderID == "" {
		return Version{}, fmt.Errorf("attachment: uploader id required")
	}
	if params.Metadata.FileName == "" || params.Metadata.StorageURL == "" {
		return Version{}, fmt.Errorf("attachment: file name and storage url required")
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return Version{}, fmt.Errorf("attachment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	stage, merchantID, err := l.repo.LockDispute(ctx, tx, params.DisputeID)
	if err != nil {
		return Version{}, err
	}
	if stage == "closed" {
		return Version{}, ErrDisputeClosed
	}

	if err := l.repo.ClearLatest(ctx, tx, params.DisputeID); err != nil {
		return Version{}, err
	}

	v, err := l.repo.InsertVersion(ctx, tx, params, stage)
	if err != nil {
		return Version{}, err
	}

	disputeID := params.DisputeID
	ev := notify.NewEvent(notify.KindAttachmentAdded, directory.RoleMerchant, &merchantID, &disputeID, map[string]any{
		"dispute_id":    disputeID,
		"attachment_id": v.ID,
		"uploader_role": string(params.UploaderRole),
	})
	if err := l.repo.EnqueueNotification(ctx, tx, ev); err != nil {
		return Version{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Version{}, fmt.Errorf("attachment: commit version: %w", err)
	}
	return v, nil
}
