package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"disputeflow/directory"
	"disputeflow/dispute"
	"disputeflow/history"
	"disputeflow/notify"
)

var (
	// ErrNoEligibleStaff signals the merchant has no ACTIVE staff for the role.
	ErrNoEligibleStaff = errors.New("assignment: no eligible staff")
	// ErrBusinessNotFound signals the business id does not resolve.
	ErrBusinessNotFound = errors.New("assignment: business not found")
	// ErrBusy signals the per-merchant cursor lock could not be acquired in time.
	ErrBusy = errors.New("assignment: cursor lock busy, retry")
	// ErrConflict signals the assignment lost a concurrent race.
	ErrConflict = errors.New("assignment: concurrent update conflict")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the data access an assignment commit requires. All
// methods run inside the transaction the engine opened; LockCursor holds the
// per-merchant-per-role serialization point.
type Repository interface {
	BusinessMerchant(ctx context.Context, tx pgx.Tx, businessID string) (string, error)
	LockCursor(ctx context.Context, tx pgx.Tx, merchantID string, role directory.Role) (*string, error)
	ActiveStaff(ctx context.Context, tx pgx.Tx, merchantID string, role directory.Role) ([]directory.Staff, error)
	StaffByID(ctx context.Context, tx pgx.Tx, staffID string) (*directory.Staff, error)
	AdvanceCursor(ctx context.Context, tx pgx.Tx, merchantID string, role directory.Role, staffID string) error
	CreateDispute(ctx context.Context, tx pgx.Tx, businessID, analystID string) (string, error)
	DisputeMerchant(ctx context.Context, tx pgx.Tx, disputeID string) (string, error)
	SetManager(ctx context.Context, tx pgx.Tx, disputeID, managerID string) error
	AppendHistory(ctx context.Context, tx pgx.Tx, params history.AppendParams) (history.Entry, error)
	EnqueueNotification(ctx context.Context, tx pgx.Tx, ev notify.Event) error
}

// Result reports a committed assignment.
type Result struct {
	DisputeID string
	AnalystID string
}

// Engine assigns incoming disputes to staff under strict round-robin
// fairness over the currently eligible set.
type Engine struct {
	pool TxBeginner
	repo Repository
}

func NewEngine(pool TxBeginner, repo Repository) *Engine {
	return &Engine{pool: pool, repo: repo}
}

// Assign creates the dispute for an inbound payload and picks the next
// eligible analyst. Dispute creation, cursor advance, the first history
// entry, and the assignment notification commit atomically; a reader never
// observes a dispute without an assignment or an advanced cursor without a
// dispute.
func (e *Engine) Assign(ctx context.Context, businessID, payloadID string) (Result, error) {
	if businessID == "" {
		return Result{}, fmt.Errorf("assignment: business id required")
	}
	if payloadID == "" {
		return Result{}, fmt.Errorf("assignment: payload id required")
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("assignment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	merchantID, err := e.repo.BusinessMerchant(ctx, tx, businessID)
	if err != nil {
		return Result{}, err
	}

	analyst, ok, err := e.pickNext(ctx, tx, merchantID, directory.RoleAnalyst)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, ErrNoEligibleStaff
	}

	disputeID, err := e.repo.CreateDispute(ctx, tx, businessID, analyst.ID)
	if err != nil {
		return Result{}, err
	}

	if _, err := e.repo.AppendHistory(ctx, tx, history.AppendParams{
		DisputeID:       disputeID,
		NewStage:        string(dispute.StagePending),
		ActorRole:       string(directory.RoleSystem),
		SourcePayloadID: &payloadID,
	}); err != nil {
		return Result{}, err
	}

	ev := notify.NewEvent(notify.KindDisputeAssigned, directory.RoleAnalyst, &analyst.ID, &disputeID, map[string]any{
		"dispute_id":  disputeID,
		"business_id": businessID,
		"payload_id":  payloadID,
	})
	if err := e.repo.EnqueueNotification(ctx, tx, ev); err != nil {
		return Result{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("assignment: commit: %w", err)
	}

	assignmentsTotal.Inc()
	return Result{DisputeID: disputeID, AnalystID: analyst.ID}, nil
}

// AssignManagerTx runs the same fairness policy scoped to managers inside
// the caller's transaction (the dispute row lock is already held). ok is
// false when the merchant has no ACTIVE manager; the caller decides whether
// that is fatal.
func (e *Engine) AssignManagerTx(ctx context.Context, tx pgx.Tx, disputeID string) (string, bool, error) {
	merchantID, err := e.repo.DisputeMerchant(ctx, tx, disputeID)
	if err != nil {
		return "", false, err
	}

	manager, ok, err := e.pickNext(ctx, tx, merchantID, directory.RoleManager)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	if err := e.repo.SetManager(ctx, tx, disputeID, manager.ID); err != nil {
		return "", false, err
	}

	ev := notify.NewEvent(notify.KindDisputeEscalated, directory.RoleManager, &manager.ID, &disputeID, map[string]any{
		"dispute_id": disputeID,
	})
	if err := e.repo.EnqueueNotification(ctx, tx, ev); err != nil {
		return "", false, err
	}

	escalationsTotal.Inc()
	return manager.ID, true, nil
}

// pickNext locks the cursor, reads a fresh ACTIVE snapshot, selects the next
// member, and advances the cursor to it. Fairness is over the set as it
// stands now, never a cached one.
func (e *Engine) pickNext(ctx context.Context, tx pgx.Tx, merchantID string, role directory.Role) (directory.Staff, bool, error) {
	lastID, err := e.repo.LockCursor(ctx, tx, merchantID, role)
	if err != nil {
		return directory.Staff{}, false, err
	}

	active, err := e.repo.ActiveStaff(ctx, tx, merchantID, role)
	if err != nil {
		return directory.Staff{}, false, err
	}
	if len(active) == 0 {
		return directory.Staff{}, false, nil
	}

	var last *directory.Staff
	if lastID != nil {
		last, err = e.repo.StaffByID(ctx, tx, *lastID)
		if err != nil {
			return directory.Staff{}, false, err
		}
	}

	next, ok := NextEligible(active, last)
	if !ok {
		return directory.Staff{}, false, nil
	}

	if err := e.repo.AdvanceCursor(ctx, tx, merchantID, role, next.ID); err != nil {
		return directory.Staff{}, false, err
	}
	return next, true, nil
}
