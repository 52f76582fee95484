package dispute

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"disputeflow/directory"
	"disputeflow/history"
	"disputeflow/notify"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TransitionRepository defines the data access a transition commit requires.
// Every method runs inside the transaction the service opened, so the
// FOR UPDATE lock taken by LockDispute covers the whole validate-then-write.
type TransitionRepository interface {
	LockDispute(ctx context.Context, tx pgx.Tx, disputeID string) (Record, error)
	HasLatestAttachment(ctx context.Context, tx pgx.Tx, disputeID string) (bool, error)
	UpdateStage(ctx context.Context, tx pgx.Tx, disputeID string, next Stage) error
	AppendHistory(ctx context.Context, tx pgx.Tx, params history.AppendParams) (history.Entry, error)
	InsertFeedback(ctx context.Context, tx pgx.Tx, disputeID string, entryID int64, actorID string, role directory.Role, fb Feedback) error
	CountRejections(ctx context.Context, tx pgx.Tx, disputeID string) (int, error)
	EnqueueNotification(ctx context.Context, tx pgx.Tx, ev notify.Event) error
}

// ManagerEscalator assigns a manager to the dispute inside the caller's
// transaction. ok is false when no eligible manager exists; the transition
// still commits and escalation is retried on the next rejection.
type ManagerEscalator interface {
	AssignManagerTx(ctx context.Context, tx pgx.Tx, disputeID string) (managerID string, ok bool, err error)
}

// Service owns the dispute state machine.
type Service struct {
	pool      TxBeginner
	repo      TransitionRepository
	escalator ManagerEscalator
}

func NewService(pool TxBeginner, repo TransitionRepository) *Service {
	return &Service{pool: pool, repo: repo}
}

// WithEscalator wires manager escalation on repeat rejections.
func (s *Service) WithEscalator(esc ManagerEscalator) *Service {
	s.escalator = esc
	return s
}

// Transition validates and commits one stage change. The dispute row is
// locked for the duration, so concurrent attempts on the same dispute
// serialize: exactly one wins, the loser fails against the updated stage.
func (s *Service) Transition(ctx context.Context, params TransitionParams) (history.Entry, error) {
	if params.DisputeID == "" {
		return history.Entry{}, fmt.Errorf("dispute: dispute id required")
	}
	if !ValidStage(params.NextStage) {
		return history.Entry{}, fmt.Errorf("dispute: unknown stage %q: %w", params.NextStage, ErrIllegalTransition)
	}
	if params.NextStage == StageRejected && params.Feedback == nil {
		return history.Entry{}, ErrMissingFeedback
	}
	if params.Feedback != nil && params.Feedback.Reason == "" {
		return history.Entry{}, fmt.Errorf("dispute: feedback reason required: %w", ErrMissingFeedback)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return history.Entry{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.LockDispute(ctx, tx, params.DisputeID)
	if err != nil {
		return history.Entry{}, err
	}

	if err := ValidateTransition(d.CurrentStage, params.NextStage, params.ActorRole); err != nil {
		return history.Entry{}, err
	}

	// Accepting asserts the evidence on file convinced the reviewer, so an
	// empty ledger refuses the acceptance. Rejecting carries no such
	// requirement: absent evidence is a perfectly good reason to reject.
	if params.NextStage == StageAccepted {
		has, err := s.repo.HasLatestAttachment(ctx, tx, d.ID)
		if err != nil {
			return history.Entry{}, err
		}
		if !has {
			return history.Entry{}, ErrMissingEvidence
		}
	}

	if err := s.repo.UpdateStage(ctx, tx, d.ID, params.NextStage); err != nil {
		return history.Entry{}, err
	}

	prev := string(d.CurrentStage)
	var actorID *string
	if params.ActorID != "" {
		actorID = &params.ActorID
	}
	entry, err := s.repo.AppendHistory(ctx, tx, history.AppendParams{
		DisputeID:       d.ID,
		PreviousStage:   &prev,
		NewStage:        string(params.NextStage),
		ActorID:         actorID,
		ActorRole:       string(params.ActorRole),
		SourcePayloadID: params.SourcePayloadID,
	})
	if err != nil {
		return history.Entry{}, err
	}

	if params.NextStage == StageRejected {
		if err := s.repo.InsertFeedback(ctx, tx, d.ID, entry.ID, params.ActorID, params.ActorRole, *params.Feedback); err != nil {
			return history.Entry{}, err
		}
		if err := s.maybeEscalate(ctx, tx, d); err != nil {
			return history.Entry{}, err
		}
	}

	if err := s.repo.EnqueueNotification(ctx, tx, s.eventFor(d, params)); err != nil {
		return history.Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return history.Entry{}, mapCommitErr(err)
	}

	transitionsTotal.WithLabelValues(string(params.NextStage)).Inc()
	return entry, nil
}

// maybeEscalate assigns a manager on the second rejection cycle if none is
// assigned yet. The count includes the rejection appended in this
// transaction.
func (s *Service) maybeEscalate(ctx context.Context, tx pgx.Tx, d Record) error {
	if s.escalator == nil || d.AssignedManagerID != nil {
		return nil
	}
	rejections, err := s.repo.CountRejections(ctx, tx, d.ID)
	if err != nil {
		return err
	}
	if rejections < 2 {
		return nil
	}
	_, _, err = s.escalator.AssignManagerTx(ctx, tx, d.ID)
	return err
}

// eventFor addresses the committed transition to its counterpart: verdicts
// and submissions go to the merchant, rejections and closure go to the
// assigned analyst.
func (s *Service) eventFor(d Record, params TransitionParams) notify.Event {
	payload := map[string]any{
		"dispute_id":     d.ID,
		"previous_stage": string(d.CurrentStage),
		"new_stage":      string(params.NextStage),
		"actor_role":     string(params.ActorRole),
	}

	kind := notify.KindDisputeSubmitted
	recipientRole := directory.RoleMerchant
	recipientID := &d.MerchantID

	switch params.NextStage {
	case StageSubmitted:
		kind = notify.KindDisputeSubmitted
	case StageResubmitted:
		kind = notify.KindDisputeResubmitted
	case StageAccepted:
		kind = notify.KindDisputeAccepted
	case StageRejected:
		kind = notify.KindDisputeRejected
		recipientRole = directory.RoleAnalyst
		recipientID = d.AssignedAnalystID
		if params.Feedback != nil {
			payload["reason"] = params.Feedback.Reason
		}
	case StageClosed:
		kind = notify.KindDisputeClosed
		recipientRole = directory.RoleAnalyst
		recipientID = d.AssignedAnalystID
	}

	disputeID := d.ID
	return notify.NewEvent(kind, recipientRole, recipientID, &disputeID, payload)
}
