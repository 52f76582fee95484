package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"disputeflow/assignment"
	"disputeflow/attachment"
	"disputeflow/directory"
	"disputeflow/dispute"
	"disputeflow/inbound"
	"disputeflow/notify"
)

// Assigner records inbound payloads and drives round-robin assignment for
// the same business concurrently with the other assigners.
func Assigner(ctx context.Context, payloads *inbound.Repository, engine *assignment.Engine, businessID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		p, err := payloads.Record(ctx, inbound.RecordParams{
			BusinessID: businessID,
			Type:       inbound.PayloadWebhook,
			RawBody:    []byte(`{"source":"stress"}`),
		})
		if err != nil {
			if isRetryable(err) {
				continue
			}
			return fmt.Errorf("assigner payload: %w", err)
		}
		if _, err := engine.Assign(ctx, businessID, p.ID); err != nil && !tolerableAssign(err) {
			return fmt.Errorf("assigner: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Transitioner picks a random dispute and pushes it one legal step forward.
// Concurrent transitioners race on the same rows; losers see stage or lock
// errors, which are the expected outcome under contention.
func Transitioner(ctx context.Context, pool *pgxpool.Pool, svc *dispute.Service, merchantActorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var (
			dispID  string
			stage   string
			analyst *string
		)
		err := pool.QueryRow(ctx, `SELECT id, current_stage::text, assigned_analyst_id::text
                                   FROM disputes ORDER BY random() LIMIT 1`).Scan(&dispID, &stage, &analyst)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) || isRetryable(err) {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("transitioner pick: %w", err)
		}

		params, ok := stepFor(stage, analyst, merchantActorID)
		if !ok {
			time.Sleep(30 * time.Millisecond)
			continue
		}
		params.DisputeID = dispID
		if _, err := svc.Transition(ctx, params); err != nil && !tolerableTransition(err) {
			return fmt.Errorf("transitioner %s from %s: %w", dispID, stage, err)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// stepFor picks the next legal edge and a permitted actor for the stage the
// dispute was observed in. The observation is stale by the time the service
// locks the row, so the transition may still be rejected.
func stepFor(stage string, analyst *string, merchantActorID string) (dispute.TransitionParams, bool) {
	analystID := ""
	if analyst != nil {
		analystID = *analyst
	}
	switch dispute.Stage(stage) {
	case dispute.StagePending:
		return dispute.TransitionParams{NextStage: dispute.StageSubmitted, ActorID: analystID, ActorRole: directory.RoleAnalyst}, true
	case dispute.StageSubmitted, dispute.StageResubmitted:
		if rand.Intn(2) == 0 {
			return dispute.TransitionParams{NextStage: dispute.StageAccepted, ActorID: merchantActorID, ActorRole: directory.RoleMerchant}, true
		}
		return dispute.TransitionParams{
			NextStage: dispute.StageRejected,
			ActorID:   merchantActorID,
			ActorRole: directory.RoleMerchant,
			Feedback:  &dispute.Feedback{Reason: "evidence unconvincing", Comment: "stress rejection"},
		}, true
	case dispute.StageRejected:
		return dispute.TransitionParams{NextStage: dispute.StageResubmitted, ActorID: analystID, ActorRole: directory.RoleAnalyst}, true
	case dispute.StageAccepted:
		return dispute.TransitionParams{NextStage: dispute.StageClosed, ActorID: merchantActorID, ActorRole: directory.RoleMerchant}, true
	default:
		return dispute.TransitionParams{}, false
	}
}

// Attacher uploads evidence versions to random disputes, racing the single
// latest-row flip against other attachers on the same dispute.
func Attacher(ctx context.Context, pool *pgxpool.Pool, ledger *attachment.Ledger, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var dispID string
		var analyst *string
		err := pool.QueryRow(ctx, `SELECT id, assigned_analyst_id::text FROM disputes ORDER BY random() LIMIT 1`).Scan(&dispID, &analyst)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) || isRetryable(err) {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("attacher pick: %w", err)
		}
		if analyst == nil {
			continue
		}
		_, err = ledger.AddVersion(ctx, attachment.AddParams{
			DisputeID:    dispID,
			UploaderID:   *analyst,
			UploaderRole: directory.RoleAnalyst,
			Metadata: attachment.Metadata{
				FileName:    fmt.Sprintf("evidence-%d.pdf", rand.Int63()),
				ContentType: "application/pdf",
				SizeBytes:   int64(1024 + rand.Intn(4096)),
				StorageURL:  fmt.Sprintf("s3://stress-evidence/%s/%d", dispID, rand.Int63()),
			},
		})
		if err != nil && !tolerableAttach(err) {
			return fmt.Errorf("attacher %s: %w", dispID, err)
		}
		time.Sleep(time.Duration(25+rand.Intn(50)) * time.Millisecond)
	}
}

// RosterChurner flips staff activation so the eligible set changes under the
// assigners' feet. At least one analyst is always left active.
func RosterChurner(ctx context.Context, pool *pgxpool.Pool, merchantID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = pool.Exec(ctx, `UPDATE staff SET status = CASE status WHEN 'active'::staff_status THEN 'inactive'::staff_status ELSE 'active'::staff_status END
                               WHERE id = (
                                   SELECT id FROM staff
                                   WHERE merchant_id=$1 AND role='analyst'
                                     AND id <> (SELECT id FROM staff WHERE merchant_id=$1 AND role='analyst' ORDER BY created_at, id LIMIT 1)
                                   ORDER BY random() LIMIT 1
                               )`, merchantID)
		time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
	}
}

// OutboxWorker drains the notifications outbox through a deliberately flaky
// publisher so retry and dead-letter paths are exercised.
func OutboxWorker(ctx context.Context, outbox *notify.PGOutbox, stop <-chan struct{}) error {
	deliver := func(context.Context, notify.Message) error {
		if rand.Intn(10) == 0 {
			return errors.New("simulated transport failure")
		}
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if _, err := outbox.ProcessBatch(ctx, 10, deliver); err != nil && !isRetryable(err) {
			return fmt.Errorf("outbox worker: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func tolerableAssign(err error) bool {
	return errors.Is(err, assignment.ErrNoEligibleStaff) ||
		errors.Is(err, assignment.ErrBusy) ||
		errors.Is(err, assignment.ErrConflict) ||
		isRetryable(err)
}

func tolerableTransition(err error) bool {
	return errors.Is(err, dispute.ErrIllegalTransition) ||
		errors.Is(err, dispute.ErrMissingEvidence) ||
		errors.Is(err, dispute.ErrBusy) ||
		errors.Is(err, dispute.ErrConflict) ||
		errors.Is(err, dispute.ErrNotFound) ||
		isRetryable(err)
}

func tolerableAttach(err error) bool {
	return errors.Is(err, attachment.ErrDisputeClosed) ||
		errors.Is(err, attachment.ErrDisputeNotFound) ||
		errors.Is(err, attachment.ErrBusy) ||
		isRetryable(err)
}

// isRetryable covers connection loss from the chaos actor terminating
// backends mid-flight.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"conn closed", "connection reset", "unexpected EOF", "terminating connection", "broken pipe", "server closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
