package attachment

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"disputeflow/directory"
	"disputeflow/internal/pgxfake"
	"disputeflow/notify"
)

type fakeLedgerRepo struct {
	stage      string
	merchantID string
	lockErr    error

	calls    []string
	inserted []AddParams
	events   []notify.Event
}

func (f *fakeLedgerRepo) LockDispute(_ context.Context, _ pgx.Tx, _ string) (string, string, error) {
	f.calls = append(f.calls, "lock")
	if f.lockErr != nil {
		return "", "", f.lockErr
	}
	return f.stage, f.merchantID, nil
}

func (f *fakeLedgerRepo) ClearLatest(_ context.Context, _ pgx.Tx, _ string) error {
	f.calls = append(f.calls, "clear")
	return nil
}

func (f *fakeLedgerRepo) InsertVersion(_ context.Context, _ pgx.Tx, params AddParams, stage string) (Version, error) {
	f.calls = append(f.calls, "insert")
	f.inserted = append(f.inserted, params)
	return Version{
		ID:            "att-1",
		DisputeID:     params.DisputeID,
		IsLatest:      true,
		UploaderID:    params.UploaderID,
		UploaderRole:  params.UploaderRole,
		StageAtUpload: stage,
		FileName:      params.Metadata.FileName,
	}, nil
}

func (f *fakeLedgerRepo) EnqueueNotification(_ context.Context, _ pgx.Tx, ev notify.Event) error {
	f.calls = append(f.calls, "enqueue")
	f.events = append(f.events, ev)
	return nil
}

func validParams() AddParams {
	return AddParams{
		DisputeID:    "disp-1",
		UploaderID:   "analyst-1",
		UploaderRole: directory.RoleAnalyst,
		Metadata: Metadata{
			FileName:    "invoice.pdf",
			ContentType: "application/pdf",
			SizeBytes:   2048,
			StorageURL:  "s3://evidence/disp-1/invoice.pdf",
		},
	}
}

func TestAddVersionFlipsThenInserts(t *testing.T) {
	pool := &pgxfake.Pool{}
	repo := &fakeLedgerRepo{stage: "submitted", merchantID: "merch-1"}
	ledger := NewLedger(pool, repo)

	v, err := ledger.AddVersion(context.Background(), validParams())
	if err != nil {
		t.Fatalf("add version: %v", err)
	}
	if !pool.Tx.Committed {
		t.Error("expected commit")
	}
	if !v.IsLatest || v.StageAtUpload != "submitted" {
		t.Errorf("unexpected version %+v", v)
	}

	want := []string{"lock", "clear", "insert", "enqueue"}
	if len(repo.calls) != len(want) {
		t.Fatalf("call sequence %v, want %v", repo.calls, want)
	}
	for i := range want {
		if repo.calls[i] != want[i] {
			t.Fatalf("call sequence %v, want %v", repo.calls, want)
		}
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected one event, got %d", len(repo.events))
	}
	ev := repo.events[0]
	if ev.Kind != notify.KindAttachmentAdded || ev.RecipientID == nil || *ev.RecipientID != "merch-1" {
		t.Errorf("upload must notify the merchant, got %+v", ev)
	}
}

func TestAddVersionClosedDispute(t *testing.T) {
	pool := &pgxfake.Pool{}
	repo := &fakeLedgerRepo{stage: "closed", merchantID: "merch-1"}
	ledger := NewLedger(pool, repo)

	_, err := ledger.AddVersion(context.Background(), validParams())
	if !errors.Is(err, ErrDisputeClosed) {
		t.Fatalf("want ErrDisputeClosed, got %v", err)
	}
	if pool.Tx.Committed {
		t.Error("expected rollback")
	}
	if len(repo.inserted) != 0 {
		t.Error("no version may be written on a closed dispute")
	}
}

func TestAddVersionDisputeNotFound(t *testing.T) {
	pool := &pgxfake.Pool{}
	repo := &fakeLedgerRepo{lockErr: ErrDisputeNotFound}
	ledger := NewLedger(pool, repo)

	_, err := ledger.AddVersion(context.Background(), validParams())
	if !errors.Is(err, ErrDisputeNotFound) {
		t.Fatalf("want ErrDisputeNotFound, got %v", err)
	}
}

func TestAddVersionValidation(t *testing.T) {
	pool := &pgxfake.Pool{}
	repo := &fakeLedgerRepo{stage: "pending", merchantID: "merch-1"}
	ledger := NewLedger(pool, repo)

	cases := []func(*AddParams){
		func(p *AddParams) { p.DisputeID = "" },
		func(p *AddParams) { p.UploaderID = "" },
		func(p *AddParams) { p.Metadata.FileName = "" },
		func(p *AddParams) { p.Metadata.StorageURL = "" },
	}
	for i, mutate := range cases {
		params := validParams()
		mutate(&params)
		if _, err := ledger.AddVersion(context.Background(), params); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
	if pool.Tx != nil {
		t.Error("validation failure must not open a transaction")
	}
}
