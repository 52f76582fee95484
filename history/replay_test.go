package history

import (
	"errors"
	"testing"
)

func chain(stages ...string) []Entry {
	entries := make([]Entry, 0, len(stages))
	for i, s := range stages {
		e := Entry{ID: int64(i + 1), DisputeID: "disp-1", NewStage: s}
		if i > 0 {
			prev := stages[i-1]
			e.PreviousStage = &prev
		}
		entries = append(entries, e)
	}
	return entries
}

func TestReplayFullLifecycle(t *testing.T) {
	entries := chain("pending", "submitted", "rejected", "resubmitted", "accepted", "closed")

	stage, err := Replay(entries)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if stage != "closed" {
		t.Errorf("replayed stage %q, want closed", stage)
	}
}

func TestReplaySingleEntry(t *testing.T) {
	stage, err := Replay(chain("pending"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if stage != "pending" {
		t.Errorf("replayed stage %q, want pending", stage)
	}
}

func TestReplayEmptyTrail(t *testing.T) {
	if _, err := Replay(nil); !errors.Is(err, ErrEmptyTrail) {
		t.Fatalf("want ErrEmptyTrail, got %v", err)
	}
}

func TestReplayFirstEntryWithPrevious(t *testing.T) {
	prev := "pending"
	entries := []Entry{{ID: 1, NewStage: "submitted", PreviousStage: &prev}}

	if _, err := Replay(entries); err == nil {
		t.Fatal("first entry with a previous stage must fail replay")
	}
}

func TestReplayBrokenChain(t *testing.T) {
	entries := chain("pending", "submitted", "accepted")
	wrong := "rejected"
	entries[2].PreviousStage = &wrong

	if _, err := Replay(entries); err == nil {
		t.Fatal("mismatched previous stage must fail replay")
	}
}

func TestReplayMissingPrevious(t *testing.T) {
	entries := chain("pending", "submitted")
	entries[1].PreviousStage = nil

	if _, err := Replay(entries); err == nil {
		t.Fatal("non-first entry without previous stage must fail replay")
	}
}
