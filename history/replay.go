package history

import (
	"errors"
	"fmt"
)

// ErrEmptyTrail is returned when a dispute has no history at all; every
// dispute gets its first entry in the same transaction that creates it, so
// an empty trail is a consistency bug.
var ErrEmptyTrail = errors.New("history: empty trail")

// Replay walks the entries in order and returns the stage the chain ends on.
// Each entry's PreviousStage must equal the preceding entry's NewStage and
// the first entry must have no previous stage. Any divergence is reported as
// an error, never repaired.
func Replay(entries []Entry) (string, error) {
	if len(entries) == 0 {
		return "", ErrEmptyTrail
	}
	if entries[0].PreviousStage != nil {
		return "", fmt.Errorf("history: first entry %d has previous stage %q", entries[0].ID, *entries[0].PreviousStage)
	}

	current := entries[0].NewStage
	for _, e := range entries[1:] {
		if e.PreviousStage == nil {
			return "", fmt.Errorf("history: entry %d missing previous stage", e.ID)
		}
		if *e.PreviousStage != current {
			return "", fmt.Errorf("history: entry %d expects previous stage %q, chain is at %q", e.ID, *e.PreviousStage, current)
		}
		current = e.NewStage
	}
	return current, nil
}
