package history

import "time"

// Entry is one append-only audit record of a dispute stage change. The first
// entry of a dispute carries a nil PreviousStage. Stages are recorded as the
// lowercase enum labels so the trail replays without importing the state
// machine.
type Entry struct {
	ID              int64
	DisputeID       string
	PreviousStage   *string
	NewStage        string
	ActorID         *string
	ActorRole       string
	SourcePayloadID *string
	RecordedAt      time.Time
}

// AppendParams enumerates the fields of a new history entry.
type AppendParams struct {
	DisputeID       string
	PreviousStage   *string
	NewStage        string
	ActorID         *string
	ActorRole       string
	SourcePayloadID *string
}
