package dispute

import (
	"time"

	"disputeflow/directory"
)

// Record mirrors the disputes table plus the owning merchant id resolved
// through the business, which transition commits need for addressing
// notifications.
type Record struct {
	ID                string
	BusinessID        string
	MerchantID        string
	CurrentStage      Stage
	AssignedAnalystID *string
	AssignedManagerID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Feedback is the structured reason accompanying every rejection.
type Feedback struct {
	Reason  string
	Comment string
}

// TransitionParams carries one transition request from the controller layer.
type TransitionParams struct {
	DisputeID       string
	NextStage       Stage
	ActorID         string
	ActorRole       directory.Role
	SourcePayloadID *string
	Feedback        *Feedback
}
