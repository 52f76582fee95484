package notify

import (
	"github.com/google/uuid"

	"disputeflow/directory"
)

// Kind names the fact a notification event describes.
type Kind string

const (
	KindDisputeAssigned    Kind = "dispute.assigned"
	KindDisputeSubmitted   Kind = "dispute.submitted"
	KindDisputeAccepted    Kind = "dispute.accepted"
	KindDisputeRejected    Kind = "dispute.rejected"
	KindDisputeResubmitted Kind = "dispute.resubmitted"
	KindDisputeClosed      Kind = "dispute.closed"
	KindDisputeEscalated   Kind = "dispute.escalated"
	KindAttachmentAdded    Kind = "attachment.added"
)

// Event is a logical notification fact. It is immutable once enqueued;
// delivery is owned by a downstream consumer which deduplicates on ID
// (publishing is at-least-once).
type Event struct {
	ID            string
	Kind          Kind
	RecipientID   *string
	RecipientRole directory.Role
	DisputeID     *string
	Payload       map[string]any
}

// NewEvent mints an event with a fresh identity.
func NewEvent(kind Kind, recipientRole directory.Role, recipientID, disputeID *string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:            uuid.NewString(),
		Kind:          kind,
		RecipientID:   recipientID,
		RecipientRole: recipientRole,
		DisputeID:     disputeID,
		Payload:       payload,
	}
}
