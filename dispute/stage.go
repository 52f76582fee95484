package dispute

import (
	"errors"

	"disputeflow/directory"
)

// Stage represents the lifecycle state of a dispute.
type Stage string

const (
	StagePending     Stage = "pending"
	StageSubmitted   Stage = "submitted"
	StageAccepted    Stage = "accepted"
	StageRejected    Stage = "rejected"
	StageResubmitted Stage = "resubmitted"
	StageClosed      Stage = "closed"
)

var (
	// ErrIllegalTransition signals the requested edge is not in the graph.
	ErrIllegalTransition = errors.New("dispute: illegal stage transition")
	// ErrUnauthorized signals the actor role is not permitted for the edge.
	ErrUnauthorized = errors.New("dispute: role not authorized for transition")
	// ErrMissingFeedback signals a rejection without an accompanying feedback payload.
	ErrMissingFeedback = errors.New("dispute: rejection requires feedback")
	// ErrMissingEvidence signals an acceptance of a dispute with no attachment on file.
	ErrMissingEvidence = errors.New("dispute: acceptance requires evidence attachment")
	// ErrNotFound signals the dispute does not exist.
	ErrNotFound = errors.New("dispute: not found")
	// ErrBusy signals the per-dispute lock could not be acquired within the bounded wait.
	ErrBusy = errors.New("dispute: row lock busy, retry with fresh state")
	// ErrConflict signals the transition lost a concurrent race and must be retried by the caller.
	ErrConflict = errors.New("dispute: concurrent update conflict")
)

// edges maps each stage to its legal successors and the roles gated onto
// each edge. Stages absent from the map are terminal.
var edges = map[Stage]map[Stage][]directory.Role{
	StagePending: {
		StageSubmitted: {directory.RoleAnalyst},
	},
	StageSubmitted: {
		StageAccepted: {directory.RoleManager, directory.RoleMerchant},
		StageRejected: {directory.RoleManager, directory.RoleMerchant},
	},
	StageRejected: {
		StageResubmitted: {directory.RoleAnalyst},
	},
	StageResubmitted: {
		StageAccepted: {directory.RoleManager, directory.RoleMerchant},
		StageRejected: {directory.RoleManager, directory.RoleMerchant},
	},
	StageAccepted: {
		StageClosed: {directory.RoleMerchant},
	},
}

// ValidStage reports whether s is a member of the stage set.
func ValidStage(s Stage) bool {
	switch s {
	case StagePending, StageSubmitted, StageAccepted, StageRejected, StageResubmitted, StageClosed:
		return true
	}
	return false
}

// Terminal reports whether the stage has no outgoing edges.
func Terminal(s Stage) bool {
	return len(edges[s]) == 0
}

// ValidateTransition checks the edge and the actor role gate, in that order.
func ValidateTransition(current, next Stage, role directory.Role) error {
	allowed, ok := edges[current][next]
	if !ok {
		return ErrIllegalTransition
	}
	for _, r := range allowed {
		if r == role {
			return nil
		}
	}
	return ErrUnauthorized
}
