package audit

import (
	"time"

	"prodir/pkg/domain"
)

// Action names a workflow mutation that leaves an audit trail.
type Action string

const (
	ActionProfileCreated     Action = "profile_created"
	ActionProfileApproved    Action = "profile_approved"
	ActionSentToSuperAdmin   Action = "profile_sent_to_superadmin"
	ActionProfilePublished   Action = "profile_published"
	ActionProfileEdited      Action = "profile_edited"
	ActionProfileResubmitted Action = "profile_resubmitted"
	ActionProfileRemoved     Action = "profile_removed"
	ActionReviewSubmitted    Action = "review_submitted"
)

// Event is emitted after a successful workflow mutation. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Action    Action           `json:"action"`
	ProfileID domain.ProfileID `json:"profile_id"`
	ActorID   domain.UserID    `json:"actor_id,omitempty"`
	Role      domain.Role      `json:"role"`
	From      string           `json:"from,omitempty"`
	To        string           `json:"to,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
