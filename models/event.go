package models

import (
	"time"

	"github.com/holiman/uint256"
)

type EventKind string

const (
	EventProjectCreated     EventKind = "project_created"
	EventMilestoneAdded     EventKind = "milestone_added"
	EventDonationReceived   EventKind = "donation_received"
	EventProjectFunded      EventKind = "project_funded"
	EventMilestoneSubmitted EventKind = "milestone_submitted"
	EventValidationCast     EventKind = "validation_cast"
	EventMilestoneValidated EventKind = "milestone_validated"
	EventFundsReleased      EventKind = "funds_released"
	EventProjectCompleted   EventKind = "project_completed"
	EventMilestoneRejected  EventKind = "milestone_rejected"
	EventProjectCancelled   EventKind = "project_cancelled"
	EventRefundIssued       EventKind = "refund_issued"
	EventDisputeCreated     EventKind = "dispute_created"
	EventDisputeVoted       EventKind = "dispute_voted"
	EventDisputeResolved    EventKind = "dispute_resolved"
	EventReputationGranted  EventKind = "reputation_granted"
)

// Event is a notification for indexers and UIs. Seq is assigned by the store on append.
type Event struct {
	Seq         uint64       `json:"seq"`
	Kind        EventKind    `json:"kind"`
	ProjectID   uint64       `json:"project_id,omitempty"`
	MilestoneID *int         `json:"milestone_id,omitempty"`
	DisputeID   uint64       `json:"dispute_id,omitempty"`
	Identity    string       `json:"identity,omitempty"` // actor or recipient, depending on kind
	Amount      *uint256.Int `json:"amount,omitempty"`
	Fee         *uint256.Int `json:"fee,omitempty"`
	Detail      string       `json:"detail,omitempty"`
	At          time.Time    `json:"at"`
}

// MilestoneRef returns a pointer for Event.MilestoneID
func MilestoneRef(id int) *int {
	return &id
}
