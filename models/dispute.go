package models

import (
	"strings"
	"time"
)

type DisputeStatus string

const (
	DisputeActive   DisputeStatus = "active"
	DisputeResolved DisputeStatus = "resolved"
	DisputeRejected DisputeStatus = "rejected"
	DisputeExpired  DisputeStatus = "expired"
)

type Choice string

const (
	ChoiceYes Choice = "yes"
	ChoiceNo  Choice = "no"
)

// ParseChoice accepts yes/no in any case
func ParseChoice(s string) (Choice, bool) {
	switch Choice(strings.ToLower(strings.TrimSpace(s))) {
	case ChoiceYes:
		return ChoiceYes, true
	case ChoiceNo:
		return ChoiceNo, true
	}
	return "", false
}

type Dispute struct {
	ID             uint64            `json:"id"`
	ProjectID      uint64            `json:"project_id"`   // reference only
	MilestoneID    int               `json:"milestone_id"` // reference only
	Reporter       string            `json:"reporter"`
	Description    string            `json:"description"`
	EvidenceHash   string            `json:"evidence_hash"`
	Status         DisputeStatus     `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	VotingDeadline time.Time         `json:"voting_deadline"`
	YesVotes       int               `json:"yes_votes"`
	NoVotes        int               `json:"no_votes"`
	Votes          map[string]Choice `json:"votes"` // write-once per voter
	FinalizedAt    *time.Time        `json:"finalized_at,omitempty"`
}

// TotalVotes is yes plus no
func (d *Dispute) TotalVotes() int {
	return d.YesVotes + d.NoVotes
}

func (d *Dispute) HasVoted(voter string) bool {
	_, ok := d.Votes[voter]
	return ok
}
