package models

import (
	"time"

	"github.com/holiman/uint256"
)

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectFunded    ProjectStatus = "funded"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
	ProjectDisputed  ProjectStatus = "disputed" // reserved, never assigned
)

type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneSubmitted MilestoneStatus = "submitted"
	MilestoneValidated MilestoneStatus = "validated"
	MilestoneRejected  MilestoneStatus = "rejected"
)

type Project struct {
	ID            uint64                  `json:"id"`             // allocated by the store, starts at 1
	Owner         string                  `json:"owner"`          // creator identity
	ContentHash   string                  `json:"content_hash"`   // opaque reference to the off-chain description
	FundingGoal   *uint256.Int            `json:"funding_goal"`   // base units
	TotalFunded   *uint256.Int            `json:"total_funded"`   // sum of accepted donations, never decreases
	TotalReleased *uint256.Int            `json:"total_released"` // paid out on milestone validation, fees included
	TotalRefunded *uint256.Int            `json:"total_refunded"` // paid back to donors
	Deadline      time.Time               `json:"deadline"`
	Status        ProjectStatus           `json:"status"`
	GoalReached   bool                    `json:"goal_reached"` // sticky, survives cancellation
	CreatedAt     time.Time               `json:"created_at"`
	CancelReason  string                  `json:"cancel_reason,omitempty"`
	Milestones    []*Milestone            `json:"milestones"`
	Donations     map[string]*uint256.Int `json:"donations"` // donor -> cumulative amount
}

type Milestone struct {
	ID                  int                 `json:"id"` // position within the project
	Description         string              `json:"description"`
	FundingPercentage   uint64              `json:"funding_percentage"`
	ProofHash           string              `json:"proof_hash,omitempty"`
	Status              MilestoneStatus     `json:"status"`
	ValidationsRequired int                 `json:"validations_required"`
	CurrentValidations  int                 `json:"current_validations"`
	Validators          map[string]struct{} `json:"validators"` // everyone who ever voted, never pruned
	SubmittedAt         *time.Time          `json:"submitted_at,omitempty"`
	ValidatedAt         *time.Time          `json:"validated_at,omitempty"`
	RejectedAt          *time.Time          `json:"rejected_at,omitempty"`
	ReleasedAmount      *uint256.Int        `json:"released_amount,omitempty"`
	PlatformFee         *uint256.Int        `json:"platform_fee,omitempty"`
}

// Open reports whether the project still accepts donations, proofs and cancellation
func (p *Project) Open() bool {
	return p.Status == ProjectActive || p.Status == ProjectFunded
}

// Refundable reports whether donors may pull their donations back at now
func (p *Project) Refundable(now time.Time) bool {
	if p.Status == ProjectCancelled {
		return true
	}
	return p.Status == ProjectActive && !now.Before(p.Deadline)
}

// Escrowed is what the project still holds: funded minus released minus refunded
func (p *Project) Escrowed() *uint256.Int {
	out := new(uint256.Int).Sub(p.TotalFunded, p.TotalReleased)
	return out.Sub(out, p.TotalRefunded)
}

// Donation returns a copy of the donor's cumulative amount, zero if absent
func (p *Project) Donation(donor string) *uint256.Int {
	if d, ok := p.Donations[donor]; ok && d != nil {
		return d.Clone()
	}
	return new(uint256.Int)
}

// AllValidated reports whether every milestone has been validated
func (p *Project) AllValidated() bool {
	for _, m := range p.Milestones {
		if m.Status != MilestoneValidated {
			return false
		}
	}
	return len(p.Milestones) > 0
}

// Milestone returns the milestone at id or nil
func (p *Project) Milestone(id int) *Milestone {
	if id < 0 || id >= len(p.Milestones) {
		return nil
	}
	return p.Milestones[id]
}

// HasVoted reports whether validator ever voted on this milestone
func (m *Milestone) HasVoted(validator string) bool {
	_, ok := m.Validators[validator]
	return ok
}
