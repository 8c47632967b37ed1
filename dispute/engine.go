package dispute

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"milestone-escrow/errs"
	"milestone-escrow/events"
	"milestone-escrow/logger"
	"milestone-escrow/metrics"
	"milestone-escrow/models"
	"milestone-escrow/repository"
	"milestone-escrow/reputation"
)

type Params struct {
	VotingDuration    time.Duration
	MinReputation     uint64
	Quorum            int
	DisputeVoteReward uint64
}

func DefaultParams() Params {
	return Params{
		VotingDuration:    7 * 24 * time.Hour,
		MinReputation:     10,
		Quorum:            10,
		DisputeVoteReward: 5,
	}
}

// Engine adjudicates disputes by majority vote. Outcomes are recorded on the
// dispute only; projects and milestones are never touched.
type Engine struct {
	store     repository.LedgerStore
	gate      reputation.Gate
	publisher events.Publisher
	metrics   metrics.Metrics
	params    Params
	now       func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func NewEngine(store repository.LedgerStore, gate reputation.Gate, m metrics.Metrics, params Params, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		gate:      gate,
		publisher: events.Discard{},
		metrics:   m,
		params:    params,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FileDispute opens a dispute against a milestone. Anyone may file.
func (e *Engine) FileDispute(ctx context.Context, projectID uint64, milestoneID int, reporter, description, evidenceHash string) (uint64, error) {
	switch {
	case reporter == "":
		return 0, errs.Detail(errs.ErrInvalidParameters, "reporter is required")
	case description == "":
		return 0, errs.Detail(errs.ErrInvalidParameters, "description is required")
	case evidenceHash == "":
		return 0, errs.Detail(errs.ErrInvalidParameters, "evidence hash is required")
	}

	var id uint64
	err := events.Update(e.store, e.publisher, func(tx repository.Tx, j *events.Journal) error {
		p, err := tx.GetProject(projectID)
		if err != nil {
			return err
		}
		if p.Milestone(milestoneID) == nil {
			return errs.ErrInvalidMilestone
		}

		id, err = tx.NextDisputeID()
		if err != nil {
			return err
		}
		now := e.now().UTC()
		d := &models.Dispute{
			ID:             id,
			ProjectID:      projectID,
			MilestoneID:    milestoneID,
			Reporter:       reporter,
			Description:    description,
			EvidenceHash:   evidenceHash,
			Status:         models.DisputeActive,
			CreatedAt:      now,
			VotingDeadline: now.Add(e.params.VotingDuration),
			Votes:          make(map[string]models.Choice),
		}
		if err := tx.PutDispute(d); err != nil {
			return err
		}
		return j.Emit(&models.Event{
			Kind:        models.EventDisputeCreated,
			ProjectID:   projectID,
			MilestoneID: models.MilestoneRef(milestoneID),
			DisputeID:   id,
			Identity:    reporter,
			Detail:      evidenceHash,
			At:          now,
		})
	})
	if err != nil {
		return 0, err
	}

	e.metrics.IncDisputesFiled()
	logger.Logger.Info("Dispute filed",
		zap.Uint64("dispute_id", id), zap.Uint64("project_id", projectID), zap.Int("milestone_id", milestoneID))
	return id, nil
}

// CastDisputeVote records voter's choice. The vote that reaches quorum
// finalizes the dispute in the same transaction.
func (e *Engine) CastDisputeVote(ctx context.Context, disputeID uint64, voter string, choice string) error {
	c, ok := models.ParseChoice(choice)
	if !ok {
		return errs.ErrInvalidChoice
	}

	var outcome models.DisputeStatus
	err := events.Update(e.store, e.publisher, func(tx repository.Tx, j *events.Journal) error {
		d, err := tx.GetDispute(disputeID)
		if err != nil {
			return err
		}
		score, err := e.gate.Score(ctx, voter)
		if err != nil {
			return fmt.Errorf("reputation of %q: %w", voter, err)
		}
		if score < e.params.MinReputation {
			return errs.ErrInsufficientReputation
		}
		now := e.now().UTC()
		if d.Status != models.DisputeActive || !now.Before(d.VotingDeadline) {
			return errs.ErrVotingClosed
		}
		if d.HasVoted(voter) {
			return errs.ErrDuplicateVote
		}

		d.Votes[voter] = c
		if c == models.ChoiceYes {
			d.YesVotes++
		} else {
			d.NoVotes++
		}
		if _, err := tx.AddReputation(voter, e.params.DisputeVoteReward); err != nil {
			return err
		}
		if err := j.Emit(&models.Event{
			Kind:      models.EventDisputeVoted,
			ProjectID: d.ProjectID,
			DisputeID: disputeID,
			Identity:  voter,
			Detail:    string(c),
			At:        now,
		}); err != nil {
			return err
		}

		if d.TotalVotes() >= e.params.Quorum {
			if err := e.finalize(d, now, j); err != nil {
				return err
			}
			outcome = d.Status
		}
		return tx.PutDispute(d)
	})
	if err != nil {
		return err
	}

	e.metrics.IncDisputeVotes()
	logger.Logger.Info("Dispute vote recorded",
		zap.Uint64("dispute_id", disputeID), zap.String("voter", voter), zap.String("choice", string(c)))
	e.finalized(disputeID, outcome)
	return nil
}

// ResolveExpiredDispute closes a dispute whose voting window has ended.
// Anyone may call it.
func (e *Engine) ResolveExpiredDispute(ctx context.Context, disputeID uint64) error {
	var outcome models.DisputeStatus
	err := events.Update(e.store, e.publisher, func(tx repository.Tx, j *events.Journal) error {
		d, err := tx.GetDispute(disputeID)
		if err != nil {
			return err
		}
		if d.Status != models.DisputeActive {
			return errs.ErrDisputeNotActive
		}
		now := e.now().UTC()
		if now.Before(d.VotingDeadline) {
			return errs.ErrVotingOpen
		}
		if err := e.finalize(d, now, j); err != nil {
			return err
		}
		outcome = d.Status
		return tx.PutDispute(d)
	})
	if err != nil {
		return err
	}

	e.finalized(disputeID, outcome)
	return nil
}

// finalize settles an active dispute. Below quorum it waits for the deadline
// and then expires; at quorum a strict yes majority resolves it and anything
// else rejects it.
func (e *Engine) finalize(d *models.Dispute, now time.Time, j *events.Journal) error {
	if d.Status != models.DisputeActive {
		return nil
	}
	switch {
	case d.TotalVotes() < e.params.Quorum && now.Before(d.VotingDeadline):
		return nil
	case d.TotalVotes() < e.params.Quorum:
		d.Status = models.DisputeExpired
	case d.YesVotes > d.NoVotes:
		d.Status = models.DisputeResolved
	default:
		d.Status = models.DisputeRejected
	}
	d.FinalizedAt = &now

	return j.Emit(&models.Event{
		Kind:        models.EventDisputeResolved,
		ProjectID:   d.ProjectID,
		MilestoneID: models.MilestoneRef(d.MilestoneID),
		DisputeID:   d.ID,
		Detail:      fmt.Sprintf("%s %d/%d", d.Status, d.YesVotes, d.NoVotes),
		At:          now,
	})
}

func (e *Engine) finalized(disputeID uint64, outcome models.DisputeStatus) {
	if outcome == "" || outcome == models.DisputeActive {
		return
	}
	e.metrics.MarkDisputeFinalized(string(outcome))
	logger.Logger.Info("Dispute finalized", zap.Uint64("dispute_id", disputeID), zap.String("outcome", string(outcome)))
}

func (e *Engine) Dispute(id uint64) (*models.Dispute, error) {
	var d *models.Dispute
	err := e.store.View(func(r repository.Reader) error {
		var err error
		d, err = r.GetDispute(id)
		return err
	})
	return d, err
}

func (e *Engine) Disputes() ([]*models.Dispute, error) {
	var list []*models.Dispute
	err := e.store.View(func(r repository.Reader) error {
		var err error
		list, err = r.ListDisputes()
		return err
	})
	return list, err
}

// ExpiredActive returns the ids of active disputes whose deadline is at or before now
func (e *Engine) ExpiredActive(now time.Time) ([]uint64, error) {
	list, err := e.Disputes()
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, d := range list {
		if d.Status == models.DisputeActive && !now.Before(d.VotingDeadline) {
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}
