package funding

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"milestone-escrow/errs"
	"milestone-escrow/events"
	"milestone-escrow/logger"
	"milestone-escrow/metrics"
	"milestone-escrow/models"
	"milestone-escrow/payout"
	"milestone-escrow/repository"
	"milestone-escrow/reputation"
)

var hundred = uint256.NewInt(100)

// Engine runs the project and milestone lifecycle. Every mutating call is one
// store transaction, so calls are totally ordered by the store.
type Engine struct {
	store     repository.LedgerStore
	gate      reputation.Gate
	sink      payout.Sink
	publisher events.Publisher
	metrics   metrics.Metrics
	params    Params
	now       func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func NewEngine(store repository.LedgerStore, gate reputation.Gate, sink payout.Sink, m metrics.Metrics, params Params, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		gate:      gate,
		sink:      sink,
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

func (e *Engine) Params() Params {
	return e.params
}

func (e *Engine) validateProject(owner, contentHash string, fundingGoal *uint256.Int, durationDays int, descriptions []string, percentages []uint64) error {
	switch {
	case owner == "":
		return errs.Detail(errs.ErrInvalidParameters, "owner is required")
	case contentHash == "":
		return errs.Detail(errs.ErrInvalidParameters, "content hash is required")
	case fundingGoal == nil || fundingGoal.Lt(e.params.MinFundingGoal):
		return errs.Detail(errs.ErrInvalidParameters, "funding goal below minimum %s", e.params.MinFundingGoal.Dec())
	case durationDays < 1 || durationDays > e.params.MaxDurationDays:
		return errs.Detail(errs.ErrInvalidParameters, "duration must be 1..%d days", e.params.MaxDurationDays)
	case len(descriptions) == 0 || len(descriptions) != len(percentages):
		return errs.Detail(errs.ErrInvalidParameters, "milestone descriptions and percentages must be non-empty and the same length")
	}

	var sum uint64
	for i, pct := range percentages {
		if descriptions[i] == "" {
			return errs.Detail(errs.ErrInvalidParameters, "milestone %d has no description", i)
		}
		if pct < 1 || pct > 100 {
			return errs.Detail(errs.ErrInvalidParameters, "milestone %d percentage %d out of range", i, pct)
		}
		sum += pct
		if sum > 100 {
			break
		}
	}
	if sum != 100 {
		return errs.Detail(errs.ErrInvalidParameters, "milestone percentages must sum to 100")
	}
	return nil
}

// CreateProject registers a project with its full milestone plan
func (e *Engine) CreateProject(ctx context.Context, owner, contentHash string, fundingGoal *uint256.Int, durationDays int, descriptions []string, percentages []uint64) (uint64, error) {
	if err := e.validateProject(owner, contentHash, fundingGoal, durationDays, descriptions, percentages); err != nil {
		return 0, err
	}

	now := e.now().UTC()
	var id uint64
	err := events.Update(e.store, e.publisher, func(tx repository.Tx, j *events.Journal) error {
		var err error
		id, err = tx.NextProjectID()
		if err != nil {
			return err
		}

		p := &models.Project{
			ID:            id,
			Owner:         owner,
			ContentHash:   contentHash,
			FundingGoal:   fundingGoal.Clone(),
			TotalFunded:   new(uint256.Int),
			TotalReleased: new(uint256.Int),
			TotalRefunded: new(uint256.Int),
			Deadline:      now.Add(time.Duration(durationDays) * 24 * time.Hour),
			Status:        models.ProjectActive,
			CreatedAt:     now,
			Milestones:    make([]*models.Milestone, len(descriptions)),
			Donations:     make(map[string]*uint256.Int),
		}
		for i := range descriptions {
			p.Milestones[i] = &models.Milestone{
				ID:                  i,
				Description:         descriptions[i],
				FundingPercentage:   percentages[i],
				Status:              models.MilestonePending,
				ValidationsRequired: e.params.MinValidations,
				Validators:          make(map[string]struct{}),
			}
		}
		if err := tx.PutProject(p); err != nil {
			return err
		}

		if err := j.Emit(&models.Event{
			Kind:      models.EventProjectCreated,
			ProjectID: id,
			Identity:  owner,
			Amount:    p.FundingGoal,
			Detail:    contentHash,
			At:        now,
		}); err != nil {
			return err
		}
		for _, m := range p.Milestones {
			if err := j.Emit(&models.Event{
				Kind:        models.EventMilestoneAdded,
				ProjectID:   id,
				MilestoneID: models.MilestoneRef(m.ID),
				Detail:      fmt.Sprintf("%d%% %s", m.FundingPercentage, m.Description),
				At:          now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.metrics.IncProjectsCreated()
	logger.Logger.Info("Project created",
		zap.Uint64("project_id", id), zap.String("owner", owner), zap.Int("milestones", len(descriptions)))
	return id, nil
}

// Donate adds amount to the project's escrow on behalf of donor
func (e *Engine) Donate(ctx context.Context, projectID uint64, donor string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return errs.ErrInvalidAmount
	}
	if donor == "" {
		return errs.Detail(errs.ErrInvalidParameters, "donor is required")
	}

	var funded bool
	err := events.Update(e.store, e.publisher, func(tx repository.Tx, j *events.Journal) error {
		p, err := tx.GetProject(projectID)
		if err != nil {
			return err
		}
		now := e.now().UTC()
		if !p.Open() || !now.Before(p.Deadline) {
			return errs.ErrProjectInactive
		}

		total, overflow := new(uint256.Int).AddOverflow(p.TotalFunded, amount)
		if overflow {
			return errs.Detail(errs.ErrInvalidAmount, "total funding overflows")
		}
		// a donor's total never exceeds TotalFunded so this cannot overflow
		p.Donations[donor] = new(uint256.Int).Add(p.Donation(donor), amount)
		p.TotalFunded = total

		if err := j.Emit(&models.Event{
			Kind:      models.EventDonationReceived,
			ProjectID: projectID,
			Identity:  donor,
			Amount:    amount.Clone(),
			At:        now,
		}); err != nil {
			return err
		}

		if !p.GoalReached && !p.TotalFunded.Lt(p.FundingGoal) {
			p.GoalReached = true
			p.Status = models.ProjectFunded
			funded = true
			if err := j.Emit(&models.Event{
				Kind:      models.EventProjectFunded,
				ProjectID: projectID,
				Amount:    p.TotalFunded.Clone(),
				At:        now,
			}); err != nil {
				return err
			}
		}
		return tx.PutProject(p)
	})
	if err != nil {
		return err
	}

	e.metrics.IncDonations()
	logger.Logger.Info("Donation received",
		zap.Uint64("project_id", projectID), zap.String("donor", donor), zap.String("amount", amount.Dec()))
	if funded {
		logger.Logger.Info("Project funded", zap.Uint64("project_id", projectID))
	}
	return nil
}

// SubmitMilestoneProof moves a pending milestone to submitted
func (e *Engine) SubmitMilestoneProof(ctx context.Context, projectID uint64, caller string, milestoneID int, proofHash string) error {
	if proofHash == "" {
		return errs.Detail(errs.ErrInvalidParameters, "proof hash is required")
	}

	err := events.Update(e.store, e.publisher, func(tx repository.Tx, j *events.Journal) error {
		p, err := tx.GetProject(projectID)
		if err != nil {
			return err
		}
		if caller != p.Owner {
			return errs.ErrUnauthorized
		}
		m := p.Milestone(milestoneID)
		if m == nil {
			return errs.ErrInvalidMilestone
		}
		now := e.now().UTC()
		if !p.Open() || p.Refundable(now) {
			return errs.ErrProjectInactive
		}
		if m.Status != models.MilestonePending {
			return errs.ErrAlreadySubmitted
		}

		m.ProofHash = proofHash
		m.Status = models.MilestoneSubmitted
		m.SubmittedAt = &now
		if err := tx.PutProject(p); err != nil {
			return err
		}
		return j.Emit(&models.Event{
			Kind:        models.EventMilestoneSubmitted,
			ProjectID:   projectID,
			MilestoneID: models.MilestoneRef(milestoneID),
			Identity:    caller,
			Detail:      proofHash,
			At:          now,
		})
	})
	if err != nil {
		return err
	}

	logger.Logger.Info("Milestone proof submitted",
		zap.Uint64("project_id", projectID), zap.Int("milestone_id", milestoneID))
	return nil
}

// CastValidationVote records one attestation. The vote that reaches quorum
// validates the milestone and pays out its tranche in the same transaction.
func (e *Engine) CastValidationVote(ctx context.Context, projectID uint64, milestoneID int, validator string) error {
	var release *tranche
	var completed bool
	err := events.Update(e.store, e.publisher, func(tx repository.Tx, j *events.Journal) error {
		p, err := tx.GetProject(projectID)
		if err != nil {
			return err
		}
		m := p.Milestone(milestoneID)
		if m == nil {
			return errs.ErrInvalidMilestone
		}
		score, err := e.gate.Score(ctx, validator)
		if err != nil {
			return fmt.Errorf("reputation of %q: %w", validator, err)
		}
		if score < e.params.MinReputation {
			return errs.ErrInsufficientReputation
		}
		if validator == p.Owner {
			return errs.ErrSelfValidationForbidden
		}
		now := e.now().UTC()
		if !p.Open() || p.Refundable(now) {
			return errs.ErrProjectInactive
		}
		if m.Status != models.MilestoneSubmitted {
			return errs.ErrNotSubmitted
		}
		if m.HasVoted(validator) {
			return errs.ErrDuplicateVote
		}

		m.Validators[validator] = struct{}{}
		m.CurrentValidations++
		if _, err := tx.AddReputation(validator, e.params.ValidationReward); err != nil {
			return err
		}
		if err := j.Emit(&models.Event{
			Kind:        models.EventValidationCast,
			ProjectID:   projectID,
			MilestoneID: models.MilestoneRef(milestoneID),
			Identity:    validator,
			Detail:      fmt.Sprintf("%d/%d", m.CurrentValidations, m.ValidationsRequired),
			At:          now,
		}); err != nil {
			return err
		}

		if m.CurrentValidations < m.ValidationsRequired {
			return tx.PutProject(p)
		}

		m.Status = models.MilestoneValidated
		m.ValidatedAt = &now
		release = e.computeTranche(p, m)
		p.TotalReleased = new(uint256.Int).Add(p.TotalReleased, release.amount)
		m.ReleasedAmount = release.amount
		m.PlatformFee = release.fee

		if err := j.Emit(&models.Event{
			Kind:        models.EventMilestoneValidated,
			ProjectID:   projectID,
			MilestoneID: models.MilestoneRef(milestoneID),
			At:          now,
		}); err != nil {
			return err
		}
		if err := j.Emit(&models.Event{
			Kind:        models.EventFundsReleased,
			ProjectID:   projectID,
			MilestoneID: models.MilestoneRef(milestoneID),
			Identity:    p.Owner,
			Amount:      release.amount.Clone(),
			Fee:         release.fee.Clone(),
			At:          now,
		}); err != nil {
			return err
		}

		if p.AllValidated() {
			p.Status = models.ProjectCompleted
			completed = true
			if err := j.Emit(&models.Event{
				Kind:      models.EventProjectCompleted,
				ProjectID: projectID,
				Amount:    p.TotalReleased.Clone(),
				At:        now,
			}); err != nil {
				return err
			}
		}
		if err := tx.PutProject(p); err != nil {
			return err
		}

		// the payout goes last so its failure discards everything above
		return e.pay(ctx, release.transfers(p.Owner, e.params.PlatformAccount, projectID, milestoneID))
	})
	if err != nil {
		return err
	}

	e.metrics.IncValidationVotes()
	logger.Logger.Info("Validation vote recorded",
		zap.Uint64("project_id", projectID), zap.Int("milestone_id", milestoneID), zap.String("validator", validator))
	if release != nil {
		e.metrics.IncReleases()
		logger.Logger.Info("Milestone funds released",
			zap.Uint64("project_id", projectID),
			zap.Int("milestone_id", milestoneID),
			zap.String("amount", release.amount.Dec()),
			zap.String("fee", release.fee.Dec()))
	}
	if completed {
		logger.Logger.Info("Project completed", zap.Uint64("project_id", projectID))
	}
	return nil
}

// CancelProject stops the project; donors may then pull refunds
func (e *Engine) CancelProject(ctx context.Context, projectID uint64, caller, reason string) error {
	err := events.Update(e.store, e.publisher, func(tx repository.Tx, j *events.Journal) error {
		p, err := tx.GetProject(projectID)
		if err != nil {
			return err
		}
		if caller != p.Owner {
			return errs.ErrUnauthorized
		}
		if !p.Open() {
			return errs.ErrProjectInactive
		}

		now := e.now().UTC()
		p.Status = models.ProjectCancelled
		p.CancelReason = reason
		if err := tx.PutProject(p); err != nil {
			return err
		}
		return j.Emit(&models.Event{
			Kind:      models.EventProjectCancelled,
			ProjectID: projectID,
			Identity:  caller,
			Detail:    reason,
			At:        now,
		})
	})
	if err != nil {
		return err
	}

	logger.Logger.Info("Project cancelled", zap.Uint64("project_id", projectID), zap.String("reason", reason))
	return nil
}

// RequestRefund pays donor their share of what the project has not released
// and returns the amount paid
func (e *Engine) RequestRefund(ctx context.Context, projectID uint64, donor string) (*uint256.Int, error) {
	var refund *uint256.Int
	err := events.Update(e.store, e.publisher, func(tx repository.Tx, j *events.Journal) error {
		p, err := tx.GetProject(projectID)
		if err != nil {
			return err
		}
		now := e.now().UTC()
		if !p.Refundable(now) {
			return errs.ErrRefundUnavailable
		}
		donation := p.Donation(donor)
		if donation.IsZero() {
			return errs.ErrNoDonationFound
		}

		unreleased := new(uint256.Int).Sub(p.TotalFunded, p.TotalReleased)
		refund, _ = new(uint256.Int).MulDivOverflow(donation, unreleased, p.TotalFunded)
		if escrow := p.Escrowed(); refund.Gt(escrow) {
			refund = escrow
		}

		p.Donations[donor] = new(uint256.Int)
		p.TotalRefunded = new(uint256.Int).Add(p.TotalRefunded, refund)
		if err := tx.PutProject(p); err != nil {
			return err
		}
		if err := j.Emit(&models.Event{
			Kind:      models.EventRefundIssued,
			ProjectID: projectID,
			Identity:  donor,
			Amount:    refund.Clone(),
			At:        now,
		}); err != nil {
			return err
		}

		if refund.IsZero() {
			return nil
		}
		return e.pay(ctx, []payout.Transfer{{
			To:     donor,
			Amount: refund.Clone(),
			Memo:   fmt.Sprintf("refund project %d", projectID),
		}})
	})
	if err != nil {
		return nil, err
	}

	e.metrics.IncRefunds()
	logger.Logger.Info("Refund issued",
		zap.Uint64("project_id", projectID), zap.String("donor", donor), zap.String("amount", refund.Dec()))
	return refund, nil
}

// ExpireMilestone rejects a submitted milestone whose validation window has
// passed without quorum. Its share stays in escrow.
func (e *Engine) ExpireMilestone(ctx context.Context, projectID uint64, milestoneID int) error {
	err := events.Update(e.store, e.publisher, func(tx repository.Tx, j *events.Journal) error {
		p, err := tx.GetProject(projectID)
		if err != nil {
			return err
		}
		m := p.Milestone(milestoneID)
		if m == nil {
			return errs.ErrInvalidMilestone
		}
		if m.Status != models.MilestoneSubmitted {
			return errs.ErrNotSubmitted
		}
		now := e.now().UTC()
		if now.Before(m.SubmittedAt.Add(e.params.ValidationWindow)) {
			return errs.ErrValidationWindowOpen
		}

		m.Status = models.MilestoneRejected
		m.RejectedAt = &now
		if err := tx.PutProject(p); err != nil {
			return err
		}
		return j.Emit(&models.Event{
			Kind:        models.EventMilestoneRejected,
			ProjectID:   projectID,
			MilestoneID: models.MilestoneRef(milestoneID),
			Detail:      fmt.Sprintf("%d/%d validations", m.CurrentValidations, m.ValidationsRequired),
			At:          now,
		})
	})
	if err != nil {
		return err
	}

	e.metrics.IncMilestonesExpired()
	logger.Logger.Info("Milestone expired", zap.Uint64("project_id", projectID), zap.Int("milestone_id", milestoneID))
	return nil
}

func (e *Engine) pay(ctx context.Context, batch []payout.Transfer) error {
	if len(batch) == 0 {
		return nil
	}
	if err := e.sink.Transfer(ctx, batch); err != nil {
		e.metrics.IncTransferFailures()
		logger.Logger.Error("Payout failed", zap.Int("legs", len(batch)), zap.Error(err))
		return errs.Wrap(errs.ErrTransferFailure, err)
	}
	return nil
}
