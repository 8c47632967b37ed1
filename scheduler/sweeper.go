package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"milestone-escrow/errs"
	"milestone-escrow/funding"
	"milestone-escrow/logger"
)

type MilestoneExpirer interface {
	ExpiredSubmissions(now time.Time) ([]funding.SubmissionRef, error)
	ExpireMilestone(ctx context.Context, projectID uint64, milestoneID int) error
}

type DisputeResolver interface {
	ExpiredActive(now time.Time) ([]uint64, error)
	ResolveExpiredDispute(ctx context.Context, disputeID uint64) error
}

// Result counts what one sweep changed
type Result struct {
	MilestonesExpired int
	DisputesResolved  int
	Failed            int
}

// Sweeper drives the time-based transitions nobody else triggers: stale
// milestone submissions and disputes past their voting deadline
type Sweeper struct {
	milestones MilestoneExpirer
	disputes   DisputeResolver
	pool       *ants.Pool
	now        func() time.Time
}

func NewSweeper(milestones MilestoneExpirer, disputes DisputeResolver, workers int, now func() time.Time) (*Sweeper, error) {
	if workers <= 0 {
		workers = 4
	}
	if now == nil {
		now = time.Now
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Sweeper{milestones: milestones, disputes: disputes, pool: pool, now: now}, nil
}

// Sweep runs one pass. Targets that another caller already settled are skipped quietly.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	now := s.now()
	refs, err := s.milestones.ExpiredSubmissions(now)
	if err != nil {
		return Result{}, err
	}
	ids, err := s.disputes.ExpiredActive(now)
	if err != nil {
		return Result{}, err
	}

	var expired, resolved, failed int64
	var wg sync.WaitGroup
	submit := func(task func() error, done *int64) {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			switch err := task(); {
			case err == nil:
				atomic.AddInt64(done, 1)
			case errors.Is(err, errs.ErrNotSubmitted), errors.Is(err, errs.ErrDisputeNotActive):
			default:
				atomic.AddInt64(&failed, 1)
				logger.Logger.Warn("Sweep task failed", zap.Error(err))
			}
		})
		if err != nil {
			wg.Done()
			atomic.AddInt64(&failed, 1)
			logger.Logger.Error("Failed to submit sweep task", zap.Error(err))
		}
	}

	for _, ref := range refs {
		ref := ref
		submit(func() error { return s.milestones.ExpireMilestone(ctx, ref.ProjectID, ref.MilestoneID) }, &expired)
	}
	for _, id := range ids {
		id := id
		submit(func() error { return s.disputes.ResolveExpiredDispute(ctx, id) }, &resolved)
	}
	wg.Wait()

	res := Result{
		MilestonesExpired: int(expired),
		DisputesResolved:  int(resolved),
		Failed:            int(failed),
	}
	if len(refs)+len(ids) > 0 {
		logger.Logger.Info("Sweep finished",
			zap.Int("milestones_expired", res.MilestonesExpired),
			zap.Int("disputes_resolved", res.DisputesResolved),
			zap.Int("failed", res.Failed))
	}
	return res, nil
}

func (s *Sweeper) Close() {
	s.pool.Release()
}
