package funding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"milestone-escrow/db"
	"milestone-escrow/errs"
	"milestone-escrow/events"
	"milestone-escrow/metrics"
	"milestone-escrow/models"
	"milestone-escrow/payout"
	"milestone-escrow/repository"
	"milestone-escrow/reputation"
)

var (
	start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	unit  = uint256.MustFromDecimal("1000000000000000000")
)

func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), unit)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine *Engine
	ledger *reputation.Ledger
	book   *payout.Book
	store  repository.LedgerStore
	hub    *events.Hub
	clock  *testClock
}

func newFixture(t *testing.T, tweak func(*Params)) *fixture {
	t.Helper()

	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	store := repository.NewLevelDBStore(ldb)
	t.Cleanup(func() { store.Close() })

	bookDB, err := db.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { bookDB.Close() })

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	params := DefaultParams()
	if tweak != nil {
		tweak(&params)
	}

	f := &fixture{
		store: store,
		book:  payout.NewBook(bookDB, nil),
		hub:   events.NewHub(256),
		clock: &testClock{now: start},
	}
	f.ledger = reputation.NewLedger(store, f.hub)
	f.engine = NewEngine(store, f.ledger, f.book, m, params, WithClock(f.clock.Now), WithPublisher(f.hub))
	return f
}

func (f *fixture) grant(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.ledger.Grant(context.Background(), id, 10)
		require.NoError(t, err)
	}
}

func (f *fixture) balance(t *testing.T, id string) *uint256.Int {
	t.Helper()
	bal, err := f.book.Balance(id)
	require.NoError(t, err)
	return bal
}

func (f *fixture) score(t *testing.T, id string) uint64 {
	t.Helper()
	s, err := f.ledger.Score(context.Background(), id)
	require.NoError(t, err)
	return s
}

// createFunded creates a 40/60 project for alice with a 100 token goal and
// funds it with donor1=60 and donor2=40
func (f *fixture) createFunded(t *testing.T) uint64 {
	t.Helper()
	ctx := context.Background()
	id, err := f.engine.CreateProject(ctx, "alice", "QmProject", tokens(100), 30, []string{"prototype", "launch"}, []uint64{40, 60})
	require.NoError(t, err)
	require.NoError(t, f.engine.Donate(ctx, id, "donor1", tokens(60)))
	require.NoError(t, f.engine.Donate(ctx, id, "donor2", tokens(40)))
	return id
}

func TestCreateProject_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	goal := tokens(1)

	cases := []struct {
		name  string
		owner string
		hash  string
		goal  *uint256.Int
		days  int
		descs []string
		pcts  []uint64
	}{
		{"empty owner", "", "h", goal, 10, []string{"a"}, []uint64{100}},
		{"empty hash", "alice", "", goal, 10, []string{"a"}, []uint64{100}},
		{"nil goal", "alice", "h", nil, 10, []string{"a"}, []uint64{100}},
		{"goal below minimum", "alice", "h", uint256.NewInt(1), 10, []string{"a"}, []uint64{100}},
		{"zero duration", "alice", "h", goal, 0, []string{"a"}, []uint64{100}},
		{"duration too long", "alice", "h", goal, 366, []string{"a"}, []uint64{100}},
		{"no milestones", "alice", "h", goal, 10, nil, nil},
		{"length mismatch", "alice", "h", goal, 10, []string{"a", "b"}, []uint64{100}},
		{"empty description", "alice", "h", goal, 10, []string{"a", ""}, []uint64{50, 50}},
		{"zero percentage", "alice", "h", goal, 10, []string{"a", "b"}, []uint64{0, 100}},
		{"percentage over 100", "alice", "h", goal, 10, []string{"a"}, []uint64{101}},
		{"sum below 100", "alice", "h", goal, 10, []string{"a", "b"}, []uint64{40, 50}},
		{"sum above 100", "alice", "h", goal, 10, []string{"a", "b"}, []uint64{60, 50}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateProject(ctx, tc.owner, tc.hash, tc.goal, tc.days, tc.descs, tc.pcts)
			require.ErrorIs(t, err, errs.ErrInvalidParameters)
			require.Equal(t, errs.KindInvalidParameters, errs.KindOf(err))
		})
	}

	projects, err := f.engine.Projects()
	require.NoError(t, err)
	require.Empty(t, projects)
}

func TestCreateProject_Stored(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	feed, cancel := f.hub.Subscribe()
	defer cancel()

	id, err := f.engine.CreateProject(context.Background(), "alice", "QmProject", tokens(100), 30, []string{"a", "b"}, []uint64{40, 60})
	require.NoError(err)
	require.Equal(uint64(1), id)

	p, err := f.engine.Project(id)
	require.NoError(err)
	require.Equal(models.ProjectActive, p.Status)
	require.Equal(start.Add(30*24*time.Hour), p.Deadline)
	require.Len(p.Milestones, 2)
	for i, m := range p.Milestones {
		require.Equal(i, m.ID)
		require.Equal(models.MilestonePending, m.Status)
		require.Equal(3, m.ValidationsRequired)
	}

	owned, err := f.engine.ProjectsByOwner("alice")
	require.NoError(err)
	require.Len(owned, 1)

	require.Equal(models.EventProjectCreated, (<-feed).Kind)
	require.Equal(models.EventMilestoneAdded, (<-feed).Kind)
	require.Equal(models.EventMilestoneAdded, (<-feed).Kind)
}

func TestDonate_FundedTransition(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	id, err := f.engine.CreateProject(ctx, "alice", "h", tokens(100), 30, []string{"a"}, []uint64{100})
	require.NoError(err)

	require.NoError(f.engine.Donate(ctx, id, "donor1", tokens(60)))
	p, err := f.engine.Project(id)
	require.NoError(err)
	require.Equal(models.ProjectActive, p.Status)
	require.False(p.GoalReached)

	require.NoError(f.engine.Donate(ctx, id, "donor2", tokens(40)))
	p, err = f.engine.Project(id)
	require.NoError(err)
	require.Equal(models.ProjectFunded, p.Status)
	require.True(p.GoalReached)

	// funded projects keep accepting donations
	require.NoError(f.engine.Donate(ctx, id, "donor1", tokens(5)))
	p, err = f.engine.Project(id)
	require.NoError(err)
	require.True(p.TotalFunded.Eq(tokens(105)))
	require.True(p.Donation("donor1").Eq(tokens(65)))

	var funded int
	err = f.store.View(func(r repository.Reader) error {
		evts, err := r.Events(0, 100)
		for _, e := range evts {
			if e.Kind == models.EventProjectFunded {
				funded++
			}
		}
		return err
	})
	require.NoError(err)
	require.Equal(1, funded)
}

func TestDonate_Errors(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	id, err := f.engine.CreateProject(ctx, "alice", "h", tokens(100), 30, []string{"a"}, []uint64{100})
	require.NoError(err)

	require.ErrorIs(f.engine.Donate(ctx, id, "donor1", nil), errs.ErrInvalidAmount)
	require.ErrorIs(f.engine.Donate(ctx, id, "donor1", new(uint256.Int)), errs.ErrInvalidAmount)
	require.ErrorIs(f.engine.Donate(ctx, id, "", tokens(1)), errs.ErrInvalidParameters)
	require.ErrorIs(f.engine.Donate(ctx, 99, "donor1", tokens(1)), errs.ErrProjectNotFound)

	require.NoError(f.engine.Donate(ctx, id, "donor1", tokens(1)))
	huge := new(uint256.Int).SetAllOne()
	require.ErrorIs(f.engine.Donate(ctx, id, "donor1", huge), errs.ErrInvalidAmount)

	f.clock.Advance(30 * 24 * time.Hour)
	require.ErrorIs(f.engine.Donate(ctx, id, "donor1", tokens(1)), errs.ErrProjectInactive)

	id2, err := f.engine.CreateProject(ctx, "alice", "h", tokens(100), 30, []string{"a"}, []uint64{100})
	require.NoError(err)
	require.NoError(f.engine.CancelProject(ctx, id2, "alice", "changed plans"))
	require.ErrorIs(f.engine.Donate(ctx, id2, "donor1", tokens(1)), errs.ErrProjectInactive)
}

func TestSubmitMilestoneProof(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.createFunded(t)

	require.ErrorIs(f.engine.SubmitMilestoneProof(ctx, id, "alice", 0, ""), errs.ErrInvalidParameters)
	require.ErrorIs(f.engine.SubmitMilestoneProof(ctx, 42, "alice", 0, "QmProof"), errs.ErrProjectNotFound)
	require.ErrorIs(f.engine.SubmitMilestoneProof(ctx, id, "mallory", 0, "QmProof"), errs.ErrUnauthorized)
	require.ErrorIs(f.engine.SubmitMilestoneProof(ctx, id, "alice", 2, "QmProof"), errs.ErrInvalidMilestone)
	require.ErrorIs(f.engine.SubmitMilestoneProof(ctx, id, "alice", -1, "QmProof"), errs.ErrInvalidMilestone)

	require.NoError(f.engine.SubmitMilestoneProof(ctx, id, "alice", 0, "QmProof"))
	require.ErrorIs(f.engine.SubmitMilestoneProof(ctx, id, "alice", 0, "QmProof2"), errs.ErrAlreadySubmitted)

	p, err := f.engine.Project(id)
	require.NoError(err)
	m := p.Milestones[0]
	require.Equal(models.MilestoneSubmitted, m.Status)
	require.Equal("QmProof", m.ProofHash)
	require.NotNil(m.SubmittedAt)
	require.Equal(start, *m.SubmittedAt)
}

func TestMilestoneReleaseThenCancelAndRefund(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.createFunded(t)
	f.grant(t, "val1", "val2", "val3")

	require.NoError(f.engine.SubmitMilestoneProof(ctx, id, "alice", 0, "QmProof"))
	require.NoError(f.engine.CastValidationVote(ctx, id, 0, "val1"))
	require.NoError(f.engine.CastValidationVote(ctx, id, 0, "val2"))

	p, err := f.engine.Project(id)
	require.NoError(err)
	require.Equal(2, p.Milestones[0].CurrentValidations)
	require.True(p.TotalReleased.IsZero())

	require.NoError(f.engine.CastValidationVote(ctx, id, 0, "val3"))

	p, err = f.engine.Project(id)
	require.NoError(err)
	m := p.Milestones[0]
	require.Equal(models.MilestoneValidated, m.Status)
	require.True(m.ReleasedAmount.Eq(tokens(40)))
	require.True(m.PlatformFee.Eq(uint256.MustFromDecimal("400000000000000000")))
	require.True(p.TotalReleased.Eq(tokens(40)))
	require.Equal(models.ProjectFunded, p.Status)

	require.True(f.balance(t, "alice").Eq(uint256.MustFromDecimal("39600000000000000000")))
	require.True(f.balance(t, "platform").Eq(uint256.MustFromDecimal("400000000000000000")))
	for _, v := range []string{"val1", "val2", "val3"} {
		require.Equal(uint64(20), f.score(t, v))
	}

	// not refundable while funded and before the deadline
	_, err = f.engine.RequestRefund(ctx, id, "donor1")
	require.ErrorIs(err, errs.ErrRefundUnavailable)

	require.ErrorIs(f.engine.CancelProject(ctx, id, "val1", "nope"), errs.ErrUnauthorized)
	require.NoError(f.engine.CancelProject(ctx, id, "alice", "team disbanded"))
	require.ErrorIs(f.engine.CancelProject(ctx, id, "alice", "again"), errs.ErrProjectInactive)

	p, err = f.engine.Project(id)
	require.NoError(err)
	require.Equal(models.ProjectCancelled, p.Status)
	require.True(p.GoalReached)
	require.Equal("team disbanded", p.CancelReason)

	// no more proofs or votes once cancelled
	require.ErrorIs(f.engine.SubmitMilestoneProof(ctx, id, "alice", 1, "QmProof"), errs.ErrProjectInactive)

	refund, err := f.engine.RequestRefund(ctx, id, "donor1")
	require.NoError(err)
	require.True(refund.Eq(tokens(36)))
	refund, err = f.engine.RequestRefund(ctx, id, "donor2")
	require.NoError(err)
	require.True(refund.Eq(tokens(24)))

	_, err = f.engine.RequestRefund(ctx, id, "donor1")
	require.ErrorIs(err, errs.ErrNoDonationFound)
	_, err = f.engine.RequestRefund(ctx, id, "stranger")
	require.ErrorIs(err, errs.ErrNoDonationFound)

	p, err = f.engine.Project(id)
	require.NoError(err)
	require.True(p.TotalRefunded.Eq(tokens(60)))
	require.True(p.Escrowed().IsZero())
	require.True(f.balance(t, "donor1").Eq(tokens(36)))
	require.True(f.balance(t, "donor2").Eq(tokens(24)))
}

func TestCastValidationVote_Checks(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.createFunded(t)
	f.grant(t, "val1", "alice")

	require.ErrorIs(f.engine.CastValidationVote(ctx, 99, 0, "val1"), errs.ErrProjectNotFound)
	require.ErrorIs(f.engine.CastValidationVote(ctx, id, 5, "val1"), errs.ErrInvalidMilestone)
	require.ErrorIs(f.engine.CastValidationVote(ctx, id, 0, "newbie"), errs.ErrInsufficientReputation)
	require.ErrorIs(f.engine.CastValidationVote(ctx, id, 0, "alice"), errs.ErrSelfValidationForbidden)
	require.ErrorIs(f.engine.CastValidationVote(ctx, id, 0, "val1"), errs.ErrNotSubmitted)

	require.NoError(f.engine.SubmitMilestoneProof(ctx, id, "alice", 0, "QmProof"))
	require.NoError(f.engine.CastValidationVote(ctx, id, 0, "val1"))
	require.ErrorIs(f.engine.CastValidationVote(ctx, id, 0, "val1"), errs.ErrDuplicateVote)
	require.Equal(errs.KindDuplicateAction, errs.KindOf(f.engine.CastValidationVote(ctx, id, 0, "val1")))

	// the reward from the first vote is kept, the duplicates earned nothing
	require.Equal(uint64(20), f.score(t, "val1"))
}

func TestCastValidationVote_RefusedOnRefundableProject(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()
	f.grant(t, "val1")

	id, err := f.engine.CreateProject(ctx, "alice", "h", tokens(100), 10, []string{"a"}, []uint64{100})
	require.NoError(err)
	require.NoError(f.engine.Donate(ctx, id, "donor1", tokens(10)))
	require.NoError(f.engine.SubmitMilestoneProof(ctx, id, "alice", 0, "QmProof"))

	f.clock.Advance(10 * 24 * time.Hour)
	require.ErrorIs(f.engine.CastValidationVote(ctx, id, 0, "val1"), errs.ErrProjectInactive)

	refund, err := f.engine.RequestRefund(ctx, id, "donor1")
	require.NoError(err)
	require.True(refund.Eq(tokens(10)))
}

func TestRequestRefund_FundedPastDeadlineNotRefundable(t *testing.T) {
	f := newFixture(t, nil)
	id := f.createFunded(t)

	f.clock.Advance(31 * 24 * time.Hour)
	_, err := f.engine.RequestRefund(context.Background(), id, "donor1")
	require.ErrorIs(t, err, errs.ErrRefundUnavailable)

	_, err = f.engine.RequestRefund(context.Background(), 77, "donor1")
	require.ErrorIs(t, err, errs.ErrProjectNotFound)
}

func TestCastValidationVote_TransferFailureRollsBack(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.createFunded(t)
	f.grant(t, "val1", "val2", "val3")

	require.NoError(f.engine.SubmitMilestoneProof(ctx, id, "alice", 0, "QmProof"))
	require.NoError(f.engine.CastValidationVote(ctx, id, 0, "val1"))
	require.NoError(f.engine.CastValidationVote(ctx, id, 0, "val2"))

	f.book.Block("alice")
	err := f.engine.CastValidationVote(ctx, id, 0, "val3")
	require.ErrorIs(err, errs.ErrTransferFailure)
	require.ErrorIs(err, payout.ErrRecipientRejected)

	p, err := f.engine.Project(id)
	require.NoError(err)
	m := p.Milestones[0]
	require.Equal(models.MilestoneSubmitted, m.Status)
	require.Equal(2, m.CurrentValidations)
	require.False(m.HasVoted("val3"))
	require.True(p.TotalReleased.IsZero())
	require.Equal(uint64(10), f.score(t, "val3"))
	require.True(f.balance(t, "platform").IsZero())

	f.book.Unblock("alice")
	require.NoError(f.engine.CastValidationVote(ctx, id, 0, "val3"))
	require.True(f.balance(t, "alice").Eq(uint256.MustFromDecimal("39600000000000000000")))
}

func TestRelease_FeeTruncatesAndSinkFailureSurfaces(t *testing.T) {
	require := require.New(t)

	var batches [][]payout.Transfer
	fail := false
	sink := payout.SinkFunc(func(_ context.Context, batch []payout.Transfer) error {
		if fail {
			return errors.New("ledger offline")
		}
		batches = append(batches, batch)
		return nil
	})

	f := newFixture(t, func(p *Params) {
		p.MinFundingGoal = uint256.NewInt(1)
		p.MinValidations = 1
	})
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(err)
	engine := NewEngine(f.store, f.ledger, sink, m, f.engine.Params(), WithClock(f.clock.Now))
	ctx := context.Background()
	f.grant(t, "val1")

	id, err := engine.CreateProject(ctx, "alice", "h", uint256.NewInt(50), 10, []string{"a", "b"}, []uint64{40, 60})
	require.NoError(err)
	require.NoError(engine.Donate(ctx, id, "donor1", uint256.NewInt(50)))

	require.NoError(engine.SubmitMilestoneProof(ctx, id, "alice", 0, "p0"))
	require.NoError(engine.CastValidationVote(ctx, id, 0, "val1"))
	require.Len(batches, 1)
	require.Len(batches[0], 1, "a zero fee leg is skipped")
	require.Equal("alice", batches[0][0].To)
	require.Equal(uint64(20), batches[0][0].Amount.Uint64())

	require.NoError(engine.SubmitMilestoneProof(ctx, id, "alice", 1, "p1"))
	fail = true
	err = engine.CastValidationVote(ctx, id, 1, "val1")
	require.ErrorIs(err, errs.ErrTransferFailure)
	require.Equal(errs.KindTransferFailure, errs.KindOf(err))

	fail = false
	require.NoError(engine.CastValidationVote(ctx, id, 1, "val1"))
	p, err := engine.Project(id)
	require.NoError(err)
	require.Equal(models.ProjectCompleted, p.Status)
	require.True(p.TotalReleased.Eq(uint256.NewInt(50)))
	require.Len(batches, 2)

	require.ErrorIs(engine.Donate(ctx, id, "donor1", uint256.NewInt(1)), errs.ErrProjectInactive)
	require.ErrorIs(engine.CancelProject(ctx, id, "alice", "late"), errs.ErrProjectInactive)
}

func TestReleasesNeverExceedFunding(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, func(p *Params) {
		p.MinFundingGoal = uint256.NewInt(1)
		p.MinValidations = 1
	})
	ctx := context.Background()
	f.grant(t, "val1")

	pcts := []uint64{33, 33, 34}
	id, err := f.engine.CreateProject(ctx, "alice", "h", uint256.NewInt(101), 10, []string{"a", "b", "c"}, pcts)
	require.NoError(err)
	require.NoError(f.engine.Donate(ctx, id, "d", uint256.NewInt(101)))

	for i := range pcts {
		require.NoError(f.engine.SubmitMilestoneProof(ctx, id, "alice", i, fmt.Sprintf("p%d", i)))
		require.NoError(f.engine.CastValidationVote(ctx, id, i, "val1"))
	}

	p, err := f.engine.Project(id)
	require.NoError(err)
	require.Equal(models.ProjectCompleted, p.Status)
	sum := new(uint256.Int)
	for _, m := range p.Milestones {
		sum.Add(sum, m.ReleasedAmount)
	}
	require.True(sum.Eq(p.TotalReleased))
	require.False(p.TotalReleased.Gt(p.TotalFunded))
	require.Equal(uint64(100), p.TotalReleased.Uint64())
}

func TestCastValidationVote_ConcurrentQuorumReleasesOnce(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.createFunded(t)

	validators := []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8"}
	f.grant(t, validators...)
	require.NoError(f.engine.SubmitMilestoneProof(ctx, id, "alice", 0, "QmProof"))

	var ok, notSubmitted int32
	var wg sync.WaitGroup
	for _, v := range validators {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			err := f.engine.CastValidationVote(ctx, id, 0, v)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, errs.ErrNotSubmitted):
				atomic.AddInt32(&notSubmitted, 1)
			default:
				t.Errorf("unexpected error for %s: %v", v, err)
			}
		}(v)
	}
	wg.Wait()

	require.Equal(int32(3), ok)
	require.Equal(int32(5), notSubmitted)

	p, err := f.engine.Project(id)
	require.NoError(err)
	require.True(p.TotalReleased.Eq(tokens(40)))
	require.Equal(3, p.Milestones[0].CurrentValidations)
	require.True(f.balance(t, "alice").Eq(uint256.MustFromDecimal("39600000000000000000")))
}

func TestExpireMilestone(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, func(p *Params) { p.ValidationWindow = 48 * time.Hour })
	ctx := context.Background()
	id := f.createFunded(t)
	f.grant(t, "val1")

	require.ErrorIs(f.engine.ExpireMilestone(ctx, 99, 0), errs.ErrProjectNotFound)
	require.ErrorIs(f.engine.ExpireMilestone(ctx, id, 9), errs.ErrInvalidMilestone)
	require.ErrorIs(f.engine.ExpireMilestone(ctx, id, 0), errs.ErrNotSubmitted)

	require.NoError(f.engine.SubmitMilestoneProof(ctx, id, "alice", 0, "QmProof"))
	require.NoError(f.engine.CastValidationVote(ctx, id, 0, "val1"))

	f.clock.Advance(47 * time.Hour)
	require.ErrorIs(f.engine.ExpireMilestone(ctx, id, 0), errs.ErrValidationWindowOpen)
	refs, err := f.engine.ExpiredSubmissions(f.clock.Now())
	require.NoError(err)
	require.Empty(refs)

	f.clock.Advance(time.Hour)
	refs, err = f.engine.ExpiredSubmissions(f.clock.Now())
	require.NoError(err)
	require.Equal([]SubmissionRef{{ProjectID: id, MilestoneID: 0}}, refs)

	require.NoError(f.engine.ExpireMilestone(ctx, id, 0))
	p, err := f.engine.Project(id)
	require.NoError(err)
	require.Equal(models.MilestoneRejected, p.Milestones[0].Status)
	require.NotNil(p.Milestones[0].RejectedAt)
	require.True(p.TotalReleased.IsZero())

	require.ErrorIs(f.engine.ExpireMilestone(ctx, id, 0), errs.ErrNotSubmitted)
	require.ErrorIs(f.engine.CastValidationVote(ctx, id, 0, "val1"), errs.ErrNotSubmitted)
	require.ErrorIs(f.engine.SubmitMilestoneProof(ctx, id, "alice", 0, "again"), errs.ErrAlreadySubmitted)
}
