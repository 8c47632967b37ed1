package reputation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"milestone-escrow/db"
	"milestone-escrow/errs"
	"milestone-escrow/events"
	"milestone-escrow/models"
	"milestone-escrow/repository"
)

func TestLedger_GrantAndScore(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	ldb, err := db.NewMemLevelDB()
	require.NoError(err)
	store := repository.NewLevelDBStore(ldb)
	defer store.Close()

	hub := events.NewHub(4)
	feed, cancel := hub.Subscribe()
	defer cancel()

	l := NewLedger(store, hub)

	score, err := l.Score(ctx, "val1")
	require.NoError(err)
	require.Zero(score)

	score, err = l.Grant(ctx, "val1", 10)
	require.NoError(err)
	require.Equal(uint64(10), score)

	score, err = l.Grant(ctx, "val1", 5)
	require.NoError(err)
	require.Equal(uint64(15), score)

	score, err = l.Score(ctx, "val1")
	require.NoError(err)
	require.Equal(uint64(15), score)

	evt := <-feed
	require.Equal(models.EventReputationGranted, evt.Kind)
	require.Equal("val1", evt.Identity)
	require.Equal("10", evt.Detail)
	require.Equal(uint64(1), evt.Seq)

	_, err = l.Grant(ctx, "", 10)
	require.ErrorIs(err, errs.ErrInvalidParameters)
	_, err = l.Grant(ctx, "val1", 0)
	require.ErrorIs(err, errs.ErrInvalidParameters)
}
