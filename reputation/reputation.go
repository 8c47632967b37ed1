package reputation

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"milestone-escrow/errs"
	"milestone-escrow/events"
	"milestone-escrow/logger"
	"milestone-escrow/models"
	"milestone-escrow/repository"
)

// Gate answers whether an identity is reputable enough to vote
type Gate interface {
	Score(ctx context.Context, identity string) (uint64, error)
}

// Ledger is the Gate backed by the ledger store. Engines add rewards through
// repository.Tx directly so they commit with the vote that earned them.
type Ledger struct {
	store     repository.LedgerStore
	publisher events.Publisher
	now       func() time.Time
}

func NewLedger(store repository.LedgerStore, publisher events.Publisher) *Ledger {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Ledger{store: store, publisher: publisher, now: time.Now}
}

func (l *Ledger) Score(_ context.Context, identity string) (uint64, error) {
	var score uint64
	err := l.store.View(func(r repository.Reader) error {
		var err error
		score, err = r.Reputation(identity)
		return err
	})
	return score, err
}

// Grant seeds reputation out of band. Callers are expected to have checked
// that the requester is an administrator.
func (l *Ledger) Grant(_ context.Context, identity string, amount uint64) (uint64, error) {
	if identity == "" || amount == 0 {
		return 0, errs.ErrInvalidParameters
	}

	var score uint64
	err := events.Update(l.store, l.publisher, func(tx repository.Tx, j *events.Journal) error {
		var err error
		score, err = tx.AddReputation(identity, amount)
		if err != nil {
			return err
		}
		return j.Emit(&models.Event{
			Kind:     models.EventReputationGranted,
			Identity: identity,
			Detail:   strconv.FormatUint(amount, 10),
			At:       l.now().UTC(),
		})
	})
	if err != nil {
		return 0, err
	}
	logger.Logger.Info("Reputation granted", zap.String("identity", identity), zap.Uint64("amount", amount), zap.Uint64("score", score))
	return score, nil
}
