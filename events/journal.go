package events

import (
	"milestone-escrow/models"
	"milestone-escrow/repository"
)

// Journal appends events to an open transaction and keeps them for
// publishing once the transaction commits
type Journal struct {
	tx      repository.Tx
	pending []*models.Event
}

func (j *Journal) Emit(e *models.Event) error {
	if err := j.tx.AppendEvent(e); err != nil {
		return err
	}
	j.pending = append(j.pending, e)
	return nil
}

// Update runs fn in one store transaction and publishes whatever fn emitted
// after a successful commit. Nothing is published when fn or the commit fails.
func Update(store repository.LedgerStore, pub Publisher, fn func(tx repository.Tx, j *Journal) error) error {
	var j *Journal
	err := store.Update(func(tx repository.Tx) error {
		j = &Journal{tx: tx}
		return fn(tx, j)
	})
	if err != nil {
		return err
	}
	if pub != nil && len(j.pending) > 0 {
		pub.Publish(j.pending...)
	}
	return nil
}
