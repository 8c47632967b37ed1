package repository

import (
	"fmt"

	"milestone-escrow/models"
)

// Reader is the read side of the ledger. GetProject and GetDispute return
// errs.ErrProjectNotFound / errs.ErrDisputeNotFound for unknown ids.
type Reader interface {
	GetProject(id uint64) (*models.Project, error)
	ListProjects() ([]*models.Project, error)
	ProjectsByOwner(owner string) ([]*models.Project, error)
	GetDispute(id uint64) (*models.Dispute, error)
	ListDisputes() ([]*models.Dispute, error)
	Reputation(identity string) (uint64, error)
	Events(after uint64, limit int) ([]*models.Event, error)
}

// Tx is one atomic read-write unit against the ledger. Nothing written through
// a Tx is visible to other readers until the enclosing Update returns nil.
type Tx interface {
	Reader
	NextProjectID() (uint64, error)
	NextDisputeID() (uint64, error)
	PutProject(p *models.Project) error
	PutDispute(d *models.Dispute) error
	AddReputation(identity string, delta uint64) (uint64, error)
	AppendEvent(e *models.Event) error
}

// LedgerStore abstracts the storage layer from the engines. It owns every
// entity; engines hold ids and borrow a Tx for the length of one call.
type LedgerStore interface {
	View(fn func(r Reader) error) error
	Update(fn func(tx Tx) error) error
	Close() error
}

const (
	projectPrefix    = "project:"
	disputePrefix    = "dispute:"
	ownerPrefix      = "owner:"
	reputationPrefix = "reputation:"
	eventPrefix      = "event:"

	projectSeqKey = "seq:project"
	disputeSeqKey = "seq:dispute"
	eventSeqKey   = "seq:event"
)

// ids are zero padded so lexical key order matches numeric order
func projectKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", projectPrefix, id))
}

func disputeKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", disputePrefix, id))
}

func ownerIndexPrefix(owner string) []byte {
	return []byte(fmt.Sprintf("%s%s:", ownerPrefix, owner))
}

func ownerKey(owner string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", ownerPrefix, owner, id))
}

func reputationKey(identity string) []byte {
	return []byte(reputationPrefix + identity)
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", eventPrefix, seq))
}
