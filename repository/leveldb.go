package repository

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/holiman/uint256"
	jsoniter "github.com/json-iterator/go"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"milestone-escrow/db"
	"milestone-escrow/errs"
	"milestone-escrow/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultEventPage = 100

// kvReader is the read surface shared by leveldb snapshots and transactions
type kvReader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

// LevelDBStore implements LedgerStore using LevelDB as the storage backend
type LevelDBStore struct {
	db *db.LevelDB
}

// NewLevelDBStore creates and returns a new LevelDBStore instance
func NewLevelDBStore(ldb *db.LevelDB) *LevelDBStore {
	return &LevelDBStore{db: ldb}
}

// View runs fn against a consistent snapshot of committed state
func (s *LevelDBStore) View(fn func(r Reader) error) error {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer snap.Release()
	return fn(&reader{kv: snap})
}

// Update runs fn inside the single LevelDB write transaction. fn returning an
// error (or panicking) discards every write it made.
func (s *LevelDBStore) Update(fn func(tx Tx) error) error {
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("open transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tr.Discard()
		}
	}()

	if err := fn(&tx{reader: reader{kv: tr}, put: func(k, v []byte) error { return tr.Put(k, v, nil) }}); err != nil {
		return err
	}
	if err := tr.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Close closes the underlying LevelDB
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

type reader struct {
	kv kvReader
}

func (r *reader) getJSON(key []byte, v interface{}) (bool, error) {
	data, err := r.kv.Get(key, nil)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

func (r *reader) getUint(key []byte) (uint64, error) {
	data, err := r.kv.Get(key, nil)
	if errors.Is(err, db.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(data), 10, 64)
}

// GetProject retrieves a project by its ID
func (r *reader) GetProject(id uint64) (*models.Project, error) {
	var p models.Project
	ok, err := r.getJSON(projectKey(id), &p)
	if err != nil {
		return nil, fmt.Errorf("load project %d: %w", id, err)
	}
	if !ok {
		return nil, errs.Detail(errs.ErrProjectNotFound, "id %d", id)
	}
	normalizeProject(&p)
	return &p, nil
}

// ListProjects retrieves all projects in id order
func (r *reader) ListProjects() ([]*models.Project, error) {
	iter := r.kv.NewIterator(util.BytesPrefix([]byte(projectPrefix)), nil)
	defer iter.Release()

	var projects []*models.Project
	for iter.Next() {
		var p models.Project
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		normalizeProject(&p)
		projects = append(projects, &p)
	}
	return projects, iter.Error()
}

// ProjectsByOwner walks the owner index
func (r *reader) ProjectsByOwner(owner string) ([]*models.Project, error) {
	prefix := ownerIndexPrefix(owner)
	iter := r.kv.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var ids []uint64
	for iter.Next() {
		// identities may contain ':' so only exact-width suffixes belong to this owner
		if len(iter.Key()) != len(prefix)+20 {
			continue
		}
		id, err := strconv.ParseUint(string(iter.Value()), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode owner index %s: %w", iter.Key(), err)
		}
		ids = append(ids, id)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	projects := make([]*models.Project, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetProject(id)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// GetDispute retrieves a dispute by its ID
func (r *reader) GetDispute(id uint64) (*models.Dispute, error) {
	var d models.Dispute
	ok, err := r.getJSON(disputeKey(id), &d)
	if err != nil {
		return nil, fmt.Errorf("load dispute %d: %w", id, err)
	}
	if !ok {
		return nil, errs.Detail(errs.ErrDisputeNotFound, "id %d", id)
	}
	if d.Votes == nil {
		d.Votes = make(map[string]models.Choice)
	}
	return &d, nil
}

// ListDisputes retrieves all disputes in id order
func (r *reader) ListDisputes() ([]*models.Dispute, error) {
	iter := r.kv.NewIterator(util.BytesPrefix([]byte(disputePrefix)), nil)
	defer iter.Release()

	var disputes []*models.Dispute
	for iter.Next() {
		var d models.Dispute
		if err := json.Unmarshal(iter.Value(), &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		if d.Votes == nil {
			d.Votes = make(map[string]models.Choice)
		}
		disputes = append(disputes, &d)
	}
	return disputes, iter.Error()
}

// Reputation returns the stored score, zero for unknown identities
func (r *reader) Reputation(identity string) (uint64, error) {
	score, err := r.getUint(reputationKey(identity))
	if err != nil {
		return 0, fmt.Errorf("load reputation %q: %w", identity, err)
	}
	return score, nil
}

// Events returns up to limit events with Seq > after, oldest first
func (r *reader) Events(after uint64, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = defaultEventPage
	}
	rng := &util.Range{
		Start: eventKey(after + 1),
		Limit: util.BytesPrefix([]byte(eventPrefix)).Limit,
	}
	iter := r.kv.NewIterator(rng, nil)
	defer iter.Release()

	events := make([]*models.Event, 0, limit)
	for len(events) < limit && iter.Next() {
		var e models.Event
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		events = append(events, &e)
	}
	return events, iter.Error()
}

type tx struct {
	reader
	put func(key, value []byte) error
}

func (t *tx) putJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.put(key, data)
}

func (t *tx) nextSeq(key string) (uint64, error) {
	cur, err := t.getUint([]byte(key))
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", key, err)
	}
	next := cur + 1
	if err := t.put([]byte(key), []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

func (t *tx) NextProjectID() (uint64, error) {
	return t.nextSeq(projectSeqKey)
}

func (t *tx) NextDisputeID() (uint64, error) {
	return t.nextSeq(disputeSeqKey)
}

// PutProject stores a project and keeps the owner index current
func (t *tx) PutProject(p *models.Project) error {
	if err := t.putJSON(projectKey(p.ID), p); err != nil {
		return fmt.Errorf("store project %d: %w", p.ID, err)
	}
	return t.put(ownerKey(p.Owner, p.ID), []byte(strconv.FormatUint(p.ID, 10)))
}

func (t *tx) PutDispute(d *models.Dispute) error {
	if err := t.putJSON(disputeKey(d.ID), d); err != nil {
		return fmt.Errorf("store dispute %d: %w", d.ID, err)
	}
	return nil
}

// AddReputation increments a score, saturating at MaxUint64, and returns the new value
func (t *tx) AddReputation(identity string, delta uint64) (uint64, error) {
	cur, err := t.Reputation(identity)
	if err != nil {
		return 0, err
	}
	next := cur + delta
	if next < cur {
		next = math.MaxUint64
	}
	if err := t.put(reputationKey(identity), []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

// AppendEvent assigns the next sequence number to e and stores it
func (t *tx) AppendEvent(e *models.Event) error {
	seq, err := t.nextSeq(eventSeqKey)
	if err != nil {
		return err
	}
	e.Seq = seq
	if err := t.putJSON(eventKey(seq), e); err != nil {
		return fmt.Errorf("store event %d: %w", seq, err)
	}
	return nil
}

func normalizeProject(p *models.Project) {
	if p.Donations == nil {
		p.Donations = make(map[string]*uint256.Int)
	}
	for _, m := range p.Milestones {
		if m.Validators == nil {
			m.Validators = make(map[string]struct{})
		}
	}
}
