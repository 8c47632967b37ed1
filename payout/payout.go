// Package payout moves released and refunded funds out of escrow.
package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/sasha-s/go-deadlock"
	"github.com/syndtr/goleveldb/leveldb"

	"milestone-escrow/db"
)

var (
	ErrInvalidTransfer   = errors.New("invalid transfer")
	ErrRecipientRejected = errors.New("recipient rejected transfer")
)

const balancePrefix = "balance:"

// Transfer is one leg of a payout batch
type Transfer struct {
	To     string
	Amount *uint256.Int
	Memo   string
}

// Sink applies a batch of transfers, all of them or none
type Sink interface {
	Transfer(ctx context.Context, batch []Transfer) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, batch []Transfer) error

func (f SinkFunc) Transfer(ctx context.Context, batch []Transfer) error {
	return f(ctx, batch)
}

// Book credits withdrawable balances in its own LevelDB
type Book struct {
	db      *db.LevelDB
	mutex   *deadlock.Mutex
	blocked map[string]struct{}
}

func NewBook(ldb *db.LevelDB, blocked []string) *Book {
	b := &Book{
		db:      ldb,
		mutex:   &deadlock.Mutex{},
		blocked: make(map[string]struct{}),
	}
	for _, id := range blocked {
		b.blocked[id] = struct{}{}
	}
	return b
}

// Block makes every later batch with a leg to identity fail
func (b *Book) Block(identity string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.blocked[identity] = struct{}{}
}

func (b *Book) Unblock(identity string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.blocked, identity)
}

func (b *Book) Transfer(ctx context.Context, batch []Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	// validate every leg before touching anything
	for i, t := range batch {
		if t.To == "" || t.Amount == nil || t.Amount.IsZero() {
			return fmt.Errorf("leg %d: %w", i, ErrInvalidTransfer)
		}
		if _, ok := b.blocked[t.To]; ok {
			return fmt.Errorf("leg %d to %q: %w", i, t.To, ErrRecipientRejected)
		}
	}

	pending := make(map[string]*uint256.Int)
	var order []string
	for i, t := range batch {
		cur, ok := pending[t.To]
		if !ok {
			bal, err := b.balance(t.To)
			if err != nil {
				return err
			}
			cur = bal
			order = append(order, t.To)
		}
		next, overflow := new(uint256.Int).AddOverflow(cur, t.Amount)
		if overflow {
			return fmt.Errorf("leg %d to %q overflows balance: %w", i, t.To, ErrInvalidTransfer)
		}
		pending[t.To] = next
	}

	wb := new(leveldb.Batch)
	for _, to := range order {
		wb.Put([]byte(balancePrefix+to), []byte(pending[to].Dec()))
	}
	if err := b.db.Write(wb); err != nil {
		return fmt.Errorf("write balances: %w", err)
	}
	return nil
}

// Balance returns everything credited to identity so far
func (b *Book) Balance(identity string) (*uint256.Int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.balance(identity)
}

func (b *Book) balance(identity string) (*uint256.Int, error) {
	data, err := b.db.Get([]byte(balancePrefix + identity))
	if errors.Is(err, db.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load balance %q: %w", identity, err)
	}
	bal, err := uint256.FromDecimal(string(data))
	if err != nil {
		return nil, fmt.Errorf("decode balance %q: %w", identity, err)
	}
	return bal, nil
}
