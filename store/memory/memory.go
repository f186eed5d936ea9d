// Package memory provides an in-memory ledger store.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cryptotran/client-go"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("memory store closed")

// Store keeps transactions in a slice in append order. It is safe for
// concurrent use.
type Store struct {
	mu     sync.RWMutex
	txs    []*cryptotran.Transaction
	byID   map[string]int
	closed bool
}

var _ cryptotran.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		txs:  make([]*cryptotran.Transaction, 0),
		byID: make(map[string]int),
	}
}

// TailHash returns the current hash of the last transaction, or
// cryptotran.SentinelHash when the store is empty.
func (s *Store) TailHash(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}
	return s.tailUnsafe()
}

// tailUnsafe returns the tail hash without locking - must be called with lock held
func (s *Store) tailUnsafe() (string, error) {
	if len(s.txs) == 0 {
		return cryptotran.SentinelHash, nil
	}
	last := s.txs[len(s.txs)-1]
	if last.CurrentHash == nil {
		return "", fmt.Errorf("tail transaction %s has no current hash", last.ID)
	}
	return *last.CurrentHash, nil
}

// Append stores a copy of tx if it extends the current tail.
func (s *Store) Append(ctx context.Context, tx *cryptotran.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tail, err := s.tailUnsafe()
	if err != nil {
		return err
	}
	var exists bool
	if tx != nil {
		_, exists = s.byID[tx.ID]
	}
	if err := cryptotran.CheckAppend(tx, tail, exists); err != nil {
		return err
	}

	s.byID[tx.ID] = len(s.txs)
	s.txs = append(s.txs, tx.Clone())
	return nil
}

// Get returns a copy of the transaction with the given id.
func (s *Store) Get(ctx context.Context, id string) (*cryptotran.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cryptotran.ErrTransactionNotFound, id)
	}
	return s.txs[i].Clone(), nil
}

// All returns copies of every transaction in append order.
func (s *Store) All(ctx context.Context) ([]*cryptotran.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]*cryptotran.Transaction, len(s.txs))
	for i, tx := range s.txs {
		out[i] = tx.Clone()
	}
	return out, nil
}

// Len returns the number of stored transactions.
func (s *Store) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.txs), nil
}

// Mutate applies fn to the stored transaction with the given id, bypassing
// every append check. It exists to simulate tampering in tests and demos.
func (s *Store) Mutate(id string, fn func(*cryptotran.Transaction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", cryptotran.ErrTransactionNotFound, id)
	}
	fn(s.txs[i])
	return nil
}

// Close releases the store. Further operations return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
