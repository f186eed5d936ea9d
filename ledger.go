package cryptotran

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"sync"
)

// Store persists completed transactions in chain order.
//
// Append must be a compare-and-append: it stores tx only if tx is complete
// (ErrIncompleteTransaction), its id is new (ErrDuplicateTransaction) and
// tx.PrevHash equals the current TailHash (ErrChainConflict), all checked
// atomically with the write.
type Store interface {
	// TailHash returns the current hash of the last appended transaction,
	// or SentinelHash when the store is empty.
	TailHash(ctx context.Context) (string, error)
	Append(ctx context.Context, tx *Transaction) error
	// Get returns ErrTransactionNotFound for an unknown id.
	Get(ctx context.Context, id string) (*Transaction, error)
	// All returns every transaction in append order.
	All(ctx context.Context) ([]*Transaction, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// CheckAppend applies the compare-and-append preconditions shared by Store
// implementations. tail is the store's current tail hash and exists reports
// whether tx.ID is already stored.
func CheckAppend(tx *Transaction, tail string, exists bool) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrInvalidTransaction)
	}
	if !tx.IsComplete() {
		return &SequenceError{Op: "append", Err: ErrIncompleteTransaction}
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.ID)
	}
	if *tx.PrevHash != tail {
		return fmt.Errorf("%w: prev_hash %s, tail %s", ErrChainConflict, *tx.PrevHash, tail)
	}
	return nil
}

// Ledger chains verified transactions onto a Store.
//
// Commit holds a lock across the tail lookup and the append, so a single
// Ledger is safe for concurrent use. Several Ledgers (or processes) sharing
// one store rely on the store's compare-and-append and receive
// ErrChainConflict when they race; the Ledger does not retry.
type Ledger struct {
	store    Store
	codec    Codec
	resolver KeyResolver
	logger   *slog.Logger

	mu sync.Mutex
}

// NewLedger returns a Ledger backed by store.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	cfg := newLedgerConfig(opts)
	return &Ledger{
		store:    store,
		codec:    cfg.codec,
		resolver: cfg.resolver,
		logger:   cfg.logger,
	}
}

// Codec returns the codec the ledger hashes and verifies with.
func (l *Ledger) Codec() Codec {
	return l.codec
}

// Commit links a signed transaction to the ledger tail and appends it.
// tx must be signed and not yet chained. On error tx is left unchanged.
func (l *Ledger) Commit(ctx context.Context, tx *Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrInvalidTransaction)
	}
	if err := tx.Validate(); err != nil {
		return err
	}
	if !tx.IsSigned() {
		return &SequenceError{Op: "commit", Err: ErrIncompleteTransaction}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	linked := tx.Clone()
	if err := l.codec.Link(ctx, linked, l.store); err != nil {
		return err
	}
	if !linked.IsComplete() {
		return &SequenceError{Op: "commit", Err: ErrIncompleteTransaction}
	}

	if err := l.store.Append(ctx, linked); err != nil {
		l.logger.Debug("append rejected", "id", tx.ID, "error", err)
		return err
	}

	tx.PrevHash = linked.PrevHash
	tx.CurrentHash = linked.CurrentHash
	l.logger.Debug("transaction committed",
		"id", tx.ID,
		"prev_hash", *tx.PrevHash,
		"current_hash", *tx.CurrentHash,
	)
	return nil
}

// Receive opens an RSA envelope, verifies the sender's signature and commits
// the transaction.
func (l *Ledger) Receive(ctx context.Context, env *Envelope, recipientPriv *rsa.PrivateKey, senderPub *rsa.PublicKey) (*Transaction, error) {
	tx, err := l.codec.Open(env, recipientPriv, senderPub)
	if err != nil {
		return nil, err
	}
	if err := l.Commit(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// ReceiveWith is Receive with an explicit key unwrapper.
func (l *Ledger) ReceiveWith(ctx context.Context, env *Envelope, unwrapper KeyUnwrapper, senderPub *rsa.PublicKey) (*Transaction, error) {
	tx, err := l.codec.OpenWith(env, unwrapper, senderPub)
	if err != nil {
		return nil, err
	}
	if err := l.Commit(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Verify runs the full-chain integrity check over every stored transaction.
// Signatures are re-checked when the ledger has a KeyResolver.
func (l *Ledger) Verify(ctx context.Context) error {
	txs, err := l.store.All(ctx)
	if err != nil {
		return err
	}

	var opts []VerifyOption
	if l.resolver != nil {
		opts = append(opts, VerifySignatures(l.resolver))
	}

	if err := l.codec.VerifyChain(ctx, txs, opts...); err != nil {
		l.logger.Warn("chain verification failed", "error", err)
		return err
	}
	l.logger.Debug("chain verified", "length", len(txs), "signatures", l.resolver != nil)
	return nil
}

// Transactions returns every stored transaction in chain order.
func (l *Ledger) Transactions(ctx context.Context) ([]*Transaction, error) {
	return l.store.All(ctx)
}

// Get returns the stored transaction with the given id.
func (l *Ledger) Get(ctx context.Context, id string) (*Transaction, error) {
	return l.store.Get(ctx, id)
}

// Len returns the number of stored transactions.
func (l *Ledger) Len(ctx context.Context) (int, error) {
	return l.store.Len(ctx)
}

// TailHash returns the hash the next committed transaction will link to.
func (l *Ledger) TailHash(ctx context.Context) (string, error) {
	return PreviousHash(ctx, l.store)
}

// Close closes the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}
