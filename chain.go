package cryptotran

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// SentinelHash is the previous hash of the first transaction in a chain.
const SentinelHash = "0000000000000000000000000000000000000000000000000000000000000000"

// TailReader yields the current hash of the most recently stored
// transaction, or SentinelHash when nothing is stored.
type TailReader interface {
	TailHash(ctx context.Context) (string, error)
}

// TailFunc adapts a function to TailReader.
type TailFunc func(ctx context.Context) (string, error)

// TailHash calls f(ctx).
func (f TailFunc) TailHash(ctx context.Context) (string, error) {
	return f(ctx)
}

// KeyResolver looks up the public key of a principal.
type KeyResolver interface {
	PublicKey(ctx context.Context, principal string) (*rsa.PublicKey, error)
}

// PreviousHash returns the hash the next transaction must link to. An
// empty tail is treated as SentinelHash.
func PreviousHash(ctx context.Context, tail TailReader) (string, error) {
	if tail == nil {
		return "", errors.New("nil tail reader")
	}
	h, err := tail.TailHash(ctx)
	if err != nil {
		return "", fmt.Errorf("read ledger tail: %w", err)
	}
	if h == "" {
		return SentinelHash, nil
	}
	if !IsHash(h) {
		return "", fmt.Errorf("%w: ledger tail %q is not a SHA-256 hex digest", ErrChainBroken, h)
	}
	return h, nil
}

// ComputeCurrentHash hashes tx with DefaultCodec. See Codec.ComputeCurrentHash.
func ComputeCurrentHash(tx *Transaction) (string, error) {
	return DefaultCodec.ComputeCurrentHash(tx)
}

// ComputeCurrentHash returns the lowercase hex SHA-256 of the link encoding
// of tx. PrevHash must be set and CurrentHash must not be.
func (c Codec) ComputeCurrentHash(tx *Transaction) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("%w: nil transaction", ErrInvalidTransaction)
	}
	if tx.PrevHash == nil {
		return "", &SequenceError{Op: "compute current hash", Err: ErrPreviousHashMissing}
	}
	if tx.CurrentHash != nil {
		return "", &SequenceError{Op: "compute current hash", Err: ErrCurrentHashAlreadySet}
	}
	return c.linkHash(tx)
}

func (c Codec) linkHash(tx *Transaction) (string, error) {
	data, err := c.LinkBytes(tx)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Link links tx with DefaultCodec. See Codec.Link.
func Link(ctx context.Context, tx *Transaction, tail TailReader) error {
	return DefaultCodec.Link(ctx, tx, tail)
}

// Link sets tx.PrevHash from tail and then tx.CurrentHash. tx must not be
// chained yet. On error tx is left unchanged.
//
// Link reads the tail once and does not lock it: callers linking several
// transactions against the same ledger must serialize link and append.
func (c Codec) Link(ctx context.Context, tx *Transaction, tail TailReader) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrInvalidTransaction)
	}
	if tx.PrevHash != nil || tx.CurrentHash != nil {
		return &SequenceError{Op: "link", Err: ErrAlreadyChained}
	}

	prev, err := PreviousHash(ctx, tail)
	if err != nil {
		return err
	}

	linked := tx.Clone()
	linked.PrevHash = &prev
	current, err := c.ComputeCurrentHash(linked)
	if err != nil {
		return err
	}

	tx.PrevHash = &prev
	tx.CurrentHash = &current
	return nil
}

type verifyConfig struct {
	resolver KeyResolver
	anchor   string
}

// VerifyOption configures VerifyChain.
type VerifyOption func(*verifyConfig)

// VerifySignatures also checks every signature against the sender's key
// as returned by resolver.
func VerifySignatures(resolver KeyResolver) VerifyOption {
	return func(c *verifyConfig) {
		c.resolver = resolver
	}
}

// VerifyFrom sets the previous hash expected of the first transaction.
// Default: SentinelHash. Use it to check a suffix of a longer chain.
func VerifyFrom(anchor string) VerifyOption {
	return func(c *verifyConfig) {
		c.anchor = anchor
	}
}

// VerifyChain checks txs with DefaultCodec. See Codec.VerifyChain.
func VerifyChain(ctx context.Context, txs []*Transaction, opts ...VerifyOption) error {
	return DefaultCodec.VerifyChain(ctx, txs, opts...)
}

// VerifyChain checks that txs form an intact hash chain in the given
// order: every entry is complete, links to its predecessor's current hash
// (the first to SentinelHash) and carries the hash of its own content.
// It returns a *ChainError for the first entry that fails.
func (c Codec) VerifyChain(ctx context.Context, txs []*Transaction, opts ...VerifyOption) error {
	cfg := &verifyConfig{anchor: SentinelHash}
	for _, opt := range opts {
		opt(cfg)
	}

	expected := cfg.anchor
	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tx == nil {
			return &ChainError{Index: i, Reason: "nil transaction", Err: ErrInvalidTransaction}
		}
		if !tx.IsComplete() {
			return &ChainError{Index: i, ID: tx.ID, Reason: "transaction incomplete", Err: ErrIncompleteTransaction}
		}
		if *tx.PrevHash != expected {
			return &ChainError{Index: i, ID: tx.ID, Reason: "previous hash does not match predecessor"}
		}

		unhashed := tx.Clone()
		unhashed.CurrentHash = nil
		sum, err := c.linkHash(unhashed)
		if err != nil {
			return &ChainError{Index: i, ID: tx.ID, Reason: "transaction cannot be encoded", Err: err}
		}
		if sum != *tx.CurrentHash {
			return &ChainError{Index: i, ID: tx.ID, Reason: "current hash does not match content"}
		}

		if cfg.resolver != nil {
			pub, err := cfg.resolver.PublicKey(ctx, tx.SenderID)
			if err != nil {
				return &ChainError{Index: i, ID: tx.ID, Reason: "sender key unavailable", Err: err}
			}
			ok, err := c.Verify(tx, pub)
			if err != nil {
				return &ChainError{Index: i, ID: tx.ID, Reason: "signature malformed", Err: err}
			}
			if !ok {
				return &ChainError{Index: i, ID: tx.ID, Reason: "signature invalid", Err: ErrSignatureInvalid}
			}
		}

		expected = *tx.CurrentHash
	}
	return nil
}
