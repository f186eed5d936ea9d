package cryptotran

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"
	"testing"
)

var (
	keysOnce sync.Once
	keys     struct {
		alice, bob, mallory *rsa.PrivateKey
	}
	keysErr error
)

// testKeys returns three RSA-2048 keys shared by every test in the package.
func testKeys(tb testing.TB) (alice, bob, mallory *rsa.PrivateKey) {
	tb.Helper()
	keysOnce.Do(func() {
		for _, dst := range []**rsa.PrivateKey{&keys.alice, &keys.bob, &keys.mallory} {
			priv, _, err := GenerateKeyPair()
			if err != nil {
				keysErr = err
				return
			}
			*dst = priv
		}
	})
	if keysErr != nil {
		tb.Fatalf("GenerateKeyPair() error = %v", keysErr)
	}
	return keys.alice, keys.bob, keys.mallory
}

// fixedTransaction returns the transaction used across the scenario tests.
func fixedTransaction() *Transaction {
	return NewTransaction("Alice", "Bob", MustAmount("100.0"),
		WithID("3f1c2d9e-8b7a-4c6d-9e0f-1a2b3c4d5e6f"),
		WithTimestamp(1700000000),
	)
}

// staticTail is a TailReader with a fixed answer.
type staticTail struct {
	hash string
	err  error
}

func (s staticTail) TailHash(context.Context) (string, error) {
	return s.hash, s.err
}

// keyMap resolves public keys from a map.
type keyMap map[string]*rsa.PublicKey

func (m keyMap) PublicKey(_ context.Context, principal string) (*rsa.PublicKey, error) {
	pub, ok := m[principal]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, principal)
	}
	return pub, nil
}

// signedLinked signs tx with priv and links it after prev.
func signedLinked(t *testing.T, tx *Transaction, priv *rsa.PrivateKey, prev string) *Transaction {
	t.Helper()
	if err := Sign(tx, priv); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if err := Link(context.Background(), tx, staticTail{hash: prev}); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	return tx
}
