// Package storetest provides a conformance suite for cryptotran.Store
// implementations.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cryptotran/client-go"
)

// fakeSignature stands in for a real signature; stores never verify it.
const fakeSignature = "c2lnbmF0dXJl"

// NewTransaction returns a signed but unchained transaction.
func NewTransaction(id string, amount string, ts int64) *cryptotran.Transaction {
	tx := cryptotran.NewTransaction("alice", "bob", decimal.RequireFromString(amount),
		cryptotran.WithID(id), cryptotran.WithTimestamp(ts))
	sig := fakeSignature
	tx.Signature = &sig
	return tx
}

// Linked returns tx chained onto the current tail of store.
func Linked(t testing.TB, store cryptotran.Store, tx *cryptotran.Transaction) *cryptotran.Transaction {
	t.Helper()
	require.NoError(t, cryptotran.Link(context.Background(), tx, store))
	return tx
}

// TestStoreSuite runs the store conformance tests. New must return an
// empty store; the suite closes it.
func TestStoreSuite(t *testing.T, New func() cryptotran.Store) {
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		store := New()
		defer store.Close()

		tail, err := store.TailHash(ctx)
		require.NoError(t, err)
		assert.Equal(t, cryptotran.SentinelHash, tail)

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		all, err := store.All(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		_, err = store.Get(ctx, "missing")
		assert.ErrorIs(t, err, cryptotran.ErrTransactionNotFound)
	})

	t.Run("AppendChain", func(t *testing.T) {
		store := New()
		defer store.Close()

		var want []*cryptotran.Transaction
		for i, amount := range []string{"100", "0.1", "12345.6789"} {
			tx := Linked(t, store, NewTransaction(fmt.Sprintf("tx-%d", i), amount, 1700000000))
			require.NoError(t, store.Append(ctx, tx))

			tail, err := store.TailHash(ctx)
			require.NoError(t, err)
			assert.Equal(t, *tx.CurrentHash, tail)
			want = append(want, tx)
		}

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		all, err := store.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i := range want {
			assertSameTransaction(t, want[i], all[i])
		}
		assert.Equal(t, cryptotran.SentinelHash, *all[0].PrevHash)
		assert.Equal(t, *all[0].CurrentHash, *all[1].PrevHash)
		assert.Equal(t, *all[1].CurrentHash, *all[2].PrevHash)

		got, err := store.Get(ctx, "tx-1")
		require.NoError(t, err)
		assertSameTransaction(t, want[1], got)

		assert.NoError(t, cryptotran.VerifyChain(ctx, all))
	})

	t.Run("RejectIncomplete", func(t *testing.T) {
		store := New()
		defer store.Close()

		tx := NewTransaction("unlinked", "1", 1)
		err := store.Append(ctx, tx)
		assert.ErrorIs(t, err, cryptotran.ErrIncompleteTransaction)

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("RejectDuplicate", func(t *testing.T) {
		store := New()
		defer store.Close()

		tx := Linked(t, store, NewTransaction("dup", "1", 1))
		require.NoError(t, store.Append(ctx, tx))

		again := Linked(t, store, NewTransaction("dup", "2", 2))
		assert.ErrorIs(t, store.Append(ctx, again), cryptotran.ErrDuplicateTransaction)
	})

	t.Run("RejectStaleTail", func(t *testing.T) {
		store := New()
		defer store.Close()

		first := Linked(t, store, NewTransaction("first", "1", 1))
		stale := Linked(t, store, NewTransaction("stale", "2", 2))
		require.NoError(t, store.Append(ctx, first))

		assert.ErrorIs(t, store.Append(ctx, stale), cryptotran.ErrChainConflict)

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("InsertionOrderWithEqualTimestamps", func(t *testing.T) {
		store := New()
		defer store.Close()

		ids := []string{"c", "a", "b"}
		for _, id := range ids {
			require.NoError(t, store.Append(ctx, Linked(t, store, NewTransaction(id, "5", 42))))
		}

		all, err := store.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, len(ids))
		for i, id := range ids {
			assert.Equal(t, id, all[i].ID)
		}
		assert.NoError(t, cryptotran.VerifyChain(ctx, all))
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		store := New()
		defer store.Close()

		tx := Linked(t, store, NewTransaction("copy", "7", 7))
		require.NoError(t, store.Append(ctx, tx))

		got, err := store.Get(ctx, "copy")
		require.NoError(t, err)
		got.Amount = decimal.NewFromInt(1000)
		*got.CurrentHash = cryptotran.SentinelHash

		again, err := store.Get(ctx, "copy")
		require.NoError(t, err)
		assertSameTransaction(t, tx, again)
	})

	t.Run("ConcurrentCommits", func(t *testing.T) {
		store := New()
		defer store.Close()
		ledger := cryptotran.NewLedger(store)

		const workers = 8
		var g errgroup.Group
		for i := 0; i < workers; i++ {
			tx := NewTransaction(fmt.Sprintf("worker-%d", i), "1.5", 1)
			g.Go(func() error {
				return ledger.Commit(ctx, tx)
			})
		}
		require.NoError(t, g.Wait())

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, workers, n)
		assert.NoError(t, ledger.Verify(ctx))
	})
}

func assertSameTransaction(t *testing.T, want, got *cryptotran.Transaction) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.SenderID, got.SenderID)
	assert.Equal(t, want.RecipientID, got.RecipientID)
	assert.True(t, want.Amount.Equal(got.Amount), "amount %s != %s", want.Amount, got.Amount)
	assert.Equal(t, want.Timestamp, got.Timestamp)
	assert.Equal(t, want.Signature, got.Signature)
	assert.Equal(t, want.PrevHash, got.PrevHash)
	assert.Equal(t, want.CurrentHash, got.CurrentHash)
}
