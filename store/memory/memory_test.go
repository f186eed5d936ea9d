package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptotran/client-go"
	"github.com/cryptotran/client-go/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.TestStoreSuite(t, func() cryptotran.Store {
		return New()
	})
}

func TestMutateBreaksChain(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, id := range []string{"t1", "t2"} {
		tx := storetest.Linked(t, s, storetest.NewTransaction(id, "100", 1))
		require.NoError(t, s.Append(ctx, tx))
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.NoError(t, cryptotran.VerifyChain(ctx, all))

	require.NoError(t, s.Mutate("t1", func(tx *cryptotran.Transaction) {
		tx.Amount = decimal.NewFromInt(1000)
	}))

	all, err = s.All(ctx)
	require.NoError(t, err)
	err = cryptotran.VerifyChain(ctx, all)
	assert.ErrorIs(t, err, cryptotran.ErrChainBroken)

	var chainErr *cryptotran.ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, 0, chainErr.Index)
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Close())

	_, err := s.TailHash(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Len(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Append(ctx, storetest.NewTransaction("x", "1", 1)), ErrClosed)
}
