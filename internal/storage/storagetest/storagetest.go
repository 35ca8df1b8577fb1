// Package storagetest holds behaviour shared by every storage.Store backend.
package storagetest

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolGuard/internal/storage"
)

// Run exercises a fresh, empty store.
func Run(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()
	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	t.Run("unwritten slot reads zero", func(t *testing.T) {
		word, err := s.Get(ctx, "pool-a", storage.PoolSlot())
		require.NoError(t, err)
		assert.Equal(t, common.Hash{}, word)
	})

	t.Run("commit then read", func(t *testing.T) {
		writes := []storage.Write{
			{Slot: storage.PoolSlot(), Word: common.HexToHash("0x01")},
			{Slot: storage.WeightSlot(token), Word: common.HexToHash("0x02")},
			{Slot: storage.BreakerSlot(token), Word: common.HexToHash("0x03")},
		}
		require.NoError(t, s.Commit(ctx, "pool-a", writes))

		for _, w := range writes {
			got, err := s.Get(ctx, "pool-a", w.Slot)
			require.NoError(t, err)
			assert.Equal(t, w.Word, got)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, s.Commit(ctx, "pool-a", []storage.Write{{Slot: storage.PoolSlot(), Word: common.HexToHash("0xff")}}))
		got, err := s.Get(ctx, "pool-a", storage.PoolSlot())
		require.NoError(t, err)
		assert.Equal(t, common.HexToHash("0xff"), got)
	})

	t.Run("pools are partitioned", func(t *testing.T) {
		got, err := s.Get(ctx, "pool-b", storage.PoolSlot())
		require.NoError(t, err)
		assert.Equal(t, common.Hash{}, got)
	})

	t.Run("empty pool id", func(t *testing.T) {
		_, err := s.Get(ctx, "", storage.PoolSlot())
		require.ErrorIs(t, err, storage.ErrEmptyPoolID)
		require.ErrorIs(t, s.Commit(ctx, "", nil), storage.ErrEmptyPoolID)
	})
}
