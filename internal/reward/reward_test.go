package reward

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/blocktest"
)

func TestSubsidy(t *testing.T) {
	tests := []struct {
		height uint32
		want   int64
	}{
		{height: 0, want: 5_000_000_000},
		{height: 209_999, want: 5_000_000_000},
		{height: 210_000, want: 2_500_000_000},
		{height: 420_000, want: 1_250_000_000},
		{height: 210_000 * 33, want: 0},
		{height: 210_000*33 + 1, want: 0},
	}
	for _, tt := range tests {
		require.EqualValues(t, tt.want, Subsidy(tt.height), "height %d", tt.height)
	}
}

func TestBlockFees(t *testing.T) {
	t.Run("empty transaction list", func(t *testing.T) {
		require.Zero(t, BlockFees(nil, 0))
	})

	t.Run("coinbase above subsidy", func(t *testing.T) {
		coinbase := blocktest.Coinbase(100, 5_000_000_000, 25_000)
		require.EqualValues(t, 25_000, BlockFees([]*wire.MsgTx{coinbase}, 100))
	})

	t.Run("coinbase below subsidy clamps to zero", func(t *testing.T) {
		coinbase := blocktest.Coinbase(100, 4_000_000_000)
		require.Zero(t, BlockFees([]*wire.MsgTx{coinbase}, 100))
	})
}
