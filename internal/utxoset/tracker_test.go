package utxoset

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/blocktest"
)

func txid(n byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = n
	return h
}

func TestTracker_AddReadRemove(t *testing.T) {
	tr := New()
	id := txid(1)

	require.NoError(t, tr.AddOutput(&id, 0, 500, 10))

	value, err := tr.Value(&id, 0)
	require.NoError(t, err)
	require.EqualValues(t, 500, value)

	tr.MarkForRemoval(&id, 0)

	// Staged, not yet removed.
	value, err = tr.Value(&id, 0)
	require.NoError(t, err)
	require.EqualValues(t, 500, value)

	tr.CommitRemovals()
	_, err = tr.Value(&id, 0)
	require.ErrorIs(t, err, ErrMissingInput)
	require.Zero(t, tr.Len())
}

func TestTracker_CollisionFatalAtNonExemptHeight(t *testing.T) {
	tr := New()
	id := txid(2)

	require.NoError(t, tr.AddOutput(&id, 0, 100, 5000))
	err := tr.AddOutput(&id, 0, 200, 5000)
	require.ErrorIs(t, err, ErrCollision)
}

func TestTracker_DuplicateCoinbaseHeightsExempt(t *testing.T) {
	for _, height := range []uint32{91_842, 91_880} {
		tr := New()
		id := txid(3)

		require.NoError(t, tr.AddOutput(&id, 0, 100, height-1))
		require.NoError(t, tr.AddOutput(&id, 0, 250, height))

		value, err := tr.Value(&id, 0)
		require.NoError(t, err)
		require.EqualValues(t, 250, value, "later value overwrites at height %d", height)
	}
}

func TestTracker_SameBlockSpend(t *testing.T) {
	tr := New()

	coinbase := blocktest.Coinbase(1, 50_0000_0000)
	coinbaseID := coinbase.TxHash()
	spend := blocktest.Spend([]wire.OutPoint{{Hash: coinbaseID, Index: 0}}, 49_0000_0000)
	block := blocktest.Block(txid(9), 1, coinbase, spend)

	require.NoError(t, tr.AddBlockOutputs(block, 1))

	// The in-block spend resolves against the output created just above.
	fee, err := tr.TransactionFee(spend)
	require.NoError(t, err)
	require.EqualValues(t, 1_0000_0000, fee)

	tr.SpendBlockInputs(block)

	_, err = tr.Value(&coinbaseID, 0)
	require.ErrorIs(t, err, ErrMissingInput)

	// The spend's own output survives the block.
	spendID := spend.TxHash()
	value, err := tr.Value(&spendID, 0)
	require.NoError(t, err)
	require.EqualValues(t, 49_0000_0000, value)
}

func TestTracker_UnspendableOutputsSkipped(t *testing.T) {
	tr := New()

	tx := blocktest.Coinbase(2, 10)
	tx.TxOut[0].PkScript = []byte{0x6a} // OP_RETURN
	block := blocktest.Block(txid(8), 2, tx)

	require.NoError(t, tr.AddBlockOutputs(block, 2))
	require.Zero(t, tr.Len())
}

func TestTracker_TransactionFee_NegativeIsFatal(t *testing.T) {
	tr := New()
	id := txid(4)
	require.NoError(t, tr.AddOutput(&id, 0, 100, 1))

	spend := blocktest.Spend([]wire.OutPoint{{Hash: id, Index: 0}}, 500)
	_, err := tr.TransactionFee(spend)
	require.ErrorIs(t, err, ErrNegativeFee)
}

func TestTracker_TransactionFee_MissingInput(t *testing.T) {
	tr := New()
	id := txid(5)
	spend := blocktest.Spend([]wire.OutPoint{{Hash: id, Index: 3}}, 1)

	_, err := tr.TransactionFee(spend)
	require.ErrorIs(t, err, ErrMissingInput)
}
