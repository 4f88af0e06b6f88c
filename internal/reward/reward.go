// Package reward provides the deterministic block subsidy schedule and the
// coinbase-derived block fee computation.
package reward

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

const (
	baseSubsidy     = 50 * btcutil.SatoshiPerBitcoin
	halvingInterval = 210_000

	// After 33 halvings the shifted subsidy is zero forever.
	maxHalvings = 33
)

// Subsidy returns the block subsidy at a height in satoshis.
func Subsidy(height uint32) btcutil.Amount {
	halvings := height / halvingInterval
	if halvings >= maxHalvings {
		return 0
	}
	return btcutil.Amount(int64(baseSubsidy) >> halvings)
}

// BlockFees derives the total fees of a block from its coinbase outputs:
// coinbase value minus subsidy, clamped at zero. An empty transaction list
// yields zero.
func BlockFees(txs []*wire.MsgTx, height uint32) btcutil.Amount {
	if len(txs) == 0 {
		return 0
	}

	var coinbaseOut int64
	for _, out := range txs[0].TxOut {
		coinbaseOut += out.Value
	}

	subsidy := int64(Subsidy(height))
	if coinbaseOut <= subsidy {
		return 0
	}
	return btcutil.Amount(coinbaseOut - subsidy)
}
