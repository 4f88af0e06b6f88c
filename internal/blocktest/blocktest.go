// Package blocktest builds small synthetic blocks and transactions for
// tests that exercise container decoding, chain resolution and export.
package blocktest

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// CoinbaseValue is the output value used by Coinbase when none is given.
const CoinbaseValue = 50_0000_0000

// Coinbase builds a coinbase transaction with the given output values.
// The signature script embeds the height so coinbases stay unique per block.
func Coinbase(height uint32, values ...int64) *wire.MsgTx {
	if len(values) == 0 {
		values = []int64{CoinbaseValue}
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex),
		SignatureScript:  []byte{0x03, byte(height), byte(height >> 8), byte(height >> 16)},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	for _, v := range values {
		tx.AddTxOut(wire.NewTxOut(v, []byte{0x51})) // OP_TRUE
	}
	return tx
}

// Spend builds a transaction spending the given outpoints into outputs of
// the given values.
func Spend(prevs []wire.OutPoint, values ...int64) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	for i := range prevs {
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: prevs[i],
			Sequence:         wire.MaxTxInSequenceNum,
		})
	}
	for _, v := range values {
		tx.AddTxOut(wire.NewTxOut(v, []byte{0x51}))
	}
	return tx
}

// Block assembles a block on top of prev with the given transactions.
// A coinbase is prepended when txs is empty. The merkle root is faked from
// the first transaction hash; nothing in this repository validates it.
func Block(prev chainhash.Hash, height uint32, txs ...*wire.MsgTx) *wire.MsgBlock {
	if len(txs) == 0 {
		txs = []*wire.MsgTx{Coinbase(height)}
	}
	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   1,
			PrevBlock: prev,
			Timestamp: time.Unix(1231006505+int64(height)*600, 0),
			Bits:      0x1d00ffff,
			Nonce:     height,
		},
	}
	for _, tx := range txs {
		block.AddTransaction(tx)
	}
	block.Header.MerkleRoot = txs[0].TxHash()
	return block
}

// Chain builds a linear chain of n blocks starting at the genesis block
// (zero prev hash). Each block carries only its coinbase.
func Chain(n int) []*wire.MsgBlock {
	blocks := make([]*wire.MsgBlock, 0, n)
	prev := chainhash.Hash{}
	for h := 0; h < n; h++ {
		b := Block(prev, uint32(h))
		blocks = append(blocks, b)
		prev = b.BlockHash()
	}
	return blocks
}
