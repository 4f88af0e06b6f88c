// Package utxoset maintains the transient unspent-output set used to
// compute exact fee values during a single forward pass over the chain.
package utxoset

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/cespare/xxhash/v2"
)

var (
	// ErrCollision means an output key was inserted twice outside the
	// duplicate-coinbase allow-list.
	ErrCollision = errors.New("unspent output already present")

	// ErrMissingInput means a spent input was never added. The tracker loads
	// no pre-existing history, so it is only correct when fed a contiguous
	// run of blocks from genesis.
	ErrMissingInput = errors.New("input not found in unspent set")

	// ErrNegativeFee means inputs sum below outputs, which indicates
	// upstream data corruption and must fail loudly.
	ErrNegativeFee = errors.New("negative transaction fee")
)

// duplicateCoinbaseHeights lists the two heights where the chain contains
// duplicate coinbase transactions (pre-BIP30); collisions there are
// tolerated and the later value wins.
var duplicateCoinbaseHeights = map[uint32]struct{}{
	91_842: {},
	91_880: {},
}

// Tracker is the in-memory unspent-output set. Single-writer, strict
// ascending-height block application; never persisted.
type Tracker struct {
	outputs map[uint64]int64
	staged  map[uint64]struct{}
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{
		outputs: make(map[uint64]int64),
		staged:  make(map[uint64]struct{}),
	}
}

// digest collapses an outpoint to the 64-bit tracker key.
func digest(txid *chainhash.Hash, index uint32) uint64 {
	var buf [chainhash.HashSize + 4]byte
	copy(buf[:chainhash.HashSize], txid[:])
	binary.LittleEndian.PutUint32(buf[chainhash.HashSize:], index)
	return xxhash.Sum64(buf[:])
}

// Len returns the number of live outputs.
func (t *Tracker) Len() int {
	return len(t.outputs)
}

// AddOutput inserts an output value. Key collisions are fatal except at the
// duplicate-coinbase heights.
func (t *Tracker) AddOutput(txid *chainhash.Hash, index uint32, value int64, height uint32) error {
	key := digest(txid, index)
	if _, exists := t.outputs[key]; exists {
		if _, exempt := duplicateCoinbaseHeights[height]; !exempt {
			return fmt.Errorf("%w: %s:%d at height %d", ErrCollision, txid, index, height)
		}
	}
	t.outputs[key] = value
	return nil
}

// Value looks up the satoshi value of an unspent output.
func (t *Tracker) Value(txid *chainhash.Hash, index uint32) (int64, error) {
	value, ok := t.outputs[digest(txid, index)]
	if !ok {
		return 0, fmt.Errorf("%w: %s:%d", ErrMissingInput, txid, index)
	}
	return value, nil
}

// MarkForRemoval stages an output for deletion without removing it yet, so
// values stay readable until the enclosing block is fully processed.
func (t *Tracker) MarkForRemoval(txid *chainhash.Hash, index uint32) {
	t.staged[digest(txid, index)] = struct{}{}
}

// CommitRemovals deletes all staged outputs and clears the staging set.
func (t *Tracker) CommitRemovals() {
	for key := range t.staged {
		delete(t.outputs, key)
	}
	t.staged = make(map[uint64]struct{})
}

// AddBlockOutputs inserts every spendable output of every transaction in the
// block. This is phase one of the per-block protocol and must complete
// before any input of the block is staged, so same-block spends resolve.
func (t *Tracker) AddBlockOutputs(block *wire.MsgBlock, height uint32) error {
	for _, tx := range block.Transactions {
		txid := tx.TxHash()
		for i, out := range tx.TxOut {
			if txscript.IsUnspendable(out.PkScript) {
				continue
			}
			if err := t.AddOutput(&txid, uint32(i), out.Value, height); err != nil {
				return err
			}
		}
	}
	return nil
}

// SpendBlockInputs stages every input of every non-coinbase transaction and
// commits the removals. Phase two of the per-block protocol.
func (t *Tracker) SpendBlockInputs(block *wire.MsgBlock) {
	for _, tx := range block.Transactions {
		if isCoinbase(tx) {
			continue
		}
		for _, in := range tx.TxIn {
			t.MarkForRemoval(&in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
		}
	}
	t.CommitRemovals()
}

// TransactionFee computes inputs minus outputs for a non-coinbase
// transaction, resolving input values through the unspent set.
func (t *Tracker) TransactionFee(tx *wire.MsgTx) (int64, error) {
	var inputs int64
	for _, in := range tx.TxIn {
		value, err := t.Value(&in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
		if err != nil {
			return 0, err
		}
		inputs += value
	}
	var outputs int64
	for _, out := range tx.TxOut {
		outputs += out.Value
	}
	if inputs < outputs {
		return 0, fmt.Errorf("%w: %s spends %d into %d", ErrNegativeFee, tx.TxHash(), inputs, outputs)
	}
	return inputs - outputs, nil
}

func isCoinbase(tx *wire.MsgTx) bool {
	if len(tx.TxIn) != 1 {
		return false
	}
	prev := tx.TxIn[0].PreviousOutPoint
	return prev.Index == wire.MaxPrevOutIndex && prev.Hash == (chainhash.Hash{})
}
