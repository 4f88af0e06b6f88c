// Package columns maps requested metric names to extractors over decoded
// blocks, expanding multi-valued metrics into per-quantile columns.
package columns

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/wire"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/reward"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/utxoset"
)

var (
	// ErrUnknownColumn marks a metric name absent from the registry.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrQuantileRange marks a quantile outside [0, 100].
	ErrQuantileRange = errors.New("quantile out of range")

	// ErrTrackerRequired marks a request for a tracker-dependent metric in
	// a run where the unspent-output tracker is disabled. This is caught at
	// configuration time, never per block.
	ErrTrackerRequired = errors.New("column requires the unspent-output tracker")

	// ErrQuantileList marks a malformed single/multi quantile combination.
	ErrQuantileList = errors.New("invalid quantile list")
)

type singleFunc func(block *wire.MsgBlock, height uint32, tracker *utxoset.Tracker) (float64, error)
type multiFunc func(block *wire.MsgBlock, height uint32, tracker *utxoset.Tracker) ([]float64, error)

type definition struct {
	single       singleFunc
	multi        multiFunc
	needsTracker bool
}

var registry = map[string]definition{
	"height": {single: func(_ *wire.MsgBlock, height uint32, _ *utxoset.Tracker) (float64, error) {
		return float64(height), nil
	}},
	"timestamp": {single: func(block *wire.MsgBlock, _ uint32, _ *utxoset.Tracker) (float64, error) {
		return float64(block.Header.Timestamp.Unix()), nil
	}},
	"tx_count": {single: func(block *wire.MsgBlock, _ uint32, _ *utxoset.Tracker) (float64, error) {
		return float64(len(block.Transactions)), nil
	}},
	"block_size": {single: func(block *wire.MsgBlock, _ uint32, _ *utxoset.Tracker) (float64, error) {
		return float64(block.SerializeSize()), nil
	}},
	"fee_total": {single: func(block *wire.MsgBlock, height uint32, _ *utxoset.Tracker) (float64, error) {
		return float64(reward.BlockFees(block.Transactions, height)), nil
	}},
	"fee_avg": {single: func(block *wire.MsgBlock, height uint32, _ *utxoset.Tracker) (float64, error) {
		paying := len(block.Transactions) - 1 // coinbase pays no fee
		if paying <= 0 {
			return 0, nil
		}
		return float64(reward.BlockFees(block.Transactions, height)) / float64(paying), nil
	}},
	"input_count": {single: func(block *wire.MsgBlock, _ uint32, _ *utxoset.Tracker) (float64, error) {
		var n int
		for _, tx := range block.Transactions {
			n += len(tx.TxIn)
		}
		return float64(n), nil
	}},
	"output_count": {single: func(block *wire.MsgBlock, _ uint32, _ *utxoset.Tracker) (float64, error) {
		var n int
		for _, tx := range block.Transactions {
			n += len(tx.TxOut)
		}
		return float64(n), nil
	}},

	"tx_size": {multi: func(block *wire.MsgBlock, _ uint32, _ *utxoset.Tracker) ([]float64, error) {
		values := make([]float64, 0, len(block.Transactions))
		for _, tx := range block.Transactions {
			values = append(values, float64(tx.SerializeSize()))
		}
		return values, nil
	}},
	"output_value": {multi: func(block *wire.MsgBlock, _ uint32, _ *utxoset.Tracker) ([]float64, error) {
		var values []float64
		for _, tx := range block.Transactions {
			for _, out := range tx.TxOut {
				values = append(values, float64(out.Value))
			}
		}
		return values, nil
	}},
	"tx_fee": {needsTracker: true, multi: func(block *wire.MsgBlock, _ uint32, tracker *utxoset.Tracker) ([]float64, error) {
		values := make([]float64, 0, len(block.Transactions))
		for i, tx := range block.Transactions {
			if i == 0 {
				continue // coinbase
			}
			fee, err := tracker.TransactionFee(tx)
			if err != nil {
				return nil, err
			}
			values = append(values, float64(fee))
		}
		return values, nil
	}},
}

// Column is a parsed column request: a single metric, or a multi-valued
// metric reduced to one value per requested quantile. Immutable after Parse.
type Column struct {
	base      string
	quantiles []float64
	def       definition
}

// NeedsTracker reports whether the column resolves input values through the
// unspent-output tracker.
func (c Column) NeedsTracker() bool {
	return c.def.needsTracker
}

// Names returns the expanded output column names.
func (c Column) Names() []string {
	if c.def.single != nil {
		return []string{c.base}
	}
	names := make([]string, 0, len(c.quantiles))
	for _, q := range c.quantiles {
		names = append(names, fmt.Sprintf("%s_%s", c.base, strconv.FormatFloat(q, 'f', -1, 64)))
	}
	return names
}

// Extract produces one value per expanded name for a block. Multi-valued
// distributions are sorted ascending before quantile reduction.
func (c Column) Extract(block *wire.MsgBlock, height uint32, tracker *utxoset.Tracker) ([]float64, error) {
	if c.def.single != nil {
		v, err := c.def.single(block, height, tracker)
		if err != nil {
			return nil, err
		}
		return []float64{v}, nil
	}

	values, err := c.def.multi(block, height, tracker)
	if err != nil {
		return nil, err
	}
	sort.Float64s(values)

	out := make([]float64, 0, len(c.quantiles))
	for _, q := range c.quantiles {
		out = append(out, Quantile(values, q))
	}
	return out, nil
}

// Parse resolves requested column specs. A multi-valued metric is requested
// as "name:q1,q2,..."; a single metric as its bare name. Tracker-dependent
// metrics are rejected here when the tracker is disabled for the run.
func Parse(specs []string, trackerEnabled bool) ([]Column, error) {
	cols := make([]Column, 0, len(specs))
	for _, spec := range specs {
		name, quantileList, hasQuantiles := strings.Cut(spec, ":")

		def, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		if def.needsTracker && !trackerEnabled {
			return nil, fmt.Errorf("%w: %q", ErrTrackerRequired, name)
		}

		col := Column{base: name, def: def}
		switch {
		case def.single != nil && hasQuantiles:
			return nil, fmt.Errorf("%w: %q is single-valued", ErrQuantileList, name)
		case def.single == nil && !hasQuantiles:
			return nil, fmt.Errorf("%w: %q needs explicit quantiles, e.g. %s:25,50,75", ErrQuantileList, name, name)
		case def.single == nil:
			quantiles, err := parseQuantiles(name, quantileList)
			if err != nil {
				return nil, err
			}
			col.quantiles = quantiles
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// ExpandNames returns the flat output schema of a parsed column set.
func ExpandNames(cols []Column) []string {
	var names []string
	for _, c := range cols {
		names = append(names, c.Names()...)
	}
	return names
}

func parseQuantiles(name, list string) ([]float64, error) {
	parts := strings.Split(list, ",")
	quantiles := make([]float64, 0, len(parts))
	for _, part := range parts {
		q, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q in %q", ErrQuantileList, part, name)
		}
		if q < 0 || q > 100 {
			return nil, fmt.Errorf("%w: %v in %q", ErrQuantileRange, q, name)
		}
		quantiles = append(quantiles, q)
	}
	return quantiles, nil
}
