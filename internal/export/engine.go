// Package export drives a column export run over an indexed chain: it walks
// heights ascending, reads full blocks from their containers, extracts one
// row of values per block and hands the rows to a columnar sink.
package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/blockfile"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/chainindex"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/columns"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/utxoset"
)

// Sink receives the rows of one export run. Begin is called once with the
// expanded column names before any row; Commit is called once after the last
// row and must flush everything durably.
type Sink interface {
	Begin(ctx context.Context, columnNames []string) error
	WriteRow(ctx context.Context, height uint32, values []float64) error
	Commit(ctx context.Context) error
}

// Metrics observes engine progress.
type Metrics interface {
	ObserveBlock(err error, started time.Time)
	ObserveRows(n int)
	ObserveRun(err error, started time.Time)
}

// Engine extracts the configured columns for every indexed block. A run is
// all-or-nothing: the first failure aborts it and no further rows are
// written.
type Engine struct {
	index   *chainindex.Index
	key     blockfile.XORKey
	cols    []columns.Column
	tracker *utxoset.Tracker
	sink    Sink
	logger  *zap.Logger
	metrics Metrics
}

// NewEngine builds an Engine. tracker may be nil when no requested column
// needs input values; column validation has already rejected that
// combination otherwise.
func NewEngine(
	index *chainindex.Index,
	key blockfile.XORKey,
	cols []columns.Column,
	tracker *utxoset.Tracker,
	sink Sink,
	logger *zap.Logger,
	metrics Metrics,
) *Engine {
	return &Engine{
		index:   index,
		key:     key,
		cols:    cols,
		tracker: tracker,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
	}
}

// Run exports one row per height in [0, tip], ascending. Blocks must be
// visited in chain order so that the unspent-output tracker sees outputs
// before the inputs that spend them.
func (e *Engine) Run(ctx context.Context) (err error) {
	started := time.Now()
	defer func() { e.metrics.ObserveRun(err, started) }()

	names := columns.ExpandNames(e.cols)
	tip := e.index.TipHeight()

	e.logger.Info("export started",
		zap.Uint32("tip_height", tip),
		zap.Strings("columns", names),
		zap.Bool("tracker", e.tracker != nil))

	if err = e.sink.Begin(ctx, names); err != nil {
		return fmt.Errorf("begin export: %w", err)
	}

	var reader *blockfile.Reader
	defer func() {
		if reader != nil {
			reader.Close()
		}
	}()

	rows := 0
	for height := uint32(0); ; height++ {
		if err = ctx.Err(); err != nil {
			return err
		}

		loc, ok := e.index.Location(height)
		if !ok {
			err = fmt.Errorf("%w: height %d", chainindex.ErrGap, height)
			return err
		}

		blockStart := time.Now()
		var row []float64
		row, reader, err = e.processBlock(reader, loc, height)
		e.metrics.ObserveBlock(err, blockStart)
		if err != nil {
			return fmt.Errorf("height %d: %w", height, err)
		}

		if err = e.sink.WriteRow(ctx, height, row); err != nil {
			return fmt.Errorf("write row for height %d: %w", height, err)
		}
		rows++
		e.metrics.ObserveRows(1)

		if height == tip {
			break
		}
	}

	if err = e.sink.Commit(ctx); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}

	e.logger.Info("export finished",
		zap.Int("rows", rows),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// processBlock reads the block at loc and extracts one row for it. The
// reader is reused across calls and reopened when the container changes;
// the (possibly new) reader is returned to the caller.
func (e *Engine) processBlock(reader *blockfile.Reader, loc chainindex.BlockLocation, height uint32) ([]float64, *blockfile.Reader, error) {
	if reader == nil || reader.Path() != loc.FilePath {
		if reader != nil {
			if err := reader.Close(); err != nil {
				return nil, nil, err
			}
		}
		var err error
		reader, err = blockfile.Open(loc.FilePath, e.key)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := reader.Seek(loc.FileOffset); err != nil {
		return nil, reader, err
	}
	block, _, err := reader.ReadBlock()
	if err != nil {
		return nil, reader, err
	}
	if got := block.BlockHash(); got != loc.Hash {
		return nil, reader, fmt.Errorf("block at %s:%d hashes to %s, index says %s",
			loc.FilePath, loc.FileOffset, got, loc.Hash)
	}

	// Outputs first: inputs spent in the same block must already be
	// visible to fee extraction, and removal is deferred until after the
	// row is complete.
	if e.tracker != nil {
		if err := e.tracker.AddBlockOutputs(block, height); err != nil {
			return nil, reader, err
		}
	}

	row := make([]float64, 0, len(e.cols))
	for _, col := range e.cols {
		values, err := col.Extract(block, height, e.tracker)
		if err != nil {
			return nil, reader, err
		}
		row = append(row, values...)
	}

	if e.tracker != nil {
		e.tracker.SpendBlockInputs(block)
	}
	return row, reader, nil
}
