// Package scan implements the diagnostic block iterator: it walks a
// persisted chain index in descending height order and reads each block back
// from its container. Unlike the export engine, a block that fails to read
// is logged and skipped; the scan is the one per-item-recovery path.
package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/blockfile"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/chainindex"
)

// Metrics observes per-block read attempts.
type Metrics interface {
	ObserveBlock(err error, started time.Time)
}

// Stats summarizes one scan.
type Stats struct {
	Visited int
	Skipped int
}

// Scanner reads indexed blocks back from disk, newest first.
type Scanner struct {
	index   *chainindex.Index
	key     blockfile.XORKey
	logger  *zap.Logger
	metrics Metrics
}

// NewScanner builds a Scanner over a loaded index.
func NewScanner(index *chainindex.Index, key blockfile.XORKey, logger *zap.Logger, metrics Metrics) *Scanner {
	return &Scanner{index: index, key: key, logger: logger, metrics: metrics}
}

// Descend visits every height in [lo, hi] from high to low. hi is clipped to
// the index tip. Read failures are skipped; a visit error aborts the scan.
func (s *Scanner) Descend(ctx context.Context, lo, hi uint32, visit func(height uint32, block *wire.MsgBlock) error) (Stats, error) {
	if tip := s.index.TipHeight(); hi > tip {
		hi = tip
	}
	if lo > hi {
		return Stats{}, fmt.Errorf("scan range [%d, %d] is empty", lo, hi)
	}

	var (
		stats  Stats
		reader *blockfile.Reader
	)
	defer func() {
		if reader != nil {
			reader.Close()
		}
	}()

	for height := hi; ; height-- {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		loc, ok := s.index.Location(height)
		if !ok {
			return stats, fmt.Errorf("%w: height %d", chainindex.ErrGap, height)
		}

		started := time.Now()
		block, err := s.readBlock(&reader, loc)
		s.metrics.ObserveBlock(err, started)
		if err != nil {
			stats.Skipped++
			s.logger.Warn("block unreadable, skipping",
				zap.Uint32("height", height),
				zap.String("container", loc.FilePath),
				zap.Int64("offset", loc.FileOffset),
				zap.Error(err))
		} else {
			stats.Visited++
			if err := visit(height, block); err != nil {
				return stats, err
			}
		}

		if height == lo {
			return stats, nil
		}
	}
}

func (s *Scanner) readBlock(reader **blockfile.Reader, loc chainindex.BlockLocation) (*wire.MsgBlock, error) {
	r := *reader
	if r == nil || r.Path() != loc.FilePath {
		if r != nil {
			if err := r.Close(); err != nil {
				return nil, err
			}
			*reader = nil
		}
		var err error
		r, err = blockfile.Open(loc.FilePath, s.key)
		if err != nil {
			return nil, err
		}
		*reader = r
	}

	if err := r.Seek(loc.FileOffset); err != nil {
		return nil, err
	}
	block, _, err := r.ReadBlock()
	if err != nil {
		return nil, err
	}
	if got := block.BlockHash(); got != loc.Hash {
		return nil, fmt.Errorf("block at %s:%d hashes to %s, index says %s",
			loc.FilePath, loc.FileOffset, got, loc.Hash)
	}
	return block, nil
}
