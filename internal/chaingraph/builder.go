package chaingraph

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/blockfile"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/chainindex"
	"github.com/goodnatureofminers/blockindex7000-backend/pkg/workerpool"
)

// Builder turns a set of container files into a persisted chain index.
// Any inconsistency aborts the whole build; there is no partial index.
type Builder struct {
	key     blockfile.XORKey
	workers int
	logger  *zap.Logger
}

// NewBuilder creates a Builder. workers bounds the parallel header scan;
// resolution and linearization are inherently sequential.
func NewBuilder(key blockfile.XORKey, workers int, logger *zap.Logger) *Builder {
	if workers < 1 {
		workers = 1
	}
	return &Builder{key: key, workers: workers, logger: logger}
}

// Build scans the containers, resolves the chain graph and returns the
// linearized index.
func (b *Builder) Build(ctx context.Context, containers []string) (*chainindex.Index, error) {
	graph := NewGraph()

	// The header scan only populates disjoint entries, so containers can be
	// scanned concurrently; merging is serialized on a mutex.
	var mu sync.Mutex
	err := workerpool.Process(ctx, b.workers, containers, func(ctx context.Context, path string) error {
		blocks, err := scanContainer(ctx, path, b.key)
		if err != nil {
			return fmt.Errorf("scan container %s: %w", path, err)
		}
		b.logger.Debug("scanned container", zap.String("path", path), zap.Int("blocks", len(blocks)))

		mu.Lock()
		defer mu.Unlock()
		for _, blk := range blocks {
			graph.Add(blk.hash, blk.prev, blk.loc)
		}
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	b.logger.Info("containers scanned", zap.Int("containers", len(containers)), zap.Int("blocks", graph.Len()))

	if err := graph.ResolveHeights(); err != nil {
		return nil, err
	}

	tip, tipHeight, err := graph.SelectTip()
	if err != nil {
		return nil, err
	}
	b.logger.Info("tip selected", zap.Stringer("hash", tip), zap.Uint32("height", tipHeight))

	index, err := graph.Linearize(tip)
	if err != nil {
		return nil, err
	}
	b.logger.Info("index linearized", zap.Int("blocks", index.Len()), zap.Uint32("tip_height", index.TipHeight()))
	return index, nil
}
