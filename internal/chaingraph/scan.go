package chaingraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/blockfile"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/chainindex"
)

// DiscoverContainers lists the blk*.dat container files of a blocks
// directory in ascending name order.
func DiscoverContainers(blocksDir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(blocksDir, "blk*.dat"))
	if err != nil {
		return nil, fmt.Errorf("list containers in %s: %w", blocksDir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no blk*.dat containers in %s", blocksDir)
	}
	sort.Strings(paths)
	return paths, nil
}

type discoveredBlock struct {
	hash chainhash.Hash
	prev chainhash.Hash
	loc  chainindex.BlockLocation
}

// scanContainer runs a header-only pass over one container and returns every
// record it holds.
func scanContainer(ctx context.Context, path string, key blockfile.XORKey) ([]discoveredBlock, error) {
	r, err := blockfile.Open(path, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var blocks []discoveredBlock
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.ReadHeader()
		if errors.Is(err, io.EOF) {
			return blocks, nil
		}
		if err != nil {
			return nil, err
		}
		hash := rec.Header.BlockHash()
		blocks = append(blocks, discoveredBlock{
			hash: hash,
			prev: rec.Header.PrevBlock,
			loc: chainindex.BlockLocation{
				FilePath:   path,
				FileOffset: rec.Offset,
				Hash:       hash,
				Size:       rec.PayloadLen,
			},
		})
	}
}
