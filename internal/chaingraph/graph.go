// Package chaingraph resolves an unordered set of discovered blocks into a
// dense height-indexed chain: header scan, memoized height resolution with
// orphan detection, unique-tip selection and backward linearization.
package chaingraph

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/chainindex"
)

var (
	// ErrNoGenesis means no discovered block has the zero hash as its
	// predecessor.
	ErrNoGenesis = errors.New("genesis block not found")

	// ErrForkAtTip means more than one block resolved to the maximum height;
	// the tip is never picked by heuristic.
	ErrForkAtTip = errors.New("multiple blocks at tip height")

	// ErrNoKnownHeights means resolution produced no height at all.
	ErrNoKnownHeights = errors.New("no blocks with known heights")

	// ErrBrokenChain means the backward walk from the tip hit a hash that
	// was never discovered before reaching the zero hash.
	ErrBrokenChain = errors.New("chain broken")
)

// HeightState is the tri-state resolution status of a discovered block.
// Transitions are monotonic: Unresolved to Known or Unresolved to Orphaned;
// a resolved state is never revisited.
type HeightState uint8

const (
	Unresolved HeightState = iota
	Known
	Orphaned
)

type blockRecord struct {
	loc    chainindex.BlockLocation
	prev   chainhash.Hash
	state  HeightState
	height uint32
}

// Graph is the working hash-to-record map owned by index construction and
// discarded once the persisted index is produced.
type Graph struct {
	records map[chainhash.Hash]*blockRecord
	genesis chainhash.Hash
	found   bool
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{records: make(map[chainhash.Hash]*blockRecord)}
}

// Add records a discovered block. A zero prev hash marks the genesis
// candidate.
func (g *Graph) Add(hash, prev chainhash.Hash, loc chainindex.BlockLocation) {
	g.records[hash] = &blockRecord{loc: loc, prev: prev}
	if prev == (chainhash.Hash{}) {
		g.genesis = hash
		g.found = true
	}
}

// Len returns the number of discovered blocks.
func (g *Graph) Len() int {
	return len(g.records)
}

// HeightOf reports the resolution state of a hash.
func (g *Graph) HeightOf(hash chainhash.Hash) (uint32, HeightState) {
	rec, ok := g.records[hash]
	if !ok {
		return 0, Unresolved
	}
	return rec.height, rec.state
}

// ResolveHeights assigns a height or orphan mark to every discovered block.
// Each block is finalized exactly once, so total work is linear in the
// number of discovered blocks regardless of traversal order.
func (g *Graph) ResolveHeights() error {
	if !g.found {
		return ErrNoGenesis
	}
	genesis := g.records[g.genesis]
	genesis.state = Known
	genesis.height = 0

	for hash := range g.records {
		g.resolveFrom(hash)
	}
	return nil
}

// resolveFrom walks prev pointers backward, stacking unresolved hashes until
// it hits a resolved block or falls off the discovered set, then unwinds the
// stack assigning strictly increasing heights.
func (g *Graph) resolveFrom(start chainhash.Hash) {
	if rec, ok := g.records[start]; !ok || rec.state != Unresolved {
		return
	}

	var stack []chainhash.Hash
	current := start
	for {
		rec, ok := g.records[current]
		if !ok {
			// Ancestor was never discovered: the whole walk is orphaned.
			g.markOrphaned(stack)
			return
		}
		if rec.state == Orphaned {
			g.markOrphaned(stack)
			return
		}
		if rec.state == Known {
			break
		}
		stack = append(stack, current)
		current = rec.prev
	}

	height := g.records[current].height
	for i := len(stack) - 1; i >= 0; i-- {
		height++
		rec := g.records[stack[i]]
		rec.state = Known
		rec.height = height
	}
}

func (g *Graph) markOrphaned(stack []chainhash.Hash) {
	for _, hash := range stack {
		rec := g.records[hash]
		rec.state = Orphaned
	}
}

// SelectTip returns the unique block at the maximum resolved height. Two or
// more candidates is a fork ambiguity and fails rather than guessing.
func (g *Graph) SelectTip() (chainhash.Hash, uint32, error) {
	var (
		max   uint32
		found bool
	)
	for _, rec := range g.records {
		if rec.state == Known && (!found || rec.height > max) {
			max = rec.height
			found = true
		}
	}
	if !found {
		return chainhash.Hash{}, 0, ErrNoKnownHeights
	}

	var candidates []chainhash.Hash
	for hash, rec := range g.records {
		if rec.state == Known && rec.height == max {
			candidates = append(candidates, hash)
		}
	}
	if len(candidates) != 1 {
		return chainhash.Hash{}, 0, fmt.Errorf("%w: %d blocks at height %d", ErrForkAtTip, len(candidates), max)
	}
	return candidates[0], max, nil
}

// Linearize follows prev pointers from the tip down to genesis, recording
// each block's location at its resolved height. Terminating exactly at the
// zero hash is what guarantees the produced index is dense.
func (g *Graph) Linearize(tip chainhash.Hash) (*chainindex.Index, error) {
	index := chainindex.New()

	current := tip
	for {
		rec, ok := g.records[current]
		if !ok {
			return nil, fmt.Errorf("%w: missing block %s", ErrBrokenChain, current)
		}
		index.Add(rec.height, rec.loc)
		if rec.prev == (chainhash.Hash{}) {
			break
		}
		current = rec.prev
	}

	if err := index.Validate(); err != nil {
		return nil, err
	}
	return index, nil
}
