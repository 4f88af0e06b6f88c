package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/blockfile"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/blocktest"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/chaingraph"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/chainindex"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/metrics"
)

var testKey = blockfile.XORKey{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80}

func buildFixture(t *testing.T) (string, *chainindex.Index) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "blk00000.dat")
	w, err := blockfile.Create(path, testKey)
	require.NoError(t, err)
	for _, block := range blocktest.Chain(4) {
		_, err := w.WriteBlock(block)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	index, err := chaingraph.NewBuilder(testKey, 1, zap.NewNop()).Build(context.Background(), []string{path})
	require.NoError(t, err)
	return path, index
}

func collectHeights(t *testing.T, s *Scanner, lo, hi uint32) ([]uint32, Stats) {
	t.Helper()

	var heights []uint32
	stats, err := s.Descend(context.Background(), lo, hi, func(height uint32, block *wire.MsgBlock) error {
		require.NotNil(t, block)
		heights = append(heights, height)
		return nil
	})
	require.NoError(t, err)
	return heights, stats
}

func TestScanner_DescendsFullRange(t *testing.T) {
	_, index := buildFixture(t)
	s := NewScanner(index, testKey, zap.NewNop(), metrics.NewScan())

	heights, stats := collectHeights(t, s, 0, index.TipHeight())
	require.Equal(t, []uint32{3, 2, 1, 0}, heights)
	require.Equal(t, Stats{Visited: 4}, stats)
}

func TestScanner_ClipsRangeToTip(t *testing.T) {
	_, index := buildFixture(t)
	s := NewScanner(index, testKey, zap.NewNop(), metrics.NewScan())

	heights, stats := collectHeights(t, s, 2, 1000)
	require.Equal(t, []uint32{3, 2}, heights)
	require.Equal(t, Stats{Visited: 2}, stats)
}

func TestScanner_EmptyRange(t *testing.T) {
	_, index := buildFixture(t)
	s := NewScanner(index, testKey, zap.NewNop(), metrics.NewScan())

	_, err := s.Descend(context.Background(), 5, 4, func(uint32, *wire.MsgBlock) error {
		t.Fatal("visit must not run")
		return nil
	})
	require.Error(t, err)
}

func TestScanner_SkipsCorruptBlock(t *testing.T) {
	path, index := buildFixture(t)

	// Flip one payload byte of the height-1 record; its hash no longer
	// matches the index and the scan must step over it.
	loc, ok := index.Location(1)
	require.True(t, ok)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	var b [1]byte
	_, err = f.ReadAt(b[:], loc.FileOffset+8)
	require.NoError(t, err)
	b[0] ^= 0xff
	_, err = f.WriteAt(b[:], loc.FileOffset+8)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s := NewScanner(index, testKey, zap.NewNop(), metrics.NewScan())
	heights, stats := collectHeights(t, s, 0, index.TipHeight())
	require.Equal(t, []uint32{3, 2, 0}, heights)
	require.Equal(t, Stats{Visited: 3, Skipped: 1}, stats)
}
