package batcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type collector struct {
	mu      sync.Mutex
	batches [][]int
	err     error
}

func (c *collector) flush(_ context.Context, items []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	batch := make([]int, len(items))
	copy(batch, items)
	c.batches = append(c.batches, batch)
	return nil
}

func (c *collector) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func TestBatcher_FlushBySize(t *testing.T) {
	c := &collector{}
	b := New[int](zap.NewNop(), c.flush, 3, time.Hour, 100)
	b.Start(context.Background())

	for i := 0; i < 6; i++ {
		require.NoError(t, b.Add(context.Background(), i))
	}

	require.Eventually(t, func() bool {
		return c.total() == 6
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, b.Stop())

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, batch := range c.batches {
		require.Len(t, batch, 3)
	}
}

func TestBatcher_StopDrains(t *testing.T) {
	c := &collector{}
	b := New[int](zap.NewNop(), c.flush, 100, time.Hour, 100)
	b.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Add(context.Background(), i))
	}
	require.NoError(t, b.Stop())
	require.Equal(t, 5, c.total())
}

func TestBatcher_FlushErrorIsSticky(t *testing.T) {
	boom := errors.New("boom")
	c := &collector{err: boom}
	b := New[int](zap.NewNop(), c.flush, 2, time.Hour, 100)
	b.Start(context.Background())

	require.NoError(t, b.Add(context.Background(), 1))
	require.NoError(t, b.Add(context.Background(), 2))

	require.Eventually(t, func() bool {
		return b.Err() != nil
	}, time.Second, 10*time.Millisecond)

	require.ErrorIs(t, b.Add(context.Background(), 3), boom)
	require.ErrorIs(t, b.Stop(), boom)
}

func TestBatcher_AddAfterStop(t *testing.T) {
	c := &collector{}
	b := New[int](zap.NewNop(), c.flush, 2, time.Hour, 100)
	b.Start(context.Background())
	require.NoError(t, b.Stop())

	require.Error(t, b.Add(context.Background(), 1))
}
