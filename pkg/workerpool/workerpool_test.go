package workerpool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcess_AllItems(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []int
	)
	err := Process(context.Background(), 3, []int{1, 2, 3, 4, 5}, func(_ context.Context, n int) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, n)
		return nil
	}, nil)
	require.NoError(t, err)
	require.Len(t, seen, 5)
}

func TestProcess_FirstErrorCancels(t *testing.T) {
	boom := errors.New("boom")
	cancelCalled := 0

	err := Process(context.Background(), 2, []int{1, 2, 3, 4, 5, 6, 7, 8}, func(_ context.Context, n int) error {
		if n == 3 {
			return boom
		}
		return nil
	}, func() { cancelCalled++ })
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, cancelCalled)
}

func TestProcess_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Process(ctx, 2, []int{1, 2, 3}, func(context.Context, int) error {
		return nil
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
