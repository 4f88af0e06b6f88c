// Package batcher provides a generic buffered batch writer with rate
// limiting. Unlike a fire-and-forget batcher, flush failures are sticky:
// the first error rejects further adds and is reported by Stop, so callers
// that must not drop rows can abort their run.
package batcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// Batcher buffers items and flushes them by size or interval.
type Batcher[T any] struct {
	flush         func(context.Context, []T) error
	itemsCh       chan T
	flushSize     int
	flushInterval time.Duration
	rl            ratelimit.Limiter
	logger        *zap.Logger

	mu       sync.Mutex
	firstErr error

	wg   sync.WaitGroup
	stop chan struct{}
}

// New constructs a Batcher flushing through flush.
func New[T any](logger *zap.Logger, flush func(context.Context, []T) error, flushSize int, flushInterval time.Duration, rps int) *Batcher[T] {
	return &Batcher[T]{
		logger:        logger,
		flush:         flush,
		itemsCh:       make(chan T, flushSize*2),
		flushSize:     flushSize,
		flushInterval: flushInterval,
		rl:            ratelimit.New(rps),
		stop:          make(chan struct{}),
	}
}

// Start begins the background flushing loop.
func (b *Batcher[T]) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.run(ctx)
}

// Stop drains the buffer, stops the loop and returns the first flush error.
func (b *Batcher[T]) Stop() error {
	close(b.stop)
	b.wg.Wait()
	return b.Err()
}

// Err returns the first flush error, if any.
func (b *Batcher[T]) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.firstErr
}

// Add queues an item. It fails once a flush has failed or the batcher is
// stopping.
func (b *Batcher[T]) Add(ctx context.Context, item T) error {
	if err := b.Err(); err != nil {
		return err
	}

	select {
	case <-b.stop:
		return context.Canceled
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.itemsCh <- item:
		return nil
	}
}

func (b *Batcher[T]) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	buf := make([]T, 0, b.flushSize)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		b.rl.Take()
		if err := b.flush(ctx, buf); err != nil {
			b.logger.Error("batch not flushed", zap.Error(err))
			b.mu.Lock()
			if b.firstErr == nil {
				b.firstErr = err
			}
			b.mu.Unlock()
		} else {
			b.logger.Debug("batch flushed", zap.Int("size", len(buf)))
		}
		buf = buf[:0]
	}

	drain := func() {
		for {
			select {
			case item := <-b.itemsCh:
				buf = append(buf, item)
				if len(buf) >= b.flushSize {
					flush()
				}
			default:
				flush()
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return

		case <-b.stop:
			drain()
			return

		case item := <-b.itemsCh:
			buf = append(buf, item)
			if len(buf) >= b.flushSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}
