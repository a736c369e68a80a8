package batch

import (
	"context"
	"sync"
	"time"
)

// pendingBatches bounds how many batches may wait behind a slow flush.
const pendingBatches = 8

// FlushFunc receives a batch in insertion order. The slice is owned by the
// callee.
type FlushFunc[T any] func(ctx context.Context, items []T) error

// Batcher accumulates items and hands them to a FlushFunc when the batch
// is full, on every interval tick and on Stop.
type Batcher[T any] struct {
	size       int
	maxPending int
	interval   time.Duration
	flush      FlushFunc[T]
	onError    func(err error, dropped int)

	mu      sync.Mutex
	pending []T
	stopped bool

	kick     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New starts a batcher that flushes every size items or every interval.
func New[T any](size int, interval time.Duration, flush FlushFunc[T]) *Batcher[T] {
	if size < 1 {
		size = 1
	}
	b := &Batcher[T]{
		size:       size,
		maxPending: size * pendingBatches,
		interval:   interval,
		flush:      flush,
		pending:    make([]T, 0, size),
		kick:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go b.run()
	return b
}

// OnError sets the callback for failed flushes. Must be called before Add.
func (b *Batcher[T]) OnError(fn func(err error, dropped int)) {
	b.onError = fn
}

// Add queues an item. It reports false once the batcher is stopped or
// when the backlog behind a slow flush is full; the item is discarded.
func (b *Batcher[T]) Add(item T) bool {
	b.mu.Lock()
	if b.stopped || len(b.pending) >= b.maxPending {
		b.mu.Unlock()
		return false
	}
	b.pending = append(b.pending, item)
	full := len(b.pending) >= b.size
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
	return true
}

// Pending returns how many items wait for the next flush.
func (b *Batcher[T]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stop flushes what is pending and waits for the flush to finish or ctx
// to expire.
func (b *Batcher[T]) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()
		close(b.stop)
	})
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Batcher[T]) take() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	items := b.pending
	b.pending = make([]T, 0, b.size)
	return items
}

func (b *Batcher[T]) drain() {
	for {
		items := b.take()
		if items == nil {
			return
		}
		if err := b.flush(context.Background(), items); err != nil && b.onError != nil {
			b.onError(err, len(items))
		}
		if len(items) < b.size {
			return
		}
	}
}

func (b *Batcher[T]) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drain()
		case <-b.kick:
			b.drain()
		case <-b.stop:
			b.drain()
			return
		}
	}
}
