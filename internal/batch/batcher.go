// Package batch provides a per-key micro-batcher: items sharing a key
// are coalesced and flushed together once the key has been quiet for the
// debounce interval, or once the oldest pending item has waited the hard
// maximum, whichever comes first.
package batch

import (
	"sync"
	"time"
)

// Batcher groups items by key and flushes each key's pending items to a
// handler. Different keys flush independently; flushes for the same key
// are serialized.
type Batcher[T any] struct {
	debounce time.Duration
	maxWait  time.Duration
	flush    func(key string, items []T)

	mu      sync.Mutex
	pending map[string]*bucket[T]
	closed  bool
}

type bucket[T any] struct {
	items []T
	first time.Time
	timer *time.Timer
}

// New creates a batcher. flush is invoked from a timer goroutine with
// the key's accumulated items in arrival order.
func New[T any](debounce, maxWait time.Duration, flush func(key string, items []T)) *Batcher[T] {
	return &Batcher[T]{
		debounce: debounce,
		maxWait:  maxWait,
		flush:    flush,
		pending:  make(map[string]*bucket[T]),
	}
}

// Add queues an item under key and (re)arms the key's flush timer.
func (b *Batcher[T]) Add(key string, item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	bk, ok := b.pending[key]
	if !ok {
		bk = &bucket[T]{first: time.Now()}
		b.pending[key] = bk
	}
	bk.items = append(bk.items, item)

	// Debounce since the last item, but never let the batch sit longer
	// than maxWait past its first item.
	delay := b.debounce
	if remaining := b.maxWait - time.Since(bk.first); remaining < delay {
		delay = remaining
	}
	if delay < 0 {
		delay = 0
	}

	if bk.timer != nil {
		bk.timer.Stop()
	}
	bk.timer = time.AfterFunc(delay, func() { b.fire(key) })
}

func (b *Batcher[T]) fire(key string) {
	b.mu.Lock()
	bk, ok := b.pending[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.pending, key)
	items := bk.items
	b.mu.Unlock()

	if len(items) > 0 {
		b.flush(key, items)
	}
}

// Flush synchronously drains one key, bypassing its timer. Used by tests
// and by session teardown.
func (b *Batcher[T]) Flush(key string) {
	b.mu.Lock()
	bk, ok := b.pending[key]
	if ok {
		delete(b.pending, key)
		if bk.timer != nil {
			bk.timer.Stop()
		}
	}
	b.mu.Unlock()

	if ok && len(bk.items) > 0 {
		b.flush(key, bk.items)
	}
}

// Close stops all timers and drains every pending key.
func (b *Batcher[T]) Close() {
	b.mu.Lock()
	b.closed = true
	remaining := b.pending
	b.pending = make(map[string]*bucket[T])
	b.mu.Unlock()

	for key, bk := range remaining {
		if bk.timer != nil {
			bk.timer.Stop()
		}
		if len(bk.items) > 0 {
			b.flush(key, bk.items)
		}
	}
}
