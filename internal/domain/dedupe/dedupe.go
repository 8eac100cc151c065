// Package dedupe tracks keys that are currently claimed so the same unit of
// work is not scheduled twice while an earlier copy is still pending.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50_000

// Deduper records claimed keys.
type Deduper interface {
	// SeenAndRecord atomically checks if id is claimed and claims it if not.
	// Returns true if id was already claimed, false if it was newly claimed.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord releases a claim so the id can be scheduled again.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps claims in a map. In bounded mode the oldest claim is
// evicted once maxSize is reached; a lost claim only permits a duplicate.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = oldest claim
	maxSize int        // 0 or negative = unbounded
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]*list.Element)
	d.order = list.New()

	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}

	d.seen[id] = d.order.PushBack(id)
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, exists := d.seen[id]; exists {
		d.order.Remove(el)
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.seen, front.Value.(string))
	d.size.Add(-1)
}

// Size returns the current number of claims.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
