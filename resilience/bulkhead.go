package resilience

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum number of simultaneously in-flight
	// operations. Extra callers queue in FIFO order.
	// Default: 5
	MaxConcurrent int
}

// Bulkhead caps concurrent operations for one class. Waiters queue FIFO and
// a cancelled waiter leaves the queue without ever holding a slot.
type Bulkhead struct {
	config BulkheadConfig
	sem    *semaphore.Weighted

	mu    sync.Mutex
	inUse int
	peak  int
}

// NewBulkhead creates a new bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	// Apply defaults
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 5
	}

	return &Bulkhead{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
}

// WithSlot waits for a free slot, runs fn, and releases the slot on every
// exit path exactly once. Cancellation while queued returns ctx.Err()
// without consuming a slot.
func (b *Bulkhead) WithSlot(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return ErrNilOperation
	}

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	b.mu.Lock()
	b.inUse++
	if b.inUse > b.peak {
		b.peak = b.inUse
	}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.inUse--
		b.mu.Unlock()
		b.sem.Release(1)
	}()

	return fn(ctx)
}

// BulkheadMetrics contains bulkhead statistics.
type BulkheadMetrics struct {
	InUse         int
	Peak          int
	Available     int
	MaxConcurrent int
}

// Metrics returns current bulkhead metrics.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BulkheadMetrics{
		InUse:         b.inUse,
		Peak:          b.peak,
		Available:     b.config.MaxConcurrent - b.inUse,
		MaxConcurrent: b.config.MaxConcurrent,
	}
}

// BulkheadGroup holds one bulkhead per operation class.
type BulkheadGroup struct {
	mu        sync.RWMutex
	bulkheads map[string]*Bulkhead
}

// NewBulkheadGroup creates a group with the given per-class caps. Classes
// used without prior registration are created lazily with the default cap.
func NewBulkheadGroup(caps map[string]int) *BulkheadGroup {
	g := &BulkheadGroup{bulkheads: make(map[string]*Bulkhead, len(caps))}
	for class, max := range caps {
		g.bulkheads[class] = NewBulkhead(BulkheadConfig{MaxConcurrent: max})
	}
	return g
}

// WithSlot runs fn inside the class's bulkhead.
func (g *BulkheadGroup) WithSlot(ctx context.Context, class string, fn func(context.Context) error) error {
	return g.bulkhead(class).WithSlot(ctx, fn)
}

// Metrics returns metrics for a class.
func (g *BulkheadGroup) Metrics(class string) BulkheadMetrics {
	return g.bulkhead(class).Metrics()
}

func (g *BulkheadGroup) bulkhead(class string) *Bulkhead {
	g.mu.RLock()
	b, ok := g.bulkheads[class]
	g.mu.RUnlock()

	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok = g.bulkheads[class]; ok {
		return b
	}

	b = NewBulkhead(BulkheadConfig{})
	g.bulkheads[class] = b
	return b
}
