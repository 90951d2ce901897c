package resilience

import (
	"context"
	"sync"
	"time"
)

// DefaultRequestsPerMinute is the pacing applied to classes registered
// without an explicit rate.
const DefaultRequestsPerMinute = 60

// PacerConfig configures a pacer.
type PacerConfig struct {
	// RequestsPerMinute is the maximum dispatch rate.
	// Default: 60 (one dispatch per second)
	RequestsPerMinute int
}

// Pacer enforces a minimum interval between dispatches. Unlike a token
// bucket there is no burst allowance: every admitted call is scheduled at
// least 60s/RequestsPerMinute after the previous one.
type Pacer struct {
	interval time.Duration

	mu     sync.Mutex
	nextAt time.Time
}

// NewPacer creates a new pacer.
func NewPacer(config PacerConfig) *Pacer {
	// Apply defaults
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultRequestsPerMinute
	}

	return &Pacer{
		interval: time.Minute / time.Duration(config.RequestsPerMinute),
	}
}

// Interval returns the minimum spacing between dispatches.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Acquire blocks until this caller's dispatch slot arrives or the context
// is cancelled. Slots are claimed under the lock, so spacing holds even
// when many callers arrive at once; the wait itself happens outside the
// lock so callers only serialize on the clock arithmetic.
func (p *Pacer) Acquire(ctx context.Context) error {
	p.mu.Lock()
	now := time.Now()
	slot := p.nextAt
	if slot.Before(now) {
		slot = now
	}
	p.nextAt = slot.Add(p.interval)
	p.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PacerGroup holds one pacer per operation class.
type PacerGroup struct {
	mu     sync.RWMutex
	pacers map[string]*Pacer
}

// NewPacerGroup creates a group with the given per-class rates. Classes
// acquired without prior registration are created lazily at
// DefaultRequestsPerMinute.
func NewPacerGroup(ratesPerMinute map[string]int) *PacerGroup {
	g := &PacerGroup{pacers: make(map[string]*Pacer, len(ratesPerMinute))}
	for class, rpm := range ratesPerMinute {
		g.pacers[class] = NewPacer(PacerConfig{RequestsPerMinute: rpm})
	}
	return g
}

// Acquire blocks until the class's dispatch slot arrives.
func (g *PacerGroup) Acquire(ctx context.Context, class string) error {
	return g.pacer(class).Acquire(ctx)
}

// Interval returns the spacing for a class.
func (g *PacerGroup) Interval(class string) time.Duration {
	return g.pacer(class).Interval()
}

func (g *PacerGroup) pacer(class string) *Pacer {
	g.mu.RLock()
	p, ok := g.pacers[class]
	g.mu.RUnlock()

	if ok {
		return p
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if p, ok = g.pacers[class]; ok {
		return p
	}

	p = NewPacer(PacerConfig{})
	g.pacers[class] = p
	return p
}
