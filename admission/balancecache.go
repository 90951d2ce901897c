package admission

import (
	"sync"
	"time"
)

// balanceCache is a short-TTL cache of ledger balance reads, keyed by user.
// It exists to absorb bursts of admission checks for the same user without
// hammering the ledger; entries are invalidated as soon as usage is
// recorded so a deduction is visible on the next check.
type balanceCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]*balanceEntry
}

type balanceEntry struct {
	remaining int64
	expiresAt time.Time
}

func newBalanceCache(ttl time.Duration) *balanceCache {
	return &balanceCache{
		ttl:     ttl,
		entries: make(map[string]*balanceEntry),
	}
}

// get retrieves a cached balance. Returns (0, false) on miss or expiry.
func (c *balanceCache) get(userID string) (int64, bool) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok {
		return 0, false
	}

	if time.Now().After(entry.expiresAt) {
		// Expired - clean up lazily
		c.mu.Lock()
		delete(c.entries, userID)
		c.mu.Unlock()
		return 0, false
	}

	return entry.remaining, true
}

func (c *balanceCache) set(userID string, remaining int64) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	c.entries[userID] = &balanceEntry{
		remaining: remaining,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

func (c *balanceCache) invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}
