package identity

import (
	"sync"
	"time"
)

type cacheKey struct {
	chatID   string
	senderID string
	bucket   int64
}

type cacheEntry struct {
	verdict   Verdict
	expiresAt time.Time
}

// verdictCache is a size-bounded map with FIFO eviction. Entries carry their
// own expiry; reads past it are misses.
type verdictCache struct {
	mu         sync.Mutex
	entries    map[cacheKey]cacheEntry
	order      []cacheKey
	maxEntries int
}

func newVerdictCache(maxEntries int) *verdictCache {
	return &verdictCache{
		entries:    make(map[cacheKey]cacheEntry),
		maxEntries: maxEntries,
	}
}

func (c *verdictCache) get(k cacheKey, now time.Time) (Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok || !now.Before(e.expiresAt) {
		return Verdict{}, false
	}
	return e.verdict, true
}

func (c *verdictCache) put(k cacheKey, v Verdict, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[k]; !exists {
		c.order = append(c.order, k)
	}
	c.entries[k] = cacheEntry{verdict: v, expiresAt: expiresAt}

	for c.maxEntries > 0 && len(c.entries) > c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *verdictCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
