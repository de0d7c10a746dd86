package engine

import (
	"sync"
	"time"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// resultCache memoizes fused results per URL for a short TTL. It only
// guards against redundant concurrent probing of the same URL; it never
// alters fusion semantics.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result   plugin.CheckResult
	storedAt time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

// Get returns the cached result for url if it has not expired.
func (c *resultCache) Get(url string) (plugin.CheckResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[url]
	if !ok {
		return plugin.CheckResult{}, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		delete(c.entries, url)
		return plugin.CheckResult{}, false
	}
	return entry.result, true
}

// Put stores a result for url.
func (c *resultCache) Put(url string, result plugin.CheckResult) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = cacheEntry{result: result, storedAt: time.Now()}
}
