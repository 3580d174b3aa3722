// File path: internal/context/cache.go
package context

import (
	"time"

	"github.com/nicodishanthj/vitaplan/internal/cache"
	"github.com/nicodishanthj/vitaplan/internal/knowledge"
)

type cacheEntry struct {
	passages  []knowledge.Passage
	expiresAt time.Time
}

// passageCache memoises search results for a short TTL. The LRU bounds how many
// lookups are held at once.
type passageCache struct {
	lru *cache.LRU
	ttl time.Duration
	now func() time.Time
}

func newPassageCache(ttl time.Duration, size int) *passageCache {
	if ttl <= 0 {
		return nil
	}
	return &passageCache{lru: cache.NewLRU(size), ttl: ttl, now: time.Now}
}

func (c *passageCache) get(key string) ([]knowledge.Passage, bool) {
	if c == nil {
		return nil, false
	}
	value, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	entry := value.(cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return clonePassages(entry.passages), true
}

func (c *passageCache) set(key string, passages []knowledge.Passage) {
	if c == nil {
		return
	}
	c.lru.Set(key, cacheEntry{passages: clonePassages(passages), expiresAt: c.now().Add(c.ttl)})
}

func (c *passageCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func clonePassages(in []knowledge.Passage) []knowledge.Passage {
	if in == nil {
		return nil
	}
	out := make([]knowledge.Passage, len(in))
	copy(out, in)
	return out
}
