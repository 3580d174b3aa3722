// File path: internal/cache/lru.go
package cache

import (
	"container/list"
	"sync"
)

type lruEntry struct {
	key   string
	value interface{}
}

// LRU is a fixed-capacity, concurrency-safe least-recently-used cache.
type LRU struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	ll       *list.List
}

func NewLRU(size int) *LRU {
	if size <= 0 {
		size = 64
	}
	return &LRU{
		capacity: size,
		items:    make(map[string]*list.Element, size),
		ll:       list.New(),
	}
}

func (c *LRU) Get(key string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.ll.MoveToFront(elem)
		return elem.Value.(lruEntry).value, true
	}
	return nil, false
}

func (c *LRU) Set(key string, value interface{}) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		elem.Value = lruEntry{key: key, value: value}
		c.ll.MoveToFront(elem)
		return
	}
	c.items[key] = c.ll.PushFront(lruEntry{key: key, value: value})
	if c.ll.Len() > c.capacity {
		if tail := c.ll.Back(); tail != nil {
			c.ll.Remove(tail)
			delete(c.items, tail.Value.(lruEntry).key)
		}
	}
}

func (c *LRU) Remove(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.ll.Remove(elem)
		delete(c.items, key)
	}
}

func (c *LRU) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRU) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.ll = list.New()
}
