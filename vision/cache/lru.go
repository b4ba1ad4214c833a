package cache

import (
	"container/list"
	"fmt"
	"sync"
)

// LRU holds decoded samples keyed by source path, evicting the least
// recently used entry once MaxSize entries are stored. A MaxSize of zero
// disables caching.
type LRU struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List
	maxSize int

	hits   int64
	misses int64
}

type entry struct {
	key  string
	data []float64
}

func NewLRU(maxSize int) *LRU {
	if maxSize < 0 {
		maxSize = 0
	}
	return &LRU{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Get returns the cached data for key. Callers must not modify it.
func (c *LRU) Get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.hits++
		return elem.Value.(*entry).data, true
	}
	c.misses++
	return nil, false
}

// Put stores data under key, replacing any previous value.
func (c *LRU) Put(key string, data []float64) {
	if c.maxSize == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry).data = data
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&entry{key: key, data: data})
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry. Statistics are kept.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Size: c.order.Len(), MaxSize: c.maxSize, Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total) * 100
	}
	return s
}

// Stats holds cache statistics
type Stats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
	HitRate float64
}

func (s Stats) String() string {
	return fmt.Sprintf("Cache: %d/%d items, Hits: %d, Misses: %d, Hit Rate: %.1f%%",
		s.Size, s.MaxSize, s.Hits, s.Misses, s.HitRate)
}
