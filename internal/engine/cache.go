package engine

import (
	"container/list"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/arijanluiken/tradescript/internal/ast"
)

// programCache keeps the most recently used parsed programs keyed by the
// xxh3 hash of their source. Programs are immutable once parsed, so a cached
// program may be executed by several interpreters at once.
type programCache struct {
	mu      sync.Mutex
	size    int
	order   *list.List
	entries map[uint64]*list.Element

	hits   int
	misses int
}

type cacheEntry struct {
	key     uint64
	source  string
	program *ast.Program
}

func newProgramCache(size int) *programCache {
	return &programCache{
		size:    size,
		order:   list.New(),
		entries: make(map[uint64]*list.Element),
	}
}

func (c *programCache) get(source string) (*ast.Program, bool) {
	if c.size <= 0 {
		return nil, false
	}
	key := xxh3.HashString(source)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	// a hash collision must not return another script's program
	if !ok || el.Value.(*cacheEntry).source != source {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).program, true
}

func (c *programCache) put(source string, program *ast.Program) {
	if c.size <= 0 {
		return
	}
	key := xxh3.HashString(source)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = &cacheEntry{key: key, source: source, program: program}
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, source: source, program: program})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// CacheStats reports program cache usage
type CacheStats struct {
	Size   int `json:"size"`
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
}

func (c *programCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: c.order.Len(), Hits: c.hits, Misses: c.misses}
}
