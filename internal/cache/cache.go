// Package cache provides the result cache that sits in front of context
// assembly, avoiding recomputation of memory views between writes.
package cache

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Cache is the caching contract the agent manager consumes. Implemented
// by the in-process ResultCache and the Redis-backed SharedCache.
type Cache interface {
	GetContext(agent, topic string) (string, bool)
	PutContext(agent, topic, context string)
	GetMemoryView(agent, topic, timeFilter string) ([]byte, bool)
	PutMemoryView(agent, topic, timeFilter string, data []byte)
	// InvalidateAgent drops every entry that could belong to the agent
	// and returns how many were dropped.
	InvalidateAgent(agent string) int
	Clear()
}

type entry[V any] struct {
	value    V
	accessed uint64
}

// ResultCache is a thread-safe result cache with approximate LRU
// eviction. Two independent maps (assembled contexts and memory views)
// share one mutex and one monotonically increasing access counter;
// eviction removes the least-recently-accessed entry of the map being
// inserted into, ties broken by map iteration.
//
// Disabled caches are total no-ops: every get misses, every put does
// nothing.
type ResultCache struct {
	maxSize int
	enabled bool

	mu       sync.Mutex
	counter  uint64
	contexts map[uint64]entry[string]
	views    map[uint64]entry[[]byte]
}

// New creates a ResultCache holding at most maxSize entries per map.
func New(maxSize int, enabled bool) *ResultCache {
	if maxSize <= 0 {
		maxSize = 128
	}
	return &ResultCache{
		maxSize:  maxSize,
		enabled:  enabled,
		contexts: make(map[uint64]entry[string]),
		views:    make(map[uint64]entry[[]byte]),
	}
}

// key builds a deterministic digest of the call arguments.
func key(parts ...string) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		d.WriteString(strconv.Itoa(len(p)))
		d.WriteString("|")
		d.WriteString(p)
	}
	return d.Sum64()
}

// GetContext returns a cached assembled context, bumping its recency.
func (c *ResultCache) GetContext(agent, topic string) (string, bool) {
	if !c.enabled {
		return "", false
	}
	k := key("context", agent, topic)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.contexts[k]
	if !ok {
		return "", false
	}
	c.counter++
	e.accessed = c.counter
	c.contexts[k] = e
	return e.value, true
}

// PutContext caches an assembled context, evicting the least recently
// accessed context entry if the map is full.
func (c *ResultCache) PutContext(agent, topic, context string) {
	if !c.enabled {
		return
	}
	k := key("context", agent, topic)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.contexts[k]; !exists && len(c.contexts) >= c.maxSize {
		evictLRU(c.contexts)
	}
	c.counter++
	c.contexts[k] = entry[string]{value: context, accessed: c.counter}
}

// GetMemoryView returns a cached memory view payload.
func (c *ResultCache) GetMemoryView(agent, topic, timeFilter string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}
	k := key("memory", agent, topic, timeFilter)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.views[k]
	if !ok {
		return nil, false
	}
	c.counter++
	e.accessed = c.counter
	c.views[k] = e
	return e.value, true
}

// PutMemoryView caches a memory view payload.
func (c *ResultCache) PutMemoryView(agent, topic, timeFilter string, data []byte) {
	if !c.enabled {
		return
	}
	k := key("memory", agent, topic, timeFilter)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.views[k]; !exists && len(c.views) >= c.maxSize {
		evictLRU(c.views)
	}
	c.counter++
	c.views[k] = entry[[]byte]{value: data, accessed: c.counter}
}

// InvalidateAgent clears both maps entirely. Keys are digests, so entries
// cannot be attributed to a single agent; the blunt full clear
// over-invalidates but never serves stale data.
func (c *ResultCache) InvalidateAgent(agent string) int {
	if !c.enabled {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.contexts) + len(c.views)
	clear(c.contexts)
	clear(c.views)
	return n
}

// Clear empties the cache and resets the access counter.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.contexts)
	clear(c.views)
	c.counter = 0
}

// Stats reports entry counts for observability endpoints.
type Stats struct {
	ContextEntries int  `json:"context_entries"`
	MemoryEntries  int  `json:"memory_entries"`
	TotalEntries   int  `json:"total_entries"`
	MaxSize        int  `json:"max_size"`
	Enabled        bool `json:"enabled"`
}

// Stats returns a snapshot of the cache's occupancy.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		ContextEntries: len(c.contexts),
		MemoryEntries:  len(c.views),
		TotalEntries:   len(c.contexts) + len(c.views),
		MaxSize:        c.maxSize,
		Enabled:        c.enabled,
	}
}

func evictLRU[V any](m map[uint64]entry[V]) {
	var (
		lruKey uint64
		lruAcc uint64
		found  bool
	)
	for k, e := range m {
		if !found || e.accessed < lruAcc {
			lruKey, lruAcc, found = k, e.accessed, true
		}
	}
	if found {
		delete(m, lruKey)
	}
}
