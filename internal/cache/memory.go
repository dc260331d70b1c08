package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Memory is a concurrent-safe in-process cache with LRU eviction and TTL
// expiration. It backs deployments that have no Redis available.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	hits       atomic.Int64
	misses     atomic.Int64
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemory creates a Memory cache holding at most maxEntries values. A
// non-positive maxEntries means unbounded: entries only leave via TTL.
func NewMemory(maxEntries int) *Memory {
	return &Memory{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
	}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses.Add(1)
		return nil, nil
	}

	// Move to back (most recently used).
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	return entry.data, nil
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = &memoryEntry{data: value, expiresAt: time.Now().Add(ttl)}
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return nil
	}

	// Evict from front if at capacity.
	if c.maxEntries > 0 {
		for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
	}

	c.entries[key] = &memoryEntry{data: value, expiresAt: time.Now().Add(ttl)}
	c.order = append(c.order, key)
	return nil
}

func (c *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		// An already-expired entry is gone, not revivable.
		if time.Now().After(entry.expiresAt) {
			delete(c.entries, key)
			c.removeFromOrder(key)
			return nil
		}
		entry.expiresAt = time.Now().Add(ttl)
	}
	return nil
}

func (c *Memory) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return false, nil
	}
	return true, nil
}

// Stats returns cache performance counters.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

func (c *Memory) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
