// Package cache defines the key-value collaborator the query engine consults
// for expensive aggregates. The engine is cache-aside: it must stay correct
// when the cache is absent or failing, so every implementation is swappable
// behind this interface and injected at construction.
package cache

import (
	"context"
	"time"
)

// Cache is the minimal key-value contract: get, set with TTL, expire, exists.
// Get returns (nil, nil) on a miss; errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// StatsProvider is implemented by caches that track hit/miss counters.
type StatsProvider interface {
	Stats() Stats
}

// Noop is a cache that never stores anything. Every Get is a miss.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, error)                  { return nil, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error     { return nil }
func (Noop) Expire(context.Context, string, time.Duration) error          { return nil }
func (Noop) Exists(context.Context, string) (bool, error)                 { return false, nil }
