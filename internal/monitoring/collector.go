// Package monitoring gathers point-in-time operational snapshots of the
// analytics store.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gridsight/infra-analytics/internal/cache"
	"github.com/gridsight/infra-analytics/internal/model"
	"github.com/gridsight/infra-analytics/internal/store"
)

// Snapshot holds a point-in-time view of store health.
type Snapshot struct {
	RecordCounts map[model.DataType]int64 `json:"record_counts"`
	TotalRecords int64                    `json:"total_records"`
	CacheStats   *cache.Stats             `json:"cache_stats,omitempty"`
	CollectedAt  time.Time                `json:"collected_at"`
}

// Collector gathers metrics from the store and, when available, the cache.
type Collector struct {
	store store.Store
	cache cache.Cache
}

// NewCollector creates a metrics collector. cache may be nil.
func NewCollector(st store.Store, c cache.Cache) *Collector {
	return &Collector{store: st, cache: c}
}

// Collect gathers a snapshot of record counts and cache effectiveness.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	counts, err := c.store.CountByType(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count by type")
	}

	snap := &Snapshot{
		RecordCounts: counts,
		CollectedAt:  time.Now().UTC(),
	}
	for _, n := range counts {
		snap.TotalRecords += n
	}

	if sp, ok := c.cache.(cache.StatsProvider); ok {
		stats := sp.Stats()
		snap.CacheStats = &stats
	}

	return snap, nil
}
