// Package store persists analytics records and serves the four read patterns:
// type+time range, bounding-box containment, radius proximity, and
// latest-for-entity, plus scenario/version resolution.
package store

import (
	"context"
	"time"

	"github.com/gridsight/infra-analytics/internal/model"
)

// BBox is an axis-aligned bounding box in lon/lat. Containment is tested as
// exact planar inclusion of the record's representative coordinate, inclusive
// on all edges. This is deliberately not geodesic-corrected; points near the
// antimeridian or poles may be mis-included or excluded.
type BBox struct {
	SWLon float64 `json:"sw_lon"`
	SWLat float64 `json:"sw_lat"`
	NELon float64 `json:"ne_lon"`
	NELat float64 `json:"ne_lat"`
}

// Contains reports whether the lon/lat falls inside the box, inclusive.
func (b BBox) Contains(lon, lat float64) bool {
	return lon >= b.SWLon && lon <= b.NELon && lat >= b.SWLat && lat <= b.NELat
}

// RecordDistance pairs a record with its geodesic distance from a query point.
type RecordDistance struct {
	Record     model.AnalyticsRecord `json:"record"`
	DistanceKm float64               `json:"distance_km"`
}

// Store is the persistence contract. Records are insert-only: a correction is
// a new version, never a mutation. All read methods are safe to run
// concurrently with inserts and with each other, honor ctx deadlines, and
// treat "no match" as an empty result rather than an error.
//
// The optional dataType arguments narrow by metric family; the empty string
// means all types.
type Store interface {
	// Insert persists one validated record. Inserting a version lower than
	// the current maximum for the same scenario is rejected with a
	// ValidationError on "version".
	Insert(ctx context.Context, rec *model.AnalyticsRecord) error

	// ByTypeAndTimeRange returns records of one type with start <= timestamp
	// <= end, ascending by timestamp.
	ByTypeAndTimeRange(ctx context.Context, dt model.DataType, start, end time.Time) ([]model.AnalyticsRecord, error)

	// WithinBounds returns records whose representative coordinate falls
	// inside the box (planar, inclusive).
	WithinBounds(ctx context.Context, bbox BBox, dt model.DataType) ([]model.AnalyticsRecord, error)

	// NearPoint returns records within maxKm great-circle kilometers of the
	// point, nearest first.
	NearPoint(ctx context.Context, lon, lat, maxKm float64, dt model.DataType) ([]RecordDistance, error)

	// LatestForEntity returns the record with the maximum timestamp whose
	// project or infrastructure reference equals entityID. Nil when none.
	LatestForEntity(ctx context.Context, entityID string, dt model.DataType) (*model.AnalyticsRecord, error)

	// ResolveScenario returns the record for the scenario with the highest
	// version whose timestamp <= asOf; ties broken by version desc, then
	// timestamp desc. Nil when none qualifies.
	ResolveScenario(ctx context.Context, scenarioID string, asOf time.Time) (*model.AnalyticsRecord, error)

	// HistoryForEntity returns the most recent limit same-type records for
	// the entity, ascending by timestamp.
	HistoryForEntity(ctx context.Context, entityID string, dt model.DataType, limit int) ([]model.AnalyticsRecord, error)

	// CountByType returns record counts per data type.
	CountByType(ctx context.Context) (map[model.DataType]int64, error)

	// DeleteOlderThan removes up to limit records with timestamp < cutoff and
	// returns how many were removed. Used only by the retention sweep.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
