// Package query serves the read side of the analytics store: type+time-range
// scans, bounding-box containment, radius proximity, latest-for-entity,
// scenario resolution, and cached range aggregates.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gridsight/infra-analytics/internal/cache"
	"github.com/gridsight/infra-analytics/internal/model"
	"github.com/gridsight/infra-analytics/internal/numeric"
	"github.com/gridsight/infra-analytics/internal/store"
)

// Engine validates query input, delegates scans to the store, and maps
// failures into the query error taxonomy. The cache is injected, never
// global: substituting a no-op cache changes latency, not answers.
type Engine struct {
	store  store.Store
	cache  cache.Cache
	aggTTL time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithAggregateTTL sets how long cached aggregates live.
func WithAggregateTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.aggTTL = ttl
		}
	}
}

// New creates a query engine. A nil cache falls back to no-op.
func New(st store.Store, c cache.Cache, opts ...Option) *Engine {
	if c == nil {
		c = cache.Noop{}
	}
	e := &Engine{store: st, cache: c, aggTTL: 5 * time.Minute}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ByTypeAndTimeRange returns records of one type with start <= timestamp <=
// end, ascending by timestamp.
func (e *Engine) ByTypeAndTimeRange(ctx context.Context, dt model.DataType, start, end time.Time) ([]model.AnalyticsRecord, error) {
	if !dt.Valid() {
		return nil, model.NewMalformedQueryError("data_type", fmt.Sprintf("unknown data type %q", dt))
	}
	if start.IsZero() || end.IsZero() {
		return nil, model.NewMalformedQueryError("time_range", "start and end are required")
	}
	if end.Before(start) {
		return nil, model.NewMalformedQueryError("time_range", "end must not precede start")
	}

	recs, err := e.store.ByTypeAndTimeRange(ctx, dt, start, end)
	if err != nil {
		return nil, e.mapErr(ctx, "query: time range", err)
	}
	return recs, nil
}

// WithinBounds returns records whose representative coordinate falls inside
// the axis-aligned box, tested as exact planar containment. dt may be empty.
func (e *Engine) WithinBounds(ctx context.Context, bbox store.BBox, dt model.DataType) ([]model.AnalyticsRecord, error) {
	if dt != "" && !dt.Valid() {
		return nil, model.NewMalformedQueryError("data_type", fmt.Sprintf("unknown data type %q", dt))
	}
	if bbox.NELon < bbox.SWLon || bbox.NELat < bbox.SWLat {
		return nil, model.NewMalformedQueryError("bbox", "northeast corner must not be southwest of the southwest corner")
	}
	if bbox.SWLon < -180 || bbox.NELon > 180 || bbox.SWLat < -90 || bbox.NELat > 90 {
		return nil, model.NewMalformedQueryError("bbox", "corners out of lon/lat range")
	}

	recs, err := e.store.WithinBounds(ctx, bbox, dt)
	if err != nil {
		return nil, e.mapErr(ctx, "query: within bounds", err)
	}
	return recs, nil
}

// NearPoint returns records within maxDistanceKm great-circle kilometers of
// the point, nearest first. dt may be empty.
func (e *Engine) NearPoint(ctx context.Context, lon, lat, maxDistanceKm float64, dt model.DataType) ([]store.RecordDistance, error) {
	if dt != "" && !dt.Valid() {
		return nil, model.NewMalformedQueryError("data_type", fmt.Sprintf("unknown data type %q", dt))
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return nil, model.NewMalformedQueryError("point", "lon/lat out of range")
	}
	if maxDistanceKm <= 0 {
		return nil, model.NewMalformedQueryError("max_distance_km", "must be positive")
	}

	results, err := e.store.NearPoint(ctx, lon, lat, maxDistanceKm, dt)
	if err != nil {
		return nil, e.mapErr(ctx, "query: near point", err)
	}
	return results, nil
}

// LatestForEntity returns the single most recent record referencing the
// entity, or nil when no record matches. Absence is not an error.
func (e *Engine) LatestForEntity(ctx context.Context, entityID string, dt model.DataType) (*model.AnalyticsRecord, error) {
	if entityID == "" {
		return nil, model.NewMalformedQueryError("entity_id", "is required")
	}
	if dt != "" && !dt.Valid() {
		return nil, model.NewMalformedQueryError("data_type", fmt.Sprintf("unknown data type %q", dt))
	}

	rec, err := e.store.LatestForEntity(ctx, entityID, dt)
	if err != nil {
		return nil, e.mapErr(ctx, "query: latest for entity", err)
	}
	return rec, nil
}

// ResolveScenario returns the record for the scenario with the highest
// version whose timestamp <= asOf; ties broken by version descending, then
// timestamp descending. Nil when nothing qualifies.
func (e *Engine) ResolveScenario(ctx context.Context, scenarioID string, asOf time.Time) (*model.AnalyticsRecord, error) {
	if scenarioID == "" {
		return nil, model.NewMalformedQueryError("scenario_id", "is required")
	}
	if asOf.IsZero() {
		return nil, model.NewMalformedQueryError("as_of", "is required")
	}

	rec, err := e.store.ResolveScenario(ctx, scenarioID, asOf)
	if err != nil {
		return nil, e.mapErr(ctx, "query: resolve scenario", err)
	}
	return rec, nil
}

// Aggregate summarizes one metric family over a time range. All figures stay
// in decimal space, so summing ten thousand 0.1 readings yields exactly 1000.
type Aggregate struct {
	DataType model.DataType  `json:"data_type"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Count    int             `json:"count"`
	Sum      decimal.Decimal `json:"sum"`
	Mean     decimal.Decimal `json:"mean"`
	Min      decimal.Decimal `json:"min"`
	Max      decimal.Decimal `json:"max"`
}

// AggregateRange computes sum/mean/min/max of the primary metric over a
// type+time range. The result is cached cache-aside: a failing or absent
// cache degrades to a store scan, never to a wrong answer.
func (e *Engine) AggregateRange(ctx context.Context, dt model.DataType, start, end time.Time) (*Aggregate, error) {
	if !dt.Valid() {
		return nil, model.NewMalformedQueryError("data_type", fmt.Sprintf("unknown data type %q", dt))
	}
	if end.Before(start) {
		return nil, model.NewMalformedQueryError("time_range", "end must not precede start")
	}

	key := fmt.Sprintf("agg:%s:%d:%d", dt, start.UTC().Unix(), end.UTC().Unix())
	if data, err := e.cache.Get(ctx, key); err != nil {
		zap.L().Debug("query: aggregate cache get failed", zap.String("key", key), zap.Error(err))
	} else if data != nil {
		var agg Aggregate
		if err := json.Unmarshal(data, &agg); err == nil {
			return &agg, nil
		}
		zap.L().Debug("query: discarding undecodable cached aggregate", zap.String("key", key))
	}

	recs, err := e.store.ByTypeAndTimeRange(ctx, dt, start, end)
	if err != nil {
		return nil, e.mapErr(ctx, "query: aggregate range", err)
	}

	vals := make([]decimal.Decimal, 0, len(recs))
	for _, r := range recs {
		if r.Payload != nil {
			vals = append(vals, r.Payload.PrimaryMetric())
		}
	}
	agg := &Aggregate{
		DataType: dt,
		Start:    start.UTC(),
		End:      end.UTC(),
		Count:    len(vals),
		Sum:      numeric.Sum(vals),
		Mean:     numeric.Mean(vals),
		Min:      numeric.Min(vals),
		Max:      numeric.Max(vals),
	}

	if data, err := json.Marshal(agg); err == nil {
		if err := e.cache.Set(ctx, key, data, e.aggTTL); err != nil {
			zap.L().Debug("query: aggregate cache set failed", zap.String("key", key), zap.Error(err))
		}
	}

	return agg, nil
}

// mapErr folds store failures into the query error taxonomy: caller deadlines
// become TimeoutError (never a partial result), validation errors pass
// through, anything else is an opaque UnavailableError for the caller to
// retry.
func (e *Engine) mapErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.NewTimeoutError(op, err)
	}
	if errors.Is(err, context.Canceled) {
		return eris.Wrap(err, op)
	}
	var ve model.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return model.NewUnavailableError(eris.Wrap(err, op))
}
