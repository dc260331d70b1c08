package query

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsight/infra-analytics/internal/model"
	"github.com/gridsight/infra-analytics/internal/store"
)

// stubStore returns canned records or a canned error for every read method.
type stubStore struct {
	records    []model.AnalyticsRecord
	err        error
	rangeCalls int
}

func (s *stubStore) Insert(context.Context, *model.AnalyticsRecord) error { return s.err }

func (s *stubStore) ByTypeAndTimeRange(context.Context, model.DataType, time.Time, time.Time) ([]model.AnalyticsRecord, error) {
	s.rangeCalls++
	return s.records, s.err
}

func (s *stubStore) WithinBounds(context.Context, store.BBox, model.DataType) ([]model.AnalyticsRecord, error) {
	return s.records, s.err
}

func (s *stubStore) NearPoint(context.Context, float64, float64, float64, model.DataType) ([]store.RecordDistance, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]store.RecordDistance, len(s.records))
	for i, r := range s.records {
		out[i] = store.RecordDistance{Record: r}
	}
	return out, nil
}

func (s *stubStore) LatestForEntity(context.Context, string, model.DataType) (*model.AnalyticsRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.records) == 0 {
		return nil, nil
	}
	return &s.records[0], nil
}

func (s *stubStore) ResolveScenario(context.Context, string, time.Time) (*model.AnalyticsRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.records) == 0 {
		return nil, nil
	}
	return &s.records[0], nil
}

func (s *stubStore) HistoryForEntity(context.Context, string, model.DataType, int) ([]model.AnalyticsRecord, error) {
	return s.records, s.err
}

func (s *stubStore) CountByType(context.Context) (map[model.DataType]int64, error) {
	return nil, s.err
}

func (s *stubStore) DeleteOlderThan(context.Context, time.Time, int) (int64, error) {
	return 0, s.err
}

func (s *stubStore) Migrate(context.Context) error { return nil }
func (s *stubStore) Close() error                  { return nil }

// flakyCache fails every operation, to prove aggregation degrades to a scan.
type flakyCache struct{}

func (flakyCache) Get(context.Context, string) ([]byte, error) {
	return nil, eris.New("cache down")
}
func (flakyCache) Set(context.Context, string, []byte, time.Duration) error {
	return eris.New("cache down")
}
func (flakyCache) Expire(context.Context, string, time.Duration) error {
	return eris.New("cache down")
}
func (flakyCache) Exists(context.Context, string) (bool, error) {
	return false, eris.New("cache down")
}

// memCache is a minimal map-backed cache that ignores TTL.
type memCache struct {
	data map[string][]byte
	gets int
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.gets++
	return c.data[key], nil
}
func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}
func (c *memCache) Expire(context.Context, string, time.Duration) error { return nil }
func (c *memCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.data[key]
	return ok, nil
}

func costRecord(id string, ts time.Time, operational string) model.AnalyticsRecord {
	loc, _ := model.NewPoint(-74.0060, 40.7128)
	return model.AnalyticsRecord{
		ID:         id,
		DataType:   model.DataTypeCostAnalysis,
		Location:   loc,
		Timestamp:  ts,
		TimePeriod: model.PeriodMonthly,
		ProjectID:  "proj-1",
		Version:    1,
		Metadata:   model.Metadata{Source: "erp", Quality: model.QualityHigh, LastUpdated: ts},
		CreatedBy:  "tester",
		Payload: &model.CostAnalysis{
			OperationalCosts: decimal.RequireFromString(operational),
		},
	}
}

func TestByTypeAndTimeRangeValidation(t *testing.T) {
	e := New(&stubStore{}, nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	tests := []struct {
		name       string
		dt         model.DataType
		start, end time.Time
	}{
		{"unknown data type", "load_forecast", start, end},
		{"zero start", model.DataTypeCostAnalysis, time.Time{}, end},
		{"zero end", model.DataTypeCostAnalysis, start, time.Time{}},
		{"inverted range", model.DataTypeCostAnalysis, end, start},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ByTypeAndTimeRange(context.Background(), tt.dt, tt.start, tt.end)
			assert.True(t, model.IsMalformedQuery(err))
		})
	}
}

func TestWithinBoundsValidation(t *testing.T) {
	e := New(&stubStore{}, nil)

	_, err := e.WithinBounds(context.Background(), store.BBox{SWLon: 10, SWLat: 10, NELon: 5, NELat: 20}, "")
	assert.True(t, model.IsMalformedQuery(err))

	_, err = e.WithinBounds(context.Background(), store.BBox{SWLon: -200, NELon: 0, SWLat: 0, NELat: 10}, "")
	assert.True(t, model.IsMalformedQuery(err))

	_, err = e.WithinBounds(context.Background(), store.BBox{SWLon: 0, NELon: 1, SWLat: 0, NELat: 1}, "bogus")
	assert.True(t, model.IsMalformedQuery(err))
}

func TestNearPointValidation(t *testing.T) {
	e := New(&stubStore{}, nil)

	_, err := e.NearPoint(context.Background(), 200, 0, 10, "")
	assert.True(t, model.IsMalformedQuery(err))

	_, err = e.NearPoint(context.Background(), 0, 0, 0, "")
	assert.True(t, model.IsMalformedQuery(err))

	_, err = e.NearPoint(context.Background(), 0, 0, -5, "")
	assert.True(t, model.IsMalformedQuery(err))
}

func TestLatestForEntityValidation(t *testing.T) {
	e := New(&stubStore{}, nil)

	_, err := e.LatestForEntity(context.Background(), "", "")
	assert.True(t, model.IsMalformedQuery(err))
}

func TestResolveScenarioValidation(t *testing.T) {
	e := New(&stubStore{}, nil)

	_, err := e.ResolveScenario(context.Background(), "", time.Now())
	assert.True(t, model.IsMalformedQuery(err))

	_, err = e.ResolveScenario(context.Background(), "base", time.Time{})
	assert.True(t, model.IsMalformedQuery(err))
}

func TestStoreDeadlineBecomesTimeout(t *testing.T) {
	e := New(&stubStore{err: context.DeadlineExceeded}, nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := e.ByTypeAndTimeRange(context.Background(), model.DataTypeCostAnalysis, start, start.Add(time.Hour))
	assert.True(t, model.IsTimeout(err))
}

func TestStoreFailureBecomesUnavailable(t *testing.T) {
	e := New(&stubStore{err: eris.New("connection refused")}, nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := e.ByTypeAndTimeRange(context.Background(), model.DataTypeCostAnalysis, start, start.Add(time.Hour))
	assert.True(t, model.IsUnavailable(err))
}

func TestValidationErrorPassesThrough(t *testing.T) {
	ve := model.ValidationError{Field: "version", Constraint: "must not regress"}
	e := New(&stubStore{err: ve}, nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := e.ByTypeAndTimeRange(context.Background(), model.DataTypeCostAnalysis, start, start.Add(time.Hour))
	var got model.ValidationError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "version", got.Field)
}

func TestAggregateRangeExactDecimals(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := &stubStore{records: []model.AnalyticsRecord{
		costRecord("a", start, "0.1"),
		costRecord("b", start.Add(time.Hour), "0.2"),
		costRecord("c", start.Add(2*time.Hour), "0.3"),
	}}
	e := New(st, nil)

	agg, err := e.AggregateRange(context.Background(), model.DataTypeCostAnalysis, start, start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, agg.Count)
	assert.Equal(t, "0.6", agg.Sum.String())
	assert.Equal(t, "0.2", agg.Mean.String())
	assert.Equal(t, "0.1", agg.Min.String())
	assert.Equal(t, "0.3", agg.Max.String())
}

func TestAggregateRangeCacheHitSkipsStore(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := &stubStore{records: []model.AnalyticsRecord{costRecord("a", start, "5")}}
	c := newMemCache()
	e := New(st, c)

	first, err := e.AggregateRange(context.Background(), model.DataTypeCostAnalysis, start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, st.rangeCalls)

	second, err := e.AggregateRange(context.Background(), model.DataTypeCostAnalysis, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, st.rangeCalls, "second call should be served from cache")
	assert.Equal(t, first.Sum.String(), second.Sum.String())
	assert.Equal(t, first.Count, second.Count)
}

func TestAggregateRangeSurvivesFailingCache(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := &stubStore{records: []model.AnalyticsRecord{
		costRecord("a", start, "1.5"),
		costRecord("b", start, "2.5"),
	}}
	e := New(st, flakyCache{})

	agg, err := e.AggregateRange(context.Background(), model.DataTypeCostAnalysis, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "4", agg.Sum.String())
	assert.Equal(t, "2", agg.Mean.String())
}

func TestAggregateRangeValidation(t *testing.T) {
	e := New(&stubStore{}, nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := e.AggregateRange(context.Background(), "bogus", start, start.Add(time.Hour))
	assert.True(t, model.IsMalformedQuery(err))

	_, err = e.AggregateRange(context.Background(), model.DataTypeCostAnalysis, start.Add(time.Hour), start)
	assert.True(t, model.IsMalformedQuery(err))
}

func TestAggregateRangeEmpty(t *testing.T) {
	e := New(&stubStore{}, nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	agg, err := e.AggregateRange(context.Background(), model.DataTypeCostAnalysis, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, agg.Count)
	assert.True(t, agg.Sum.IsZero())
}
