package retention

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsight/infra-analytics/internal/model"
	"github.com/gridsight/infra-analytics/internal/store"
)

// deleteStore hands out a fixed backlog in DeleteOlderThan-sized batches.
type deleteStore struct {
	remaining int64
	calls     int
	limits    []int
	err       error
}

func (s *deleteStore) DeleteOlderThan(_ context.Context, _ time.Time, limit int) (int64, error) {
	s.calls++
	s.limits = append(s.limits, limit)
	if s.err != nil {
		return 0, s.err
	}
	n := int64(limit)
	if s.remaining < n {
		n = s.remaining
	}
	s.remaining -= n
	return n, nil
}

func (s *deleteStore) Insert(context.Context, *model.AnalyticsRecord) error { return nil }
func (s *deleteStore) ByTypeAndTimeRange(context.Context, model.DataType, time.Time, time.Time) ([]model.AnalyticsRecord, error) {
	return nil, nil
}
func (s *deleteStore) WithinBounds(context.Context, store.BBox, model.DataType) ([]model.AnalyticsRecord, error) {
	return nil, nil
}
func (s *deleteStore) NearPoint(context.Context, float64, float64, float64, model.DataType) ([]store.RecordDistance, error) {
	return nil, nil
}
func (s *deleteStore) LatestForEntity(context.Context, string, model.DataType) (*model.AnalyticsRecord, error) {
	return nil, nil
}
func (s *deleteStore) ResolveScenario(context.Context, string, time.Time) (*model.AnalyticsRecord, error) {
	return nil, nil
}
func (s *deleteStore) HistoryForEntity(context.Context, string, model.DataType, int) ([]model.AnalyticsRecord, error) {
	return nil, nil
}
func (s *deleteStore) CountByType(context.Context) (map[model.DataType]int64, error) {
	return nil, nil
}
func (s *deleteStore) Migrate(context.Context) error { return nil }
func (s *deleteStore) Close() error                  { return nil }

func TestNewDisabledReturnsNil(t *testing.T) {
	assert.Nil(t, New(&deleteStore{}, Config{MaxAge: 0}))
	assert.Nil(t, New(&deleteStore{}, Config{MaxAge: -time.Hour}))
}

func TestNewAppliesDefaults(t *testing.T) {
	s := New(&deleteStore{}, Config{MaxAge: 24 * time.Hour})
	require.NotNil(t, s)
	assert.Equal(t, time.Hour, s.cfg.Interval)
	assert.Equal(t, 1000, s.cfg.BatchSize)
}

func TestSweepOnceDrainsBacklogInBatches(t *testing.T) {
	st := &deleteStore{remaining: 250}
	s := New(st, Config{MaxAge: 24 * time.Hour, BatchSize: 100})
	require.NotNil(t, s)

	total, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(250), total)
	// Two full batches, then a short batch of 50 ends the loop.
	assert.Equal(t, 3, st.calls)
	assert.Equal(t, []int{100, 100, 100}, st.limits)
}

func TestSweepOnceEmptyBacklog(t *testing.T) {
	st := &deleteStore{}
	s := New(st, Config{MaxAge: 24 * time.Hour, BatchSize: 100})

	total, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, 1, st.calls)
}

func TestSweepOncePropagatesStoreError(t *testing.T) {
	st := &deleteStore{err: eris.New("disk full")}
	s := New(st, Config{MaxAge: 24 * time.Hour, BatchSize: 100})

	_, err := s.SweepOnce(context.Background())
	assert.Error(t, err)
}

func TestSweepOnceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := &deleteStore{remaining: 1000}
	// Pacing below one batch per second forces limiter.Wait to block, so the
	// cancelled context surfaces immediately.
	s := New(st, Config{MaxAge: 24 * time.Hour, BatchSize: 10, BatchesPerSecond: 0.001})

	_, err := s.SweepOnce(ctx)
	assert.Error(t, err)
	assert.LessOrEqual(t, st.calls, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	st := &deleteStore{}
	s := New(st, Config{MaxAge: 24 * time.Hour, Interval: 5 * time.Millisecond, BatchSize: 100})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
	assert.GreaterOrEqual(t, st.calls, 1)
}
