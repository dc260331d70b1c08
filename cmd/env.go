package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gridsight/infra-analytics/internal/cache"
	"github.com/gridsight/infra-analytics/internal/ingest"
	"github.com/gridsight/infra-analytics/internal/monitoring"
	"github.com/gridsight/infra-analytics/internal/query"
	"github.com/gridsight/infra-analytics/internal/store"
	"github.com/gridsight/infra-analytics/internal/trend"
)

// appEnv bundles the wired application components for a command run.
type appEnv struct {
	Store     store.Store
	Cache     cache.Cache
	Engine    *query.Engine
	Ingestor  *ingest.Ingestor
	Trends    *trend.Estimator
	Collector *monitoring.Collector
}

// initEnv validates config and wires the store, cache, and services.
func initEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := newStore(ctx)
	if err != nil {
		return nil, err
	}

	c, err := newCache(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	est, err := trend.New(st, cfg.Trend.WindowSize, cfg.Trend.Epsilon)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &appEnv{
		Store: st,
		Cache: c,
		Engine: query.New(st, c,
			query.WithAggregateTTL(time.Duration(cfg.Cache.TTLSecs)*time.Second)),
		Ingestor:  ingest.New(st, ingest.WithConcurrency(cfg.Ingest.MaxConcurrent)),
		Trends:    est,
		Collector: monitoring.NewCollector(st, c),
	}
	return env, nil
}

func newStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newCache(ctx context.Context) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedis(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
	case "memory":
		return cache.NewMemory(cfg.Cache.MaxEntries), nil
	default:
		return cache.Noop{}, nil
	}
}

// Close releases the store and cache.
func (e *appEnv) Close() {
	if r, ok := e.Cache.(*cache.Redis); ok {
		if err := r.Close(); err != nil {
			zap.L().Warn("close cache", zap.Error(err))
		}
	}
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}
