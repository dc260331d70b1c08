// Package retention prunes records past a configured age. The sweep is a
// maintenance task: it runs in the background, deletes in small paced
// batches, and never holds the read or write paths.
package retention

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gridsight/infra-analytics/internal/store"
)

// Config controls the sweep. Retention is off by default; a zero MaxAge
// disables the sweeper entirely.
type Config struct {
	MaxAge    time.Duration
	Interval  time.Duration
	BatchSize int
	// BatchesPerSecond paces deletes so a large backlog cannot starve
	// concurrent scans. Zero means unpaced.
	BatchesPerSecond float64
}

// Sweeper deletes expired records on a timer.
type Sweeper struct {
	store   store.Store
	cfg     Config
	limiter *rate.Limiter
}

// New creates a Sweeper. Returns nil if retention is disabled.
func New(st store.Store, cfg Config) *Sweeper {
	if cfg.MaxAge <= 0 {
		return nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.BatchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.BatchesPerSecond), 1)
	}
	return &Sweeper{store: st, cfg: cfg, limiter: limiter}
}

// Run sweeps on every interval tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				zap.L().Warn("retention: sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce deletes all records older than MaxAge in paced batches and
// returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.MaxAge)

	var total int64
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return total, eris.Wrap(err, "retention: wait for pace")
		}
		n, err := s.store.DeleteOlderThan(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return total, eris.Wrap(err, "retention: delete batch")
		}
		total += n
		if n < int64(s.cfg.BatchSize) {
			break
		}
	}

	if total > 0 {
		zap.L().Info("retention: sweep complete",
			zap.Int64("deleted", total),
			zap.Time("cutoff", cutoff),
		)
	}
	return total, nil
}
