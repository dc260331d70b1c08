// Package ingest accepts analytics records from producers: validate, stamp,
// persist. Batches are not atomic; each record is accepted or rejected on its
// own so one bad reading never blocks a shipment.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gridsight/infra-analytics/internal/model"
	"github.com/gridsight/infra-analytics/internal/store"
	"github.com/gridsight/infra-analytics/internal/validate"
)

// Result reports the outcome for a single record.
type Result struct {
	ID       string                  `json:"id"`
	Accepted bool                    `json:"accepted"`
	Errors   []model.ValidationError `json:"errors,omitempty"`
}

// Ingestor validates and persists records.
type Ingestor struct {
	store       store.Store
	concurrency int
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithConcurrency bounds how many batch records are inserted in parallel.
func WithConcurrency(n int) Option {
	return func(i *Ingestor) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// New creates an Ingestor.
func New(st store.Store, opts ...Option) *Ingestor {
	ing := &Ingestor{store: st, concurrency: 4}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Ingest validates and persists one record. The core fields are immutable
// after this point; only metadata refresh passes touch the row again.
func (i *Ingestor) Ingest(ctx context.Context, rec *model.AnalyticsRecord) (Result, error) {
	stamp(rec)

	if errs := validate.Validate(rec); len(errs) > 0 {
		return Result{ID: rec.ID, Accepted: false, Errors: errs}, nil
	}

	if err := i.store.Insert(ctx, rec); err != nil {
		var ve model.ValidationError
		if errors.As(err, &ve) {
			return Result{ID: rec.ID, Accepted: false, Errors: []model.ValidationError{ve}}, nil
		}
		return Result{ID: rec.ID}, eris.Wrapf(err, "ingest: insert %s", rec.ID)
	}

	return Result{ID: rec.ID, Accepted: true}, nil
}

// IngestBatch processes records independently with bounded concurrency.
// Results are positionally aligned with the input. A storage failure on one
// record is reported in its slot without aborting the rest.
func (i *Ingestor) IngestBatch(ctx context.Context, recs []*model.AnalyticsRecord) []Result {
	results := make([]Result, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for idx, rec := range recs {
		g.Go(func() error {
			res, err := i.Ingest(gctx, rec)
			if err != nil {
				zap.L().Warn("ingest: record failed",
					zap.String("id", rec.ID),
					zap.Error(err),
				)
				res = Result{ID: rec.ID, Accepted: false, Errors: []model.ValidationError{{
					Field:      "record",
					Constraint: "store unavailable, retry later",
				}}}
			}
			results[idx] = res
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures land in their slot

	return results
}

func stamp(rec *model.AnalyticsRecord) {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Version == 0 {
		rec.Version = 1
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Metadata.LastUpdated.IsZero() {
		rec.Metadata.LastUpdated = now
	}
}
