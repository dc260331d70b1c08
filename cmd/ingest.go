package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/gridsight/infra-analytics/internal/ingest"
	"github.com/gridsight/infra-analytics/internal/model"
	"github.com/gridsight/infra-analytics/internal/resilience"
)

var ingestFilePath string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest records from a JSON or YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := loadRecords(ingestFilePath)
		if err != nil {
			return err
		}
		zap.L().Info("ingesting records",
			zap.Int("count", len(recs)),
			zap.String("file", ingestFilePath),
		)

		results := ingestWithRetry(ctx, env.Ingestor, recs)

		var accepted, rejected int
		for _, res := range results {
			if res.Accepted {
				accepted++
				continue
			}
			rejected++
			for _, ve := range res.Errors {
				zap.L().Warn("record rejected",
					zap.String("id", res.ID),
					zap.String("violation", ve.Error()),
				)
			}
		}

		zap.L().Info("ingest complete",
			zap.Int("accepted", accepted),
			zap.Int("rejected", rejected),
		)
		if rejected > 0 {
			return eris.Errorf("%d of %d records rejected", rejected, len(recs))
		}
		return nil
	},
}

// ingestWithRetry processes records with bounded concurrency, retrying
// transient store failures per record. Results align positionally with recs.
func ingestWithRetry(ctx context.Context, ing *ingest.Ingestor, recs []*model.AnalyticsRecord) []ingest.Result {
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.Ingest.RetryAttempts
	retryCfg.OnRetry = func(attempt int, err error) {
		zap.L().Warn("retrying record ingest", zap.Int("attempt", attempt), zap.Error(err))
	}

	results := make([]ingest.Result, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Ingest.MaxConcurrent)

	for idx, rec := range recs {
		g.Go(func() error {
			err := resilience.Do(gctx, retryCfg, func(ctx context.Context) error {
				res, err := ing.Ingest(ctx, rec)
				if err != nil {
					return err
				}
				results[idx] = res
				return nil
			})
			if err != nil {
				results[idx] = ingest.Result{ID: rec.ID, Accepted: false, Errors: []model.ValidationError{{
					Field:      "record",
					Constraint: "store unavailable, retry later",
				}}}
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// loadRecords reads a record array from a JSON or YAML file. YAML documents
// are converted to JSON first so payload decoding stays in one place.
func loadRecords(path string) ([]*model.AnalyticsRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, eris.Wrapf(err, "parse yaml %s", path)
		}
		data, err = json.Marshal(doc)
		if err != nil {
			return nil, eris.Wrapf(err, "convert yaml %s", path)
		}
	}

	var recs []*model.AnalyticsRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, eris.Wrapf(err, "parse records %s", path)
	}
	if len(recs) == 0 {
		return nil, eris.Errorf("no records in %s", path)
	}
	return recs, nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFilePath, "file", "", "path to records file (required)")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}
