package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridsight/infra-analytics/internal/retention"
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Run one retention sweep and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if !cfg.Retention.Enabled {
			return eris.New("retention is disabled; set INFRA_RETENTION_ENABLED=true")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sweeper := retention.New(env.Store, retention.Config{
			MaxAge:           time.Duration(cfg.Retention.MaxAgeDays) * 24 * time.Hour,
			Interval:         time.Duration(cfg.Retention.IntervalMins) * time.Minute,
			BatchSize:        cfg.Retention.BatchSize,
			BatchesPerSecond: cfg.Retention.BatchesPerSecond,
		})
		if sweeper == nil {
			return eris.New("retention max age must be positive")
		}

		deleted, err := sweeper.SweepOnce(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("retention sweep complete", zap.Int64("deleted", deleted))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retentionCmd)
}
