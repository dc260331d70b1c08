package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridsight/infra-analytics/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "infra-analytics",
	Short: "Geospatial time-series store for infrastructure analytics",
	Long:  "Stores typed metric records tagged with geometry, timestamp, and scenario version; serves range, spatial, and proximity queries plus trend estimates.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
