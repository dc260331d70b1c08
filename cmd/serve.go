package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridsight/infra-analytics/internal/api"
	"github.com/gridsight/infra-analytics/internal/retention"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analytics HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Retention.Enabled {
			sweeper := retention.New(env.Store, retention.Config{
				MaxAge:           time.Duration(cfg.Retention.MaxAgeDays) * 24 * time.Hour,
				Interval:         time.Duration(cfg.Retention.IntervalMins) * time.Minute,
				BatchSize:        cfg.Retention.BatchSize,
				BatchesPerSecond: cfg.Retention.BatchesPerSecond,
			})
			if sweeper != nil {
				go sweeper.Run(ctx)
			}
		}

		handler := api.NewRouter(env.Engine, env.Ingestor, env.Trends, env.Collector)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: handler,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
