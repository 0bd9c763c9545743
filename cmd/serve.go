package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/httpapi"
	"github.com/jobintel/pipeline/internal/monitoring"
)

var (
	servePort    int
	serveCron    bool
	serveMonitor bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the browse/action HTTP API, optionally driving the cron scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if serveCron {
			if err := env.Scheduler.Start(ctx); err != nil {
				return eris.Wrap(err, "start scheduler")
			}
			defer env.Scheduler.Stop()
		}

		if serveMonitor {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				env.Notifier,
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		router := httpapi.NewRouter(env.Store, env.Notifier, cfg, zap.L())

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown error", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Bool("cron", serveCron))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveCron, "cron", true, "also run the scheduled ingest/digest cron loop")
	serveCmd.Flags().BoolVar(&serveMonitor, "monitor", true, "also run the background source-health checker")
	rootCmd.AddCommand(serveCmd)
}
