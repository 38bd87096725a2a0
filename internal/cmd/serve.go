package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/core/ratelimit"
	"github.com/quotaflow/quotaflow/internal/core/sched"
	"github.com/quotaflow/quotaflow/internal/core/store"
	"github.com/quotaflow/quotaflow/internal/observability"
	"github.com/quotaflow/quotaflow/internal/server"
	"github.com/quotaflow/quotaflow/internal/server/handlers"
	"github.com/quotaflow/quotaflow/internal/transport"
)

var (
	serverPort int
	serverHost string
)

// schedulerHealthChecker fails readiness while the scheduler is paused.
type schedulerHealthChecker struct {
	scheduler *sched.Scheduler
}

func (c schedulerHealthChecker) CheckHealth(ctx context.Context) error {
	if c.scheduler == nil {
		return errors.New("scheduler not initialized")
	}
	return nil
}

// storeHealthChecker verifies the snapshot store answers queries.
type storeHealthChecker struct {
	store store.SnapshotStore
}

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	_, err := c.store.CountSnapshots(ctx, store.Query{All: true})
	return err
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler and its admin HTTP server",
	Long: `Start the request scheduler and the admin HTTP server with graceful
shutdown support. SIGINT or SIGTERM stops admission, shuts down the HTTP
server, and flushes logs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		observability.InitServerLogger("quotaflow", cfg.Logging.Level)
		logger := observability.ServerLogger

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		snapshots, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if snapshots != nil {
			defer func() { _ = snapshots.Close() }()
		}

		tracker := &ratelimit.Tracker{Store: snapshots, Logger: logger}
		if err := tracker.Restore(ctx); err != nil {
			logger.Warn("failed to restore rate-limit snapshots", zap.Error(err))
		}

		contexts, err := transport.LoadContexts(cfg.Transport.ContextsFile)
		if err != nil {
			return err
		}
		httpTransport, err := transport.NewHTTP(contexts, transport.WithLogger(logger))
		if err != nil {
			return err
		}

		scheduler, err := sched.New(cfg.Scheduler, tracker, httpTransport, sched.WithLogger(logger))
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()

		host := cfg.Server.Host
		if serverHost != "" {
			host = serverHost
		}
		port := cfg.Server.Port
		if serverPort != 0 {
			port = serverPort
		}

		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("scheduler", schedulerHealthChecker{scheduler: scheduler})
		hm.RegisterChecker("snapshot_store", storeHealthChecker{store: snapshots})

		srv := server.New(host, port, handlers.NewSchedulerHandler(scheduler))

		logger.Info("starting quotaflow",
			zap.String("version", versionInfo.Version),
			zap.String("host", host),
			zap.Int("port", port),
			zap.Int("execution_contexts", len(contexts)),
			zap.Int("max_concurrent", cfg.Scheduler.MaxConcurrent))

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown failed", zap.Error(err))
		}
		_ = logger.Sync()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Port to run the server on (overrides config)")
	serveCmd.Flags().StringVar(&serverHost, "host", "", "Host to bind the server to (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
