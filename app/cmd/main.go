package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"jobsync/app/config"
	"jobsync/internal/infrastructure/metrics"
	"jobsync/internal/infrastructure/transport"
)

var rootCmd = &cobra.Command{
	Use:   "jobsync",
	Short: "Sync scraped job postings into MongoDB and serve them over HTTP",
	Long: `jobsync periodically pulls rows from the configured scraping source
(Octoparse or local fixtures), normalizes them into job postings and exposes
jobs, tasks and the scheduler over a JSON API.

Running without a subcommand is the same as "jobsync serve".`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic sync scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, syncCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel).With("app", cfg.App.Name, "env", cfg.App.Env)

	deps, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := deps.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	handler := transport.NewAPIHandler(deps.jobs, deps.tasks, deps.scheduler, logger.With("component", "http"))

	// Router and server
	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(r)
	recovered := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
	)(corsHandler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      recovered,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting metrics server", "addr", cfg.MetricsAddr)
		if err := metrics.StartMetricsServer(ctx, cfg.MetricsAddr); err != nil {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}

	logger.Info("stopping scheduler")
	deps.scheduler.Stop()

	logger.Info("service stopped")
	return nil
}

func runSync(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel).With("app", cfg.App.Name, "env", cfg.App.Env)

	deps, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	report, err := deps.scheduler.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	logger.Info("one-shot sync done",
		"tasks_discovered", report.TasksDiscovered,
		"tasks_processed", report.TasksProcessed,
		"tasks_completed", report.TasksCompleted,
		"tasks_failed", report.TasksFailed,
		"jobs_created", report.JobsCreated,
		"jobs_skipped", report.JobsSkipped,
	)
	return nil
}
