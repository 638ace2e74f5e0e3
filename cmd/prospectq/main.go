// Command prospectq is the prospectq job-processing server binary.
//
// Subcommands:
//
//	serve   — HTTP API + embedded queue manager (default for production)
//	worker  — standalone queue manager only (no HTTP server)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Embeds the IANA timezone database in the binary so that
	// time.LoadLocation works inside distroless containers that have no
	// /usr/share/zoneinfo.
	_ "time/tzdata"

	// Automatically sets GOMEMLIMIT from the cgroup memory limit so that
	// the Go GC triggers before the OOM killer fires in containers.
	_ "github.com/KimMachineGun/automemlimit"

	"github.com/spf13/cobra"

	"github.com/mhagen/prospectq/internal/api"
	"github.com/mhagen/prospectq/internal/batch"
	"github.com/mhagen/prospectq/internal/config"
	"github.com/mhagen/prospectq/internal/manager"
	"github.com/mhagen/prospectq/internal/runner"
)

func main() {
	root := &cobra.Command{
		Use:   "prospectq",
		Short: "ProspectQ — background job scheduling and batch orchestration",
		// Silence default error printing; we print it ourselves with slog.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		serveCmd(),
		workerCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// ── serve ─────────────────────────────────────────────────────────────────────

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and embedded queue manager",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	r := runner.New()

	mgr, err := manager.New(r, manager.Config{
		PollInterval:    cfg.WorkerPollInterval,
		Retention:       cfg.CompletedRetention,
		JanitorInterval: cfg.JanitorInterval,
	})
	if err != nil {
		return fmt.Errorf("queue manager: %w", err)
	}

	// Start the embedded queue manager. Runs until ctx is cancelled, at
	// which point in-flight jobs complete and the goroutines exit — before
	// or alongside HTTP server shutdown.
	managerDone := make(chan struct{})
	go func() {
		mgr.Start(ctx)
		close(managerDone)
	}()

	orch := batch.New(r, cfg.BatchDeadline)
	handler := api.NewServer(mgr, orch).Handler()

	// Explicit timeouts to prevent Slowloris attacks. WriteTimeout is left
	// unset because /batches legitimately holds a response open up to the
	// batch deadline.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		stop() // release signal notification
	}

	slog.Info("shutting down", "timeout_seconds", cfg.ShutdownTimeoutSeconds)
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	// Wait for in-flight jobs to drain before exiting.
	select {
	case <-managerDone:
	case <-shutdownCtx.Done():
		slog.Warn("shutdown timeout reached before queue manager drained")
	}
	slog.Info("server stopped")
	return nil
}

// ── worker ────────────────────────────────────────────────────────────────────

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the standalone queue manager (no HTTP server)",
		RunE:  runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	mgr, err := manager.New(runner.New(), manager.Config{
		PollInterval:    cfg.WorkerPollInterval,
		Retention:       cfg.CompletedRetention,
		JanitorInterval: cfg.JanitorInterval,
	})
	if err != nil {
		return fmt.Errorf("queue manager: %w", err)
	}

	slog.Info("worker started")
	mgr.Start(ctx) // blocks until ctx cancelled, then drains in-flight jobs
	return nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// newLogger creates a slog.Logger based on the configured log level and format.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" || cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
