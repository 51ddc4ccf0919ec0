// Condenser server — segments large documents, fans the pieces out to a
// summarization backend, and merges the results, with real-time progress
// over WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/condenserhq/condenser/pkg/api"
	"github.com/condenserhq/condenser/pkg/cancellation"
	"github.com/condenserhq/condenser/pkg/cleanup"
	"github.com/condenserhq/condenser/pkg/config"
	"github.com/condenserhq/condenser/pkg/merger"
	"github.com/condenserhq/condenser/pkg/notifier"
	"github.com/condenserhq/condenser/pkg/progress"
	"github.com/condenserhq/condenser/pkg/provider"
	"github.com/condenserhq/condenser/pkg/scheduler"
	"github.com/condenserhq/condenser/pkg/segmenter"
	"github.com/condenserhq/condenser/pkg/store"
	"github.com/condenserhq/condenser/pkg/version"
)

const shutdownTimeout = 30 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	setupLogging()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting condenser",
		"version", version.Full(),
		"http_port", httpPort,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Summarization provider
	prov, err := provider.New(cfg.Provider)
	if err != nil {
		slog.Error("Failed to initialize provider", "error", err)
		os.Exit(1)
	}
	slog.Info("Provider initialized", "provider", prov.Name())

	// 3. Optional record persistence
	var st *store.Store
	if store.Enabled() {
		dbCfg, err := store.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		st, err = store.New(ctx, dbCfg)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := st.Close(); err != nil {
				slog.Error("Error closing database", "error", err)
			}
		}()
		slog.Info("Connected to PostgreSQL database", "host", dbCfg.Host, "database", dbCfg.Database)
	} else {
		slog.Info("Record persistence disabled; running memory-only")
	}

	// 4. Event bus and progress tracking
	hub := notifier.NewHub(cfg.Server.SubscriberBuffer, slog.Default())
	var progressSink progress.Sink
	if cfg.Batch.RealtimeUpdates() {
		progressSink = hub
	}
	tracker := progress.NewTracker(progressSink, cfg.Batch.UpdateInterval)

	// 5. Pipeline components
	control := cancellation.NewController(hub, cfg.Batch.CancellationAwait, slog.Default())
	m := merger.New(cfg.Merging, prov, slog.Default())
	seg := segmenter.New(cfg.Segmentation, prov, slog.Default())

	var recordSink scheduler.RecordStore
	if st != nil {
		recordSink = st
	}
	sched := scheduler.NewScheduler(cfg.Batch, prov, m, tracker, hub, control, recordSink, slog.Default())
	control.SetPartialHandler(sched)

	connManager := notifier.NewConnectionManager(hub, sched,
		cfg.Server.WriteTimeout, cfg.Server.HeartbeatInterval, slog.Default())

	// 6. Retention loop
	var cleanupRecords cleanup.RecordStore
	if st != nil {
		cleanupRecords = st
	}
	retention := cleanup.NewService(cfg.Retention, sched, cleanupRecords, slog.Default())
	retention.Start(ctx)

	// 7. HTTP server
	server := api.NewServer(cfg, seg, sched, hub, connManager, prov, st, slog.Default())
	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("Condenser started successfully")

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: stop accepting requests, then drain batches,
	// then tear down the bus.
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown incomplete", "error", err)
	}

	retention.Stop()

	if err := sched.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Scheduler shutdown incomplete", "error", err)
	}

	connManager.NotifySystemStatus("server shutting down")
	hub.Shutdown()

	slog.Info("Condenser stopped")
}
