package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/watchpost/watchpost/internal/checker"
	"github.com/watchpost/watchpost/internal/config"
	"github.com/watchpost/watchpost/internal/events"
	"github.com/watchpost/watchpost/internal/incident"
	"github.com/watchpost/watchpost/internal/monitor"
	"github.com/watchpost/watchpost/internal/notifier"
	"github.com/watchpost/watchpost/internal/server"
	"github.com/watchpost/watchpost/internal/storage"
	"github.com/watchpost/watchpost/internal/token"
)

var version = "dev"

const alertSweepInterval = time.Minute

func main() {
	configPath := flag.String("config", "", "path to configuration file (optional)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("watchpost %s\n", version)
		os.Exit(0)
	}

	// A local .env feeds the environment contract; absence is normal.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting watchpost", "version", version, "listen", cfg.Server.Listen)

	store, err := storage.NewSQLiteStore(cfg.Database.Path, cfg.Database.MaxReadConns, cfg.Monitor.ProbeStaleAfter)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("database opened", "path", cfg.Database.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seedAdminKey(ctx, store, cfg.Auth.AdminKey, logger); err != nil {
		logger.Error("failed to seed admin key", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	svc := notifier.NewService(store, cfg.SMTP, cfg.Monitor.AllowPrivate, logger)
	registry := checker.DefaultRegistry(cfg.Monitor.AllowPrivate)
	pipeline := monitor.NewPipeline(store, registry, bus, svc, logger)

	scheduler := monitor.NewScheduler(store, pipeline,
		cfg.Monitor.Warmup, cfg.Monitor.IdlePoll, cfg.Monitor.Yield, logger)
	go scheduler.Run(ctx)

	alertWorker := incident.NewWorker(store, bus, svc, alertSweepInterval, logger)
	go alertWorker.Run(ctx)

	retention := storage.NewRetentionWorker(store, cfg.Database.RetentionDays, cfg.Database.RetentionPeriod, logger)
	go retention.Run(ctx)

	srv := server.NewServer(cfg, store, pipeline, svc, bus, logger, version)
	httpServer := startHTTPServer(cfg, srv, logger, cancel)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	cancel()

	// Closing the bus ends the long-lived SSE and WebSocket streams, which
	// Shutdown would otherwise wait on for the whole grace period.
	bus.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	svc.Drain(10 * time.Second)
	srv.Close()

	logger.Info("shutdown complete")
}

// seedAdminKey makes sure the settings table holds an admin key digest. A
// configured key always wins so operators can rotate it; otherwise a key is
// generated on first boot and logged exactly once.
func seedAdminKey(ctx context.Context, store storage.Store, configured string, logger *slog.Logger) error {
	if configured != "" {
		return store.SetSetting(ctx, storage.SettingAdminKeyHash, token.Hash(configured))
	}

	_, err := store.GetSetting(ctx, storage.SettingAdminKeyHash)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read admin key hash: %w", err)
	}

	key, err := token.Generate()
	if err != nil {
		return fmt.Errorf("generate admin key: %w", err)
	}
	if err := store.SetSetting(ctx, storage.SettingAdminKeyHash, token.Hash(key)); err != nil {
		return fmt.Errorf("store admin key hash: %w", err)
	}
	logger.Warn("generated admin key; it will not be shown again", "key", key)
	return nil
}

func startHTTPServer(cfg *config.Config, handler http.Handler, logger *slog.Logger, cancel context.CancelFunc) *http.Server {
	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "listen", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	return httpServer
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
