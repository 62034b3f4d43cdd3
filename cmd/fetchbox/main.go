package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/italolelis/fetchbox/internal/cleanup"
	"github.com/italolelis/fetchbox/internal/config"
	"github.com/italolelis/fetchbox/internal/fetch"
	"github.com/italolelis/fetchbox/internal/http/rest"
	"github.com/italolelis/fetchbox/internal/http/ws"
	"github.com/italolelis/fetchbox/internal/logctx"
	"github.com/italolelis/fetchbox/internal/notifier"
	"github.com/italolelis/fetchbox/internal/session"
	"github.com/italolelis/fetchbox/internal/storage"
	"github.com/italolelis/fetchbox/internal/storage/sqlite"
	"github.com/italolelis/fetchbox/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// version is set at build time.
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("fetchbox starting...", "version", version, "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	history := sqlite.NewInstrumentedHistoryRepository(database, tel)

	// =========================================================================
	// Start Storage
	files := storage.NewDir(cfg.StorageDir)
	if err := files.Ensure(); err != nil {
		return err
	}

	// =========================================================================
	// Start API Service
	fetcher := fetch.NewInstrumentedClient(fetch.NewClient(fetch.Options{
		PrecheckTimeout:       cfg.PrecheckTimeout,
		ResponseHeaderTimeout: cfg.StreamIdleTimeout,
		IdleTimeout:           cfg.StreamIdleTimeout,
		ChunkSize:             cfg.ChunkSize,
	}), tel)

	registry := session.NewRegistry(tel)
	server := setupServer(ctx, cfg, fetcher, files, history, registry, tel)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress, "storage_dir", cfg.StorageDir)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	// =========================================================================
	// Start Cleanup
	g.Go(func() error {
		logger.Info("starting retention cleanup",
			"retention", cfg.KeepDownloadedFor.String(),
			"interval", cfg.CleanupInterval.String(),
		)

		return cleanup.Run(gctx, history, files, cfg.KeepDownloadedFor, cfg.CleanupInterval)
	})

	g.Go(func() error {
		<-gctx.Done()

		return shutdown(context.WithoutCancel(gctx), cfg, server, registry)
	})

	return g.Wait()
}

// setupServer prepares the handlers and services to create the http server.
func setupServer(
	ctx context.Context,
	cfg *config.Config,
	fetcher fetch.Fetcher,
	files *storage.Dir,
	history *sqlite.InstrumentedHistoryRepository,
	registry *session.Registry,
	tel *telemetry.Telemetry,
) *http.Server {
	opts := session.Options{
		Storage:     files,
		MaxFileSize: cfg.MaxFileSize,
		History:     history,
		Telemetry:   tel,
	}

	// A nil *DiscordNotifier must not end up in the interface.
	if n := notifier.NewDiscordNotifier(cfg.DiscordWebhookURL); n != nil {
		opts.Notifier = n
	}

	router := rest.NewRouter(rest.RouterConfig{
		Files:     rest.NewFilesHandler(fetcher, files, history),
		WebSocket: ws.NewHandler(fetcher, registry, opts, 0),
		Telemetry: tel,
	})

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      router,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

// shutdown closes client sessions first so live transfers are cancelled and
// cleaned up, then drains the HTTP server.
func shutdown(ctx context.Context, cfg *config.Config, server *http.Server, registry *session.Registry) error {
	logger := logctx.LoggerFromContext(ctx)
	logger.Info("start shutdown")

	// Give outstanding requests a deadline for completion.
	ctx, cancel := context.WithTimeout(ctx, cfg.Web.ShutdownTimeout)
	defer cancel()

	if err := registry.Shutdown(ctx); err != nil {
		logger.Error("failed to close client sessions", "err", err)
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("failed to gracefully shutdown the server", "err", err)

		if err = server.Close(); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}
