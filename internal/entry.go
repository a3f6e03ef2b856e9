// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/leaf/internal/cache"
	"github.com/starford/leaf/internal/mcpserver"
	"github.com/starford/leaf/internal/metrics"
	"github.com/starford/leaf/internal/site"
	"github.com/starford/leaf/internal/sse"
	"github.com/starford/leaf/internal/storage"
	"github.com/starford/leaf/internal/watch"
)

// latencyAccuracy is the relative accuracy of the refresh latency sketches.
const latencyAccuracy = 0.01

type runtime struct {
	cfg     *Config
	version string
	logger  *slog.Logger
	store   *storage.FS
	tracker *metrics.Tracker
	site    *site.Site
}

func setup(opts []Option, serving bool) (*runtime, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("site_root", cfg.Site.Root),
		slog.Duration("check_interval", cfg.Cache.CheckInterval),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Site.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create site dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Site.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	tracker := metrics.NewTracker(latencyAccuracy)
	s := site.New(store, logger, site.Options{
		ConfigFile: cfg.Site.ConfigFile,
		StyleDir:   cfg.Site.StyleDir,
		LiveReload: serving && cfg.Watch.Enabled,
		Cache: []cache.Option{
			cache.WithInterval(cfg.Cache.CheckInterval),
			cache.WithObserver(tracker),
		},
	})

	return &runtime{cfg: cfg, version: app.version, logger: logger, store: store, tracker: tracker, site: s}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts, true)
	if err != nil {
		return err
	}
	cfg, logger := rt.cfg, rt.logger

	var broker *sse.Broker
	routerOpts := site.RouterOptions{
		AdminEnabled: cfg.Admin.AuthEnabled(),
		AdminToken:   cfg.Admin.Token,
	}
	if cfg.Watch.Enabled {
		broker = sse.NewBroker(cfg.Watch.ReloadThrottle)
		defer broker.Close()
		routerOpts.Live = broker
	}

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/", site.NewRouter(site.NewHandler(rt.site, rt.tracker, logger), routerOpts))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			err := watch.Watch(gCtx, rt.store, rt.site, logger, broker.PublishChange)
			if err != nil {
				// Polling through the debounce interval still picks up changes.
				logger.Warn("watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully",
		slog.Float64("cache_hit_rate", rt.tracker.Snapshot().HitRate()))
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the site's pages over the MCP stdio transport. Logs go to
// stderr since stdout carries the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	rt, err := setup(opts, false)
	if err != nil {
		return err
	}

	rt.logger.Info("Starting MCP server", slog.String("site_root", rt.cfg.Site.Root))
	if err := mcpserver.New(rt.site, rt.version).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
