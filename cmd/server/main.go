// Package main is the entrypoint for the relay API server and its worker.
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

	"github.com/atharai/relay/internal/api"
	"github.com/atharai/relay/internal/api/handler"
	mw "github.com/atharai/relay/internal/api/middleware"
	"github.com/atharai/relay/internal/api/response"
	"github.com/atharai/relay/internal/cache"
	"github.com/atharai/relay/internal/config"
	"github.com/atharai/relay/internal/inference"
	"github.com/atharai/relay/internal/store"
	"github.com/atharai/relay/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "inference_url", cfg.Inference.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Job store: Postgres when configured, in-memory otherwise
	var st store.Store
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		st = store.NewPostgresStore(pool)
		slog.Info("database connected, migrations applied")
	} else {
		st = store.NewMemoryStore()
		slog.Warn("DATABASE_URL not set, using in-memory job store")
	}

	// 3. Result cache: Redis when configured, in-memory otherwise
	var ca cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		ca = redisCache
		slog.Info("redis connected")
	} else {
		ca = cache.NewMemoryCache()
		slog.Warn("REDIS_URL not set, using in-memory result cache")
	}

	// 4. Remote inference client and the background worker
	client := inference.NewHTTPClient(cfg.Inference)

	wk := worker.New(st, ca, client, cfg.Worker.PollInterval, cfg.Worker.CacheTTL)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		wk.Start(ctx)
	}()

	// 5. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(ca, cfg.RateLimitPerMin),

		HealthHandler:      healthHandler(st, ca),
		StatsHandler:       handler.NewStatsHandler(st),
		SubmitTextHandler:  handler.NewSubmitTextHandler(st, cfg.Models.Text),
		SubmitImageHandler: handler.NewSubmitImageHandler(st, cfg.Models.Image),
		JobStatusHandler:   handler.NewJobStatusHandler(st),
		JobStreamHandler:   handler.NewJobStreamHandler(st, cfg.Stream.PollInterval),
		HistoryHandler:     handler.NewHistoryHandler(st),
		ClearHandler:       handler.NewClearHandler(st, cfg.AllowClear),
	}

	router := api.NewRouter(deps)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays 0: the stream endpoint holds connections open
		// for as long as a job runs
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	<-workerDone
	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks store and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"store": "ok",
			"cache": "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["store"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["store"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
