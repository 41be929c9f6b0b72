// Package main is the entrypoint for the cronbat console API server.
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

	"github.com/kiranshivaraju/cronbat/internal/api"
	mw "github.com/kiranshivaraju/cronbat/internal/api/middleware"
	"github.com/kiranshivaraju/cronbat/internal/cache"
	"github.com/kiranshivaraju/cronbat/internal/config"
	"github.com/kiranshivaraju/cronbat/internal/console"
	"github.com/kiranshivaraju/cronbat/internal/jobstore"
	"github.com/kiranshivaraju/cronbat/internal/realtime"
	"github.com/kiranshivaraju/cronbat/internal/schedapi"
	"github.com/kiranshivaraju/cronbat/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepInterval   = time.Minute
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("console failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "scheduler", cfg.Scheduler.BaseURL, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Redis backs both the log cache and the push channel
	redisClient, err := realtime.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	redisCache := cache.NewRedisCacheFromClient(redisClient)
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Scheduler client, job store and push channel
	scheduler := schedapi.NewHTTPClient(cfg.Scheduler.BaseURL, cfg.Scheduler.Token, cfg.Scheduler.Timeout)
	jobs := jobstore.New()
	transport := realtime.NewRedisTransport(redisClient, realtime.RedisOptions{
		Prefix:         cfg.Push.ChannelPrefix,
		PingInterval:   cfg.Push.PingInterval,
		ReconnectDelay: cfg.Push.ReconnectDelay,
	})
	channel := realtime.New(transport, jobs)

	pgStore := store.NewPostgresStore(pool)
	svc := console.New(scheduler, jobs, channel, pgStore, redisCache, console.Options{
		ResyncOnReconnect:   cfg.Push.ResyncOnReconnect,
		ViewIdleTimeout:     cfg.Console.ViewIdleTimeout,
		LogCacheTTL:         cfg.Console.LogCacheTTL,
		LogFetchConcurrency: cfg.Console.LogFetchConcurrency,
	})

	// 6. Initial snapshot; a failure leaves the console serving stale data
	if err := svc.Load(ctx); err != nil {
		slog.Warn("initial snapshot failed, serving stale state", "error", err, "stale", svc.Stale())
	}

	go func() {
		if err := channel.Run(ctx); err != nil {
			slog.Error("push channel stopped", "error", err)
		}
	}()
	go svc.RunSweeper(ctx, sweepInterval)

	// 7. Build router
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Console.RateLimitPerMin)
	router := api.NewRouter(api.ConsoleDependencies(auth, rateLimit, svc, pgStore, pgStore, redisCache))

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("console listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

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

	slog.Info("console stopped gracefully")
	return nil
}
