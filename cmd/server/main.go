package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nkapadia/mailbridge/internal/api"
	"github.com/nkapadia/mailbridge/internal/config"
	"github.com/nkapadia/mailbridge/internal/engine"
	"github.com/nkapadia/mailbridge/internal/graph"
	"github.com/nkapadia/mailbridge/internal/ingest"
	"github.com/nkapadia/mailbridge/internal/queue"
	"github.com/nkapadia/mailbridge/internal/reconcile"
	"github.com/nkapadia/mailbridge/internal/store"
	"github.com/nkapadia/mailbridge/internal/subscription"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize PostgreSQL
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Redis is optional in local mode; when present it carries the durable
	// queue, the dedup cache, and the outbound throttle.
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		logger.Info("connected to Redis")
	}

	// Job queue + submission gateway
	var redisClient *redis.Client
	if redisStore != nil {
		redisClient = redisStore.Client()
	}
	jobQueue, err := queue.Build(cfg.DurableQueue, redisClient, cfg.JobQueueName)
	if err != nil {
		logger.Error("failed to build job queue", "error", err)
		os.Exit(1)
	}
	gateway := queue.NewGateway(jobQueue, logger)
	logger.Info("job queue ready", "durable", cfg.DurableQueue)

	// Platform client
	var throttle *graph.Throttle
	if redisClient != nil {
		throttle = graph.NewThrottle(redisClient, cfg.PlatformRateCap, logger)
	}
	platform := graph.NewHTTPClient(cfg.PlatformBaseURL, cfg.PlatformToken, throttle, logger)

	// Ingestion handler + registry
	var dedupCache ingest.DedupCache
	if redisClient != nil {
		dedupCache = ingest.NewRedisCache(redisClient, 7*24*time.Hour)
	} else {
		dedupCache = ingest.NewMemoryCache(7 * 24 * time.Hour)
	}
	ingestHandler := ingest.NewHandler(platform, pgStore, dedupCache, logger)

	registry := engine.NewRegistry()
	if err := registry.Register(ingest.JobTypeIngestEvent, ingestHandler); err != nil {
		logger.Error("failed to register job handler", "error", err)
		os.Exit(1)
	}

	// Background loops
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	processor := engine.NewProcessor(jobQueue, registry, pgStore, cfg.NumWorkers, cfg.JobTimeout, logger)
	processor.Start(runCtx)

	manager := subscription.NewManager(
		platform, pgStore, cfg.MonitoredSources,
		cfg.SubscriptionTick, cfg.RenewalThreshold, cfg.SubscriptionTTL,
		cfg.NotificationURL, cfg.ClientState, logger,
	)
	manager.Start(runCtx)

	reconciler := reconcile.NewReconciler(
		platform, pgStore, gateway, cfg.MonitoredSources,
		cfg.PollInterval, cfg.MaxAttempts, logger,
	)
	reconciler.Start(runCtx)

	// HTTP server
	webhook := api.NewWebhookHandler(gateway, pgStore, cfg.ClientState, cfg.MaxAttempts, logger)
	router := api.NewRouter(webhook, pgStore)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	// Stop intake first, then the loops, then the engine. Unfinished jobs
	// go back to the queue.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	cancel()
	manager.Stop()
	reconciler.Stop()
	processor.Stop()

	logger.Info("server stopped")
}
