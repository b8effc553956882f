// Package main is the entry point for the hivepos API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hivepos/internal/app"
	"hivepos/internal/config"
	"hivepos/internal/core/idempotency"
	"hivepos/internal/domain/matching"
	"hivepos/internal/domain/salesimport"
	"hivepos/internal/infrastructure/cache"
	"hivepos/internal/infrastructure/gateway"
	v1 "hivepos/internal/infrastructure/http/v1"
	"hivepos/internal/infrastructure/http/v1/handlers"
	"hivepos/internal/infrastructure/storage/memory"
	"hivepos/internal/infrastructure/storage/postgres"
	"hivepos/migrations"
	"hivepos/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	log.Infow("starting hivepos server", "env", cfg.AppEnv, "timezone", cfg.Location.String())

	checks := map[string]handlers.ReadinessCheck{}

	// --- Storage backend ---
	var (
		repos     app.Repositories
		idemStore idempotency.Store
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()

		if err := postgres.Migrate(ctx, postgres.NewTxManager(pool), migrations.FS); err != nil {
			log.Fatalw("failed to apply migrations", "error", err)
		}
		if repos, err = app.PostgresRepositories(pool); err != nil {
			log.Fatalw("failed to build repositories", "error", err)
		}
		if cfg.IdempotencyEnabled {
			idemStore = postgres.NewIdempotencyStore(postgres.NewTxManager(pool), cfg.IdempotencyTTL)
		}
		checks["database"] = pool.Ping
		log.Info("postgres backend ready")
	} else {
		repos = app.MemoryRepositories(memory.New())
		if cfg.IdempotencyEnabled {
			idemStore = idempotency.NewMemoryStore(cfg.IdempotencyTTL)
		}
		log.Warn("DATABASE_URL not set; using in-memory backend, data is lost on restart")
	}

	// --- Mapping cache ---
	var mappingCache matching.Cache = matching.NoopCache{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewMappingCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MappingCacheTTL)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warnw("redis unavailable; mapping cache disabled", "addr", cfg.RedisAddr, "error", err)
			_ = redisCache.Close()
		} else {
			defer redisCache.Close()
			mappingCache = redisCache
			checks["redis"] = redisCache.Ping
		}
	}

	// --- Import row filter ---
	var rowFilter *salesimport.RowFilter
	if cfg.ImportRowFilter != "" {
		if rowFilter, err = salesimport.NewRowFilter(cfg.ImportRowFilter); err != nil {
			log.Fatalw("invalid IMPORT_ROW_FILTER", "error", err)
		}
		log.Infow("import row filter enabled", "expression", rowFilter.String())
	}

	opts := app.Options{
		Location:       cfg.Location,
		RowFilter:      rowFilter,
		AutoLinkEvents: cfg.AutoLinkEvents,
		MappingCache:   mappingCache,
		JWTSecret:      cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	}
	if cfg.GatewayURL != "" {
		opts.Gateway = gateway.NewClient(gateway.Config{BaseURL: cfg.GatewayURL, APIKey: cfg.GatewayKey})
	} else {
		log.Warn("GATEWAY_URL not set; card refunds will be rejected")
	}

	services := app.NewServices(repos, opts)

	if created, err := app.EnsureAdmin(ctx, services.Auth, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalw("failed to create admin operator", "error", err)
	} else if created {
		log.Infow("admin operator created", "email", cfg.AdminEmail)
	}

	var verifier *gateway.Verifier
	if cfg.GatewayWebhookSecret != "" {
		verifier = gateway.NewVerifier(cfg.GatewayWebhookSecret)
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Services:         services,
		Logger:           log,
		IdempotencyStore: idemStore,
		Verifier:         verifier,
		ReadinessChecks:  checks,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
