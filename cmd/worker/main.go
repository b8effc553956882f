// Package main is the entry point for the hivepos background worker.
// It relays the transactional outbox and purges expired idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hivepos/internal/config"
	"hivepos/internal/infrastructure/storage/postgres"
	"hivepos/pkg/logger"
)

const (
	dlqInterval     = 5 * time.Minute
	cleanupInterval = time.Hour
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

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required for the worker")
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log.WithComponent("worker")))
	defer cancel()

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.ApplicationName = "hivepos-worker"
	poolCfg.MaxConns = 4
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	w := &worker{
		log:   log.WithComponent("worker"),
		relay: postgres.NewOutboxRelay(txm, cfg.OutboxBatchSize, postgres.LogHandler{Log: logger.Info}),
		keys:  postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL),
		poll:  cfg.OutboxPollInterval,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	<-done
	log.Info("worker stopped")
}

type worker struct {
	log   *logger.Logger
	relay *postgres.OutboxRelay
	keys  *postgres.IdempotencyStore
	poll  time.Duration
}

func (w *worker) run(ctx context.Context) {
	w.log.Infow("worker started", "poll_interval", w.poll)

	poll := time.NewTicker(w.poll)
	defer poll.Stop()
	dlq := time.NewTicker(dlqInterval)
	defer dlq.Stop()
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			w.drainOutbox(ctx)
		case <-dlq.C:
			if n, err := w.relay.MoveToDLQ(ctx); err != nil {
				w.log.Errorw("move outbox messages to DLQ", "error", err)
			} else if n > 0 {
				w.log.Warnw("outbox messages moved to DLQ", "count", n)
			}
		case <-cleanup.C:
			if n, err := w.keys.CleanupExpired(ctx); err != nil {
				w.log.Errorw("cleanup idempotency keys", "error", err)
			} else if n > 0 {
				w.log.Infow("expired idempotency keys removed", "count", n)
			}
		}
	}
}

// drainOutbox processes batches until one comes back short.
func (w *worker) drainOutbox(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("process outbox batch", "error", err)
			return
		}
		if n < w.relay.BatchSize() {
			return
		}
	}
}
