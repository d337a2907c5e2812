package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/finguru/backend-api/internal/repository"
	"github.com/finguru/backend-api/internal/service"
	"github.com/finguru/backend-api/internal/worker"
	"github.com/finguru/backend-api/pkg/cache"
	"github.com/finguru/backend-api/pkg/config"
	"github.com/finguru/backend-api/pkg/database"
	"github.com/finguru/backend-api/pkg/jobs"
	"github.com/finguru/backend-api/pkg/logger"
)

const reconnectDelay = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, redelivery detection disabled", zap.Error(err))
		}
	}
	seen := repository.NewCacheRepository(redisClient, "finguru")
	defer seen.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	syncHandler := worker.NewSyncHandler(repository.NewAccountRepository(db), seen, metrics, logr)

	pool := jobs.NewQueue(cfg.Broker.SyncQueue, syncHandler.Handle, jobs.QueueConfig{
		Workers:    cfg.Worker.Concurrency,
		MaxRetries: cfg.Worker.Retries,
		RetryDelay: cfg.Worker.RetryDelay,
		Logger:     logr,
	})
	pool.Start(ctx)
	defer pool.Stop()

	consumer := worker.NewConsumer(pool, worker.ConsumerConfig{
		URL:      cfg.Broker.URL,
		Queue:    cfg.Broker.SyncQueue,
		Prefetch: cfg.Worker.Prefetch,
		Logger:   logr,
	})

	for {
		err := consumer.Run(ctx)
		if ctx.Err() != nil {
			logr.Info("sync worker stopped")
			return
		}
		logr.Error("consumer stopped, reconnecting", zap.Error(err), zap.Duration("delay", reconnectDelay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}
