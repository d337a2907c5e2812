package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/finguru/backend-api/api/swagger"
	"github.com/finguru/backend-api/internal/handler"
	"github.com/finguru/backend-api/internal/middleware"
	"github.com/finguru/backend-api/internal/repository"
	"github.com/finguru/backend-api/internal/service"
	"github.com/finguru/backend-api/pkg/cache"
	"github.com/finguru/backend-api/pkg/config"
	"github.com/finguru/backend-api/pkg/database"
	"github.com/finguru/backend-api/pkg/jobs"
	"github.com/finguru/backend-api/pkg/logger"
	corsmiddleware "github.com/finguru/backend-api/pkg/middleware/cors"
	reqidmiddleware "github.com/finguru/backend-api/pkg/middleware/requestid"
)

// @title FinGuru API
// @version 1.0.0
// @description Authentication and account sync endpoints
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
	if err := database.EnsureSchema(ctx, db); err != nil {
		logr.Fatal("failed to apply schema", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, user cache disabled", zap.Error(err))
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, "finguru")
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.UserTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	tokens := service.NewTokenService(service.TokenConfig{
		Secret:        cfg.JWT.Secret,
		AccessExpiry:  cfg.JWT.Expiration,
		RefreshExpiry: cfg.JWT.RefreshExpiration,
		Issuer:        "finguru",
	})
	authSvc := service.NewAuthService(
		repository.NewUserRepository(db),
		repository.NewSessionRepository(db),
		service.NewPasswordHasher(cfg.Auth.BcryptCost),
		tokens,
		cacheSvc,
		metrics,
		validator.New(),
		logr,
		service.AuthConfig{RevokeOnRotate: cfg.Auth.RevokeOnRotate, StoreTimeout: cfg.Auth.StoreTimeout},
	)

	dispatcher := jobs.NewDispatcher(jobs.DispatcherConfig{
		URL:     cfg.Broker.URL,
		Timeout: cfg.Broker.PublishTimeout,
		Logger:  logr,
	})
	syncSvc := service.NewSyncService(dispatcher, cfg.Broker.SyncQueue, metrics, logr)

	checks := map[string]handler.ReadinessCheck{
		"postgres": func(ctx context.Context) error { return db.PingContext(ctx) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	handler.Routes{
		Auth:        handler.NewAuthHandler(authSvc),
		Sync:        handler.NewSyncHandler(syncSvc),
		Metrics:     handler.NewMetricsHandler(metrics, checks),
		RequireAuth: middleware.JWT(authSvc),
	}.Register(r, cfg.APIPrefix)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
