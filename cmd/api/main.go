package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/splax/backendless/internal/app/migrate"
	"github.com/splax/backendless/internal/blob"
	httpx "github.com/splax/backendless/internal/http"
	"github.com/splax/backendless/internal/notify"
	"github.com/splax/backendless/internal/repository/postgres"
	"github.com/splax/backendless/internal/service/auth"
	"github.com/splax/backendless/internal/service/deploy"
	"github.com/splax/backendless/internal/service/project"
	"github.com/splax/backendless/internal/staging"
	"github.com/splax/backendless/internal/ws"
	"github.com/splax/backendless/pkg/config"
	"github.com/splax/backendless/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	blobs, err := blob.New(ctx, blob.Options{
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Bucket:    cfg.BlobBucket,
		Region:    cfg.BlobRegion,
		UseSSL:    cfg.BlobUseSSL,
	}, log)
	if err != nil {
		log.Error("failed to configure blob store", "error", err)
		os.Exit(1)
	}

	area, err := staging.New(cfg.StagingDir)
	if err != nil {
		log.Error("failed to prepare staging area", "dir", cfg.StagingDir, "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	publisher := notify.NewRedisPublisher(redisClient)

	authSvc := auth.New(repo, log, cfg)
	deploySvc := deploy.New(repo, repo, blobs, publisher, area, log, cfg)
	projectSvc := project.New(repo, deploySvc, log, cfg)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	relay := notify.NewRelay(redisClient, hub, log)
	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("lifecycle relay stopped", "error", err)
		}
	}()

	limiter := httpx.NewMemoryRateLimiter()
	if cfg.RateLimitEnabled {
		limiter = httpx.NewRedisRateLimiter(redisClient, log)
	}

	router := httpx.NewRouter(log, authSvc, projectSvc, deploySvc, hub, limiter, cfg.AllowedOrigins,
		httpx.HealthCheck{Name: "database", Check: pool.Ping},
		httpx.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		httpx.HealthCheck{Name: "blob", Check: blobs.Ping},
	)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
