package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"thermascan/api/internal/cache"
	"thermascan/api/internal/config"
	"thermascan/api/internal/database"
	"thermascan/api/internal/handlers"
	"thermascan/api/internal/jobs"
	"thermascan/api/internal/log"
	"thermascan/api/internal/repository"
	"thermascan/api/internal/server"
	"thermascan/api/internal/storage"
	"thermascan/api/internal/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	visionClient := vision.NewClient(cfg.AI, logger)

	handlerSet := handlers.NewHandlerSet(logger, dbPool, redisClient, objectStore, visionClient, cfg)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	var janitor *jobs.Janitor
	if cfg.Janitor.Enabled {
		janitor = jobs.NewJanitor(objectStore, repository.NewDetectionRepository(dbPool), cfg.Janitor.GracePeriod, logger)
		if err := janitor.Start(cfg.Janitor.Schedule); err != nil {
			logger.Error().Err(err).Msg("janitor start failed")
		}
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, janitor, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, janitor *jobs.Janitor, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	if janitor != nil {
		select {
		case <-janitor.Stop().Done():
		case <-time.After(5 * time.Second):
			logger.Warn().Msg("janitor stop timed out")
		}
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
