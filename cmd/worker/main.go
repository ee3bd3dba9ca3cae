package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"parchment/internal/cache"
	"parchment/internal/config"
	"parchment/internal/database"
	"parchment/internal/log"
	"parchment/internal/queue"
	"parchment/internal/repository"
	"parchment/internal/storage"
	"parchment/internal/tasks"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper, closeStore, err := openSweeper(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer closeStore()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	processor := tasks.NewProcessor(objectStore, sweeper, logger)
	consumer := queue.NewConsumer(
		client,
		cfg.Queue.Stream,
		cfg.Queue.Group,
		cfg.Queue.Consumer,
		cfg.Queue.ClaimInterval,
		logger,
		processor,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}

func openSweeper(ctx context.Context, cfg *config.WorkerConfig, logger zerolog.Logger) (tasks.ExpiredSessionSweeper, func(), error) {
	if cfg.Store.Driver == config.StoreDriverMongo {
		db, err := database.NewMongoDatabase(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := db.Client().Disconnect(context.Background()); err != nil {
				logger.Error().Err(err).Msg("mongo disconnect error")
			}
		}
		return repository.NewMongoUserRepository(db), closeFn, nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewUserRepository(pool), pool.Close, nil
}
