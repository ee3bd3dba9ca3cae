package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"parchment/internal/cache"
	"parchment/internal/config"
	"parchment/internal/database"
	"parchment/internal/handlers"
	"parchment/internal/jobs"
	"parchment/internal/log"
	"parchment/internal/metrics"
	"parchment/internal/middleware"
	"parchment/internal/queue"
	"parchment/internal/repository"
	"parchment/internal/security"
	"parchment/internal/server"
	"parchment/internal/service"
	"parchment/internal/storage"
)

type stores struct {
	users service.CredentialStore
	notes service.NoteStore
	close func(ctx context.Context)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	producer := queue.NewProducer(redisClient, cfg.Queue.Stream)

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	tokens := security.NewTokenService(
		cfg.Security.JWTAccessSecret,
		cfg.Security.JWTRefreshSecret,
		cfg.Security.JWTAccessTTL,
		cfg.Security.JWTRefreshTTL,
	)
	sessions := service.NewSessionService(st.users, tokens, collector, logger)
	uploads := service.NewUploadService(objectStore, cfg.Storage.MaxUploadBytes, cfg.Security.SignatureSecret)
	notes := service.NewNoteService(st.notes, uploads, producer, logger)

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(cfg.RateLimit, logger)
	}

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Log:         logger,
		Config:      cfg,
		Sessions:    sessions,
		Notes:       notes,
		RateLimiter: rateLimiter,
		HealthChecks: map[string]handlers.Pinger{
			"store": sessions,
			"redis": cache.NewPinger(redisClient),
		},
	})
	httpServer, err := server.NewHTTPServer(cfg, logger, handlerSet, collector, registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build http server")
	}

	scheduler := jobs.NewScheduler(producer, cfg.Jobs.SessionSweep, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, rateLimiter, st, redisClient)
}

// openStores connects the configured backend and returns the user and note
// stores on top of it.
func openStores(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (stores, error) {
	if cfg.Store.Driver == config.StoreDriverMongo {
		db, err := database.NewMongoDatabase(ctx, cfg.Mongo)
		if err != nil {
			return stores{}, err
		}
		users := repository.NewMongoUserRepository(db)
		notes := repository.NewMongoNoteRepository(db)
		if err := users.EnsureIndexes(ctx); err != nil {
			return stores{}, err
		}
		if err := notes.EnsureIndexes(ctx); err != nil {
			return stores{}, err
		}
		return stores{
			users: users,
			notes: notes,
			close: func(ctx context.Context) {
				if err := db.Client().Disconnect(ctx); err != nil {
					logger.Error().Err(err).Msg("mongo disconnect error")
				}
			},
		}, nil
	}

	if cfg.Postgres.AutoMigrate {
		if err := database.RunMigrations(cfg.Postgres.DSN); err != nil {
			return stores{}, err
		}
		logger.Info().Msg("database migrations applied")
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return stores{}, err
	}
	return stores{
		users: repository.NewUserRepository(pool),
		notes: repository.NewNoteRepository(pool),
		close: func(context.Context) { pool.Close() },
	}, nil
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, rateLimiter *middleware.RateLimiter, st stores, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()
	if rateLimiter != nil {
		rateLimiter.Stop()
	}

	st.close(shutdownCtx)
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
