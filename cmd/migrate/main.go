package main

import (
	"flag"

	"parchment/internal/config"
	"parchment/internal/database"
	"parchment/internal/log"
)

func main() {
	direction := flag.String("direction", database.MigrateUp, "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Log.Level)

	if cfg.Store.Driver != config.StoreDriverPostgres {
		logger.Fatal().Str("driver", cfg.Store.Driver).Msg("migrations only apply to the postgres store")
	}
	if cfg.Postgres.DSN == "" {
		logger.Fatal().Msg("postgres.dsn is required")
	}

	if err := database.Migrate(cfg.Postgres.DSN, *direction); err != nil {
		logger.Fatal().Err(err).Str("direction", *direction).Msg("migration failed")
	}
	logger.Info().Str("direction", *direction).Msg("migrations complete")
}
