package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type WorkerConfig struct {
	Environment string
	Log         LogConfig
	Store       StoreConfig
	Postgres    PostgresConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Queue       QueueConfig
}

func (c *WorkerConfig) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("%w: postgres.dsn is required", ErrMisconfigured)
		}
	case StoreDriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("%w: mongo.uri is required", ErrMisconfigured)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrMisconfigured, c.Store.Driver)
	}
	if c.Queue.ClaimInterval <= 0 {
		return fmt.Errorf("%w: queue.claiminterval must be positive", ErrMisconfigured)
	}
	return nil
}

func LoadWorker() (*WorkerConfig, error) {
	v := newViper("worker", "PARCHMENT_WORKER")
	setWorkerDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg, decoderOptions); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return &cfg, nil
}

func setWorkerDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log.level", "info")

	v.SetDefault("store.driver", StoreDriverPostgres)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 5)
	v.SetDefault("postgres.maxidle", 1)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "parchment")

	setSharedDefaults(v)
}
