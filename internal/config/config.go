package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	EnvProduction = "production"

	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

var ErrMisconfigured = errors.New("misconfigured")

type LogConfig struct {
	Level string
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For is
	// honoured. Empty means the peer address is the client address.
	TrustedProxies []string
}

type StoreConfig struct {
	Driver string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint       string
	PublicURL      string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	Region         string
	MaxUploadBytes int64
}

type SecurityConfig struct {
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	SignatureSecret  string
}

type CookieConfig struct {
	Domain string
	Path   string
}

type RateLimitConfig struct {
	Enabled         bool
	RequestsPerMin  float64
	Burst           int
	CleanupInterval time.Duration
}

type QueueConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
}

type JobsConfig struct {
	SessionSweep string
}

type AppConfig struct {
	Environment      string
	Log              LogConfig
	HTTP             HTTPConfig
	Store            StoreConfig
	Postgres         PostgresConfig
	Mongo            MongoConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Cookies          CookieConfig
	RateLimit        RateLimitConfig
	Queue            QueueConfig
	Jobs             JobsConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Validate reports settings the service cannot start without.
func (c *AppConfig) Validate() error {
	var problems []string
	if c.Security.JWTAccessSecret == "" {
		problems = append(problems, "security.jwtaccesssecret is required")
	}
	if c.Security.JWTRefreshSecret == "" {
		problems = append(problems, "security.jwtrefreshsecret is required")
	}
	if c.Security.JWTAccessSecret != "" && c.Security.JWTAccessSecret == c.Security.JWTRefreshSecret {
		problems = append(problems, "access and refresh secrets must differ")
	}
	if c.Security.JWTAccessTTL <= 0 || c.Security.JWTRefreshTTL <= 0 {
		problems = append(problems, "token ttls must be positive")
	}
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Postgres.DSN == "" {
			problems = append(problems, "postgres.dsn is required")
		}
	case StoreDriverMongo:
		if c.Mongo.URI == "" {
			problems = append(problems, "mongo.uri is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrMisconfigured, strings.Join(problems, "; "))
	}
	return nil
}

func Load() (*AppConfig, error) {
	v := newViper("config", "PARCHMENT")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, decoderOptions); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func newViper(name string, envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decoderOptions(dc *mapstructure.DecoderConfig) {
	dc.TagName = "mapstructure"
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log.level", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.maxbodybytes", 16<<10)
	v.SetDefault("http.trustedproxies", "")

	v.SetDefault("store.driver", StoreDriverPostgres)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.automigrate", true)

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "parchment")

	setSharedDefaults(v)

	v.SetDefault("security.jwtaccesssecret", "")
	v.SetDefault("security.jwtrefreshsecret", "")
	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "240h") // 10 days
	v.SetDefault("security.signaturesecret", "")

	v.SetDefault("cookies.domain", "")
	v.SetDefault("cookies.path", "/")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requestspermin", 30)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("ratelimit.cleanupinterval", "5m")

	v.SetDefault("jobs.sessionsweep", "0 0 * * * *")

	v.SetDefault("allowcorsorigins", "http://localhost:3000")
}

// setSharedDefaults covers the sections the API and the worker both read.
func setSharedDefaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.endpoint", "127.0.0.1:9000")
	v.SetDefault("storage.publicurl", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucket", "parchment-notes")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.maxuploadbytes", 5<<20)

	v.SetDefault("queue.stream", "parchment:tasks")
	v.SetDefault("queue.group", "parchment-workers")
	v.SetDefault("queue.consumer", "worker-1")
	v.SetDefault("queue.claiminterval", "30s")
}
