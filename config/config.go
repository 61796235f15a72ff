package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Log       LogConfig       `mapstructure:"log"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type SecretsConfig struct {
	// MasterKey decrypts subscriber auth secrets. Empty means secrets are stored in plaintext.
	MasterKey string `mapstructure:"master_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Retry modes.
const (
	RetryModeInline  = "inline"
	RetryModeDurable = "durable"
)

type WebhookConfig struct {
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	MaxResponseBodyChars int           `mapstructure:"max_response_body_chars"`
	MaxConcurrentChains  int           `mapstructure:"max_concurrent_chains"`
	MaxPendingEvents     int           `mapstructure:"max_pending_events"`
	RetryMode            string        `mapstructure:"retry_mode"` // inline, durable
	RetryPollInterval    time.Duration `mapstructure:"retry_poll_interval"`
	RetryBatchSize       int           `mapstructure:"retry_batch_size"`
	RetryLease           time.Duration `mapstructure:"retry_lease"`
	DedupeTTL            time.Duration `mapstructure:"dedupe_ttl"`
	UserAgent            string        `mapstructure:"user_agent"`
	ConditionCacheSize   int           `mapstructure:"condition_cache_size"`
}

type RateLimitConfig struct {
	EventsPerMinute int64 `mapstructure:"events_per_minute"`
	TestsPerMinute  int64 `mapstructure:"tests_per_minute"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: AFW_.
// Nested keys use underscore: AFW_DATABASE_HOST, AFW_WEBHOOK_RETRY_MODE, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("storage.driver", StoragePostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "agentforms")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "agentforms-webhooks")
	v.SetDefault("secrets.master_key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("webhook.request_timeout", "10s")
	v.SetDefault("webhook.max_response_body_chars", 10000)
	v.SetDefault("webhook.max_concurrent_chains", 16)
	v.SetDefault("webhook.max_pending_events", 1000)
	v.SetDefault("webhook.retry_mode", RetryModeInline)
	v.SetDefault("webhook.retry_poll_interval", "1s")
	v.SetDefault("webhook.retry_batch_size", 50)
	v.SetDefault("webhook.retry_lease", "5m")
	v.SetDefault("webhook.dedupe_ttl", "24h")
	v.SetDefault("webhook.user_agent", "AgentForms-Webhooks/1.0")
	v.SetDefault("webhook.condition_cache_size", 256)
	v.SetDefault("ratelimit.events_per_minute", 600)
	v.SetDefault("ratelimit.tests_per_minute", 10)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// AFW_WEBHOOK_RETRY_MODE -> webhook.retry_mode
	v.SetEnvPrefix("AFW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// a config file is optional, env vars can suffice
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations the process cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage.Driver)
	}

	switch c.Webhook.RetryMode {
	case RetryModeInline:
	case RetryModeDurable:
		if !c.Redis.Enabled {
			return fmt.Errorf("webhook.retry_mode %q requires redis.enabled", RetryModeDurable)
		}
	default:
		return fmt.Errorf("webhook.retry_mode must be %q or %q, got %q", RetryModeInline, RetryModeDurable, c.Webhook.RetryMode)
	}

	if c.Webhook.RequestTimeout <= 0 {
		return fmt.Errorf("webhook.request_timeout must be positive")
	}
	if c.Webhook.MaxConcurrentChains < 1 {
		return fmt.Errorf("webhook.max_concurrent_chains must be >= 1")
	}
	if c.Webhook.MaxPendingEvents < 0 {
		return fmt.Errorf("webhook.max_pending_events must be >= 0")
	}
	if c.Webhook.MaxResponseBodyChars < 0 {
		return fmt.Errorf("webhook.max_response_body_chars must be >= 0")
	}
	return nil
}
