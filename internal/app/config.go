package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	// AdminAddr serves operator routes such as the full state export. Keep it
	// off the public interface; empty disables the listener.
	AdminAddr string `envconfig:"ADMIN_ADDR" default:"127.0.0.1:8081"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// PGDSN selects the Postgres state store. Empty falls back to redis, or
	// to no persistence when REDIS_ADDR is empty too.
	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"4"`

	RedisAddr        string `envconfig:"REDIS_ADDR"`
	RedisStatePrefix string `envconfig:"REDIS_STATE_PREFIX" default:"marketledger:state:"`
	EventsChannel    string `envconfig:"EVENTS_CHANNEL" default:"marketledger.events"`
	EventsBuffer     int    `envconfig:"EVENTS_BUFFER" default:"1024"`

	SnapshotInterval   time.Duration `envconfig:"SNAPSHOT_INTERVAL" default:"30s"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`

	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"5"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.LogFormat != "pretty" && c.LogFormat != "json" {
		return errors.New("log format must be pretty or json")
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("rate limit must be positive")
	}
	if c.SnapshotInterval <= 0 {
		return errors.New("snapshot interval must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// HasRedis reports whether a redis server is configured.
func (c *Config) HasRedis() bool {
	return c != nil && c.RedisAddr != ""
}
