// Package config loads process-level configuration from the environment.
//
// Runtime-mutable bot settings (token, channel, display texts) live in the
// settings table and are managed through the admin API, not here.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds process-level settings resolved at startup.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	HTTPListenAddr   string `envconfig:"HTTP_LISTEN_ADDR" default:":8080"`
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"shopbot"`

	// DatabaseURL selects the Postgres backend. When empty, SQLitePath is
	// used instead.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/shopbot.db"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisTLS      bool   `envconfig:"REDIS_TLS" default:"false"`

	// SettingsCacheTTL bounds how stale a cached settings bundle may get
	// when the admin surface writes through another process.
	SettingsCacheTTL time.Duration `envconfig:"SETTINGS_CACHE_TTL" default:"30s"`

	TelegramAPIEndpoint string        `envconfig:"TELEGRAM_API_ENDPOINT"`
	PollTimeout         time.Duration `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"30s"`
	SearchResultLimit   int           `envconfig:"SEARCH_RESULT_LIMIT" default:"10"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
		return nil, fmt.Errorf("either DATABASE_URL or SQLITE_PATH must be set")
	}
	if cfg.SearchResultLimit <= 0 {
		cfg.SearchResultLimit = 10
	}
	return &cfg, nil
}
