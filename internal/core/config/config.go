package config

import (
	"github.com/vietddude/packetfeed/internal/infra/redis"
	"github.com/vietddude/packetfeed/internal/infra/routing"
	"github.com/vietddude/packetfeed/internal/infra/session"
	"github.com/vietddude/packetfeed/internal/infra/storage/jsonfile"
	"github.com/vietddude/packetfeed/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   session.Config      `yaml:"server"`
	Retry    routing.RetryConfig `yaml:"retry"`
	Output   jsonfile.Config     `yaml:"output"`
	Metrics  MetricsConfig       `yaml:"metrics"`
	Logging  LoggingConfig       `yaml:"logging"`
	Database postgres.Config     `yaml:"database"`
	Redis    redis.Config        `yaml:"redis"`
}

// MetricsConfig holds the health/metrics HTTP server settings.
type MetricsConfig struct {
	Port int `yaml:"port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Defaults
const (
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 3000
	DefaultReadTimeout = session.DefaultReadTimeout
	DefaultDialTimeout = session.DefaultDialTimeout
)

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	cfg := &AppConfig{
		Retry: routing.RetryConfig{
			MaxAttempts:      routing.DefaultRetryConfig.MaxAttempts,
			Delay:            routing.DefaultRetryConfig.Delay,
			ExitOnExhaustion: true,
		},
	}
	applyDefaults(cfg)
	return cfg
}
