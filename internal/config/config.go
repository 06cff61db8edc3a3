package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"    validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Download DownloadConfig `mapstructure:"download" validate:"required"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RedisConfig contains connection settings for the shared Redis instance
// backing the quota ledger, the task store and the download queue.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"  validate:"required"`
}

// DownloadConfig contains the tunables of the bulk-download pipeline.
type DownloadConfig struct {
	// DailyQuota is the per-user daily download budget in items.
	DailyQuota int `mapstructure:"daily_quota" validate:"required,gt=0"`

	// TaskTTL bounds the lifetime of a task record; clients must poll
	// within this window.
	TaskTTL time.Duration `mapstructure:"task_ttl" validate:"required"`

	// ResultTTL is the baseline lifetime of a packaged archive.
	ResultTTL time.Duration `mapstructure:"result_ttl" validate:"required"`

	// ResultTTLJitter is the upper bound of the random extension added to
	// ResultTTL so that archives do not all expire at the same instant.
	ResultTTLJitter time.Duration `mapstructure:"result_ttl_jitter" validate:"required"`

	// WorkerCount is the number of packaging consumers to run.
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`

	// Stream is the Redis stream backing the download queue.
	Stream string `mapstructure:"stream" validate:"required"`

	// ConsumerGroup is the consumer group the packaging workers join.
	ConsumerGroup string `mapstructure:"consumer_group" validate:"required"`
}
