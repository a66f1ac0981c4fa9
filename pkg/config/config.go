package config

import "time"

// Config is the complete application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	API           APIConfig           `mapstructure:"api"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	ErrorTracking ErrorTrackingConfig `mapstructure:"error_tracking"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Middleware    MiddlewareConfig    `mapstructure:"middleware"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
}

// APIConfig holds the generated API surface configuration
type APIConfig struct {
	// Prefix is the mount point for generated entity routes
	Prefix string `mapstructure:"prefix"`
}

// DatabaseConfig selects the storage backend for registered entities
type DatabaseConfig struct {
	// Driver is one of memory, sqlite-bun, sqlite-gorm
	Driver string `mapstructure:"driver"`

	// DSN is the database connection string, ignored for memory
	DSN string `mapstructure:"dsn"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Dev  bool   `mapstructure:"dev"`
	Path string `mapstructure:"path"`
}

// ErrorTrackingConfig holds error tracking configuration
type ErrorTrackingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Provider    string  `mapstructure:"provider"` // sentry, noop
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	Release     string  `mapstructure:"release"`
	Debug       bool    `mapstructure:"debug"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// MiddlewareConfig holds middleware configuration
type MiddlewareConfig struct {
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	MaxRequestSize int64   `mapstructure:"max_request_size"`
}
