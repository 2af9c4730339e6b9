// Package config provides centralized configuration for the smartbatch
// daemon. Settings come from environment variables with defaults applied
// first, and everything is validated on startup so misconfiguration fails
// before the first connection is opened.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all daemon configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Writer   WriterConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080" validate:"min=1,max=65535"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s" validate:"min=0"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s" validate:"min=0"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s" validate:"min=0"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0"`

	// RequestTimeout is the per-request middleware timeout (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s" validate:"gt=0"`
}

// DatabaseConfig holds PostgreSQL connection settings. The int32 sizes
// feed pgxpool directly.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL"`

	// MaxConns is the connection pool ceiling (default: 20)
	MaxConns int32 `env:"DB_MAX_CONNS" default:"20" validate:"gt=0"`

	// MinConns is the number of connections kept open (default: 4)
	MinConns int32 `env:"DB_MIN_CONNS" default:"4" validate:"min=0"`

	// MaxConnLifetime is the maximum age of a pooled connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h" validate:"gt=0"`

	// MaxConnIdleTime closes connections idle longer than this (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m" validate:"gt=0"`
}

// WriterConfig holds the batch-write engine knobs.
type WriterConfig struct {
	// MinimalSize is the split threshold root: batches of at least
	// MinimalSize squared rows split into sqrt-sized chunks on a
	// uniqueness violation, smaller ones fall through to row-by-row
	// (default: 5)
	MinimalSize int `env:"WRITER_MINIMAL_SIZE" default:"5" validate:"min=1"`

	// OmitNulls drops nil-valued non-key columns from updates (default: false)
	OmitNulls bool `env:"WRITER_OMIT_NULLS"`

	// DescribeCacheTTL is how long introspected table descriptors are
	// reused before hitting information_schema again (default: 5m)
	DescribeCacheTTL time.Duration `env:"WRITER_DESCRIBE_CACHE_TTL" default:"5m" validate:"gt=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text, json or pretty (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// String returns a safe representation of the config for logging.
// The database URL is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Writer: {MinimalSize: %d, OmitNulls: %v, DescribeCacheTTL: %v}, ",
		c.Writer.MinimalSize, c.Writer.OmitNulls, c.Writer.DescribeCacheTTL))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
