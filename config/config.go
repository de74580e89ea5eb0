// Package config loads server configuration from defaults, an optional YAML
// file, an optional .env file and CONDUIT_-prefixed environment variables,
// in that order of precedence (later wins).
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/searchktools/conduit/core"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CONDUIT_"

var (
	ErrMissingAddress = errors.New("config: server address is required")
	ErrInvalidValue   = errors.New("config: invalid value")
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	CORS      CORSConfig      `yaml:"cors" envPrefix:"CORS_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

// ServerConfig holds listener and engine limits.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	MaxBodySize     SizeBytes     `yaml:"max_body_size" env:"MAX_BODY_SIZE"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout" env:"HANDLER_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxConnections  int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	KeepAlive       bool          `yaml:"keep_alive" env:"KEEP_ALIVE"`
	HTTP2           bool          `yaml:"http2" env:"HTTP2"`
	ReusePort       bool          `yaml:"reuse_port" env:"REUSE_PORT"`
	ReadBufferSize  SizeBytes     `yaml:"read_buffer_size" env:"READ_BUFFER_SIZE"`
	WriteBufferSize SizeBytes     `yaml:"write_buffer_size" env:"WRITE_BUFFER_SIZE"`
}

// LoggingConfig selects the log format (text or json) and level.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Path      string `yaml:"path" env:"PATH"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// RateLimitConfig enables per-client rate limiting when RPS is positive.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"RPS"`
	Burst int     `yaml:"burst" env:"BURST"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	c := core.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxBodySize:     SizeBytes(c.MaxBodySize),
			RequestTimeout:  10 * time.Second,
			IdleTimeout:     c.IdleTimeout,
			ShutdownTimeout: 30 * time.Second,
			KeepAlive:       c.KeepAlive,
			ReadBufferSize:  SizeBytes(c.ReadBufferSize),
			WriteBufferSize: SizeBytes(c.WriteBufferSize),
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Path: "/metrics", Namespace: "conduit"},
	}
}

// Load builds a configuration. path names an optional YAML file; envFiles
// are loaded with godotenv and never override variables already set. A
// missing ".env" is ignored when envFiles is empty.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFlags registers -config and -addr on fs, parses args and loads the
// configuration. -addr overrides every other source.
func FromFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	path := fs.String("config", "", "path to a YAML configuration file")
	addr := fs.String("addr", "", "listen address, overrides the configuration")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := Load(*path)
	if err != nil {
		return nil, err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return ErrMissingAddress
	}
	var errs []error
	check := func(ok bool, field string, v any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s=%v", ErrInvalidValue, field, v))
		}
	}
	s := c.Server
	check(s.MaxBodySize >= 0, "server.max_body_size", s.MaxBodySize)
	check(s.RequestTimeout >= 0, "server.request_timeout", s.RequestTimeout)
	check(s.HandlerTimeout >= 0, "server.handler_timeout", s.HandlerTimeout)
	check(s.IdleTimeout >= 0, "server.idle_timeout", s.IdleTimeout)
	check(s.WriteTimeout >= 0, "server.write_timeout", s.WriteTimeout)
	check(s.ShutdownTimeout >= 0, "server.shutdown_timeout", s.ShutdownTimeout)
	check(s.MaxConnections >= 0, "server.max_connections", s.MaxConnections)
	check(s.ReadBufferSize >= 0 && s.ReadBufferSize <= 1<<20, "server.read_buffer_size", s.ReadBufferSize)
	check(s.WriteBufferSize >= 0 && s.WriteBufferSize <= 1<<20, "server.write_buffer_size", s.WriteBufferSize)

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		check(false, "logging.format", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		check(false, "logging.level", c.Logging.Level)
	}
	if c.Metrics.Enabled {
		check(strings.HasPrefix(c.Metrics.Path, "/"), "metrics.path", c.Metrics.Path)
	}
	check(c.RateLimit.RPS >= 0, "rate_limit.rps", c.RateLimit.RPS)
	check(c.RateLimit.Burst >= 0, "rate_limit.burst", c.RateLimit.Burst)
	return errors.Join(errs...)
}

// Core converts the server section into engine settings.
func (s ServerConfig) Core() core.Config {
	return core.Config{
		MaxBodySize:     s.MaxBodySize.Int64(),
		RequestTimeout:  s.RequestTimeout,
		HandlerTimeout:  s.HandlerTimeout,
		IdleTimeout:     s.IdleTimeout,
		WriteTimeout:    s.WriteTimeout,
		ShutdownTimeout: s.ShutdownTimeout,
		MaxConnections:  s.MaxConnections,
		KeepAlive:       s.KeepAlive,
		HTTP2:           s.HTTP2,
		ReusePort:       s.ReusePort,
		ReadBufferSize:  int(s.ReadBufferSize),
		WriteBufferSize: int(s.WriteBufferSize),
	}
}
