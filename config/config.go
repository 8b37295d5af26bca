// Package config loads service configuration from the environment.
// A .env file is applied first when present, so local development does not
// need exported variables; real deployments set the environment directly.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration, grouped by concern.
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Tracing   TracingConfig
	Profiling ProfilingConfig
	Query     QueryConfig
	Secrets   SecretsConfig
	Shutdown  ShutdownConfig
}

// ServiceConfig identifies the service instance.
type ServiceConfig struct {
	Name    string
	Version string
	Env     string
	Port    string
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL string
}

// LoggingConfig controls the zerolog global level.
type LoggingConfig struct {
	Level string
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled    bool
	Endpoint   string
	SampleRate float64
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled  bool
	Endpoint string
}

// QueryConfig bounds remote Metabase calls.
type QueryConfig struct {
	TimeoutSeconds int
}

// SecretsConfig holds the key used to seal stored server credentials.
// The key is 32 bytes, base64-encoded in the environment.
type SecretsConfig struct {
	Key string
}

// ShutdownConfig controls graceful shutdown behavior.
type ShutdownConfig struct {
	TimeoutSeconds             int
	ReadinessDrainDelaySeconds int
}

// Load reads configuration from the environment, applying .env first when present.
func Load() *Config {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	return &Config{
		Service: ServiceConfig{
			Name:    getEnv("SERVICE_NAME", "metaboard"),
			Version: getEnv("SERVICE_VERSION", "dev"),
			Env:     getEnv("SERVICE_ENV", "development"),
			Port:    getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Tracing: TracingConfig{
			Enabled:    getEnvBool("TRACING_ENABLED", false),
			Endpoint:   getEnv("TRACING_ENDPOINT", "localhost:4318"),
			SampleRate: getEnvFloat("TRACING_SAMPLE_RATE", 0.1),
		},
		Profiling: ProfilingConfig{
			Enabled:  getEnvBool("PROFILING_ENABLED", false),
			Endpoint: getEnv("PROFILING_ENDPOINT", "http://localhost:4040"),
		},
		Query: QueryConfig{
			TimeoutSeconds: getEnvInt("QUERY_TIMEOUT", 30),
		},
		Secrets: SecretsConfig{
			Key: getEnv("SECRETS_KEY", ""),
		},
		Shutdown: ShutdownConfig{
			TimeoutSeconds:             getEnvInt("SHUTDOWN_TIMEOUT", 15),
			ReadinessDrainDelaySeconds: getEnvInt("READINESS_DRAIN_DELAY", 0),
		},
	}
}

// Validate checks that required settings are present and well-formed.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Secrets.Key == "" {
		return fmt.Errorf("SECRETS_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(c.Secrets.Key)
	if err != nil {
		return fmt.Errorf("SECRETS_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("SECRETS_KEY must decode to 32 bytes, got %d", len(key))
	}
	if c.Query.TimeoutSeconds <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive, got %d", c.Query.TimeoutSeconds)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be in [0,1], got %f", c.Tracing.SampleRate)
	}
	return nil
}

// SecretsKeyBytes returns the decoded 32-byte sealing key.
// Call Validate first; an invalid key returns an error here too.
func (c *Config) SecretsKeyBytes() (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(c.Secrets.Key)
	if err != nil {
		return nil, fmt.Errorf("decode SECRETS_KEY: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("SECRETS_KEY must decode to 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// GetQueryTimeoutDuration returns the per-remote-call timeout.
func (c *Config) GetQueryTimeoutDuration() time.Duration {
	return time.Duration(c.Query.TimeoutSeconds) * time.Second
}

// GetShutdownTimeoutDuration returns the graceful shutdown timeout.
func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.Shutdown.TimeoutSeconds) * time.Second
}

// GetReadinessDrainDelayDuration returns the delay between failing readiness
// and starting HTTP shutdown.
func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	return time.Duration(c.Shutdown.ReadinessDrainDelaySeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
