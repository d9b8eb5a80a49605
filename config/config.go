// Package config loads service configuration.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml), with ${VAR} references expanded
//  2. Environment variables (fallback)
//
// Zero values are filled from Defaults, so a partial file is fine.
//
//	cfg, err := config.LoadOrEnv("config.yaml")
//	store, err := sqlite.New(cfg.Storage.DatabasePath)
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Allocation AllocationConfig `yaml:"allocation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst      int           `yaml:"rate_burst"`
	SeedScenarios  bool          `yaml:"seed_scenarios"`
}

// StorageConfig holds database configuration.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// AllocationConfig holds allocator settings.
type AllocationConfig struct {
	// Precision is the number of minor-unit digits. nil means the allocator
	// default; 0 is a valid zero-decimal currency.
	Precision    *int32 `yaml:"precision"`
	BatchWorkers int    `yaml:"batch_workers"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:      50,
			RateBurst:      100,
		},
		Storage: StorageConfig{
			DatabasePath: "./disbursement.db",
		},
		Allocation: AllocationConfig{
			BatchWorkers: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() *Config {
	cfg := Defaults()
	cfg.Server.Port = getEnvInt("DISBURSEMENT_PORT", cfg.Server.Port)
	cfg.Server.RateLimit = getEnvFloat("DISBURSEMENT_RATE_LIMIT", cfg.Server.RateLimit)
	if origins := os.Getenv("DISBURSEMENT_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
	cfg.Server.SeedScenarios = getEnv("DISBURSEMENT_SEED_SCENARIOS", "") == "true"
	cfg.Storage.DatabasePath = getEnv("DISBURSEMENT_DB_PATH", cfg.Storage.DatabasePath)
	if p := os.Getenv("DISBURSEMENT_PRECISION"); p != "" {
		if v, err := strconv.ParseInt(p, 10, 32); err == nil {
			precision := int32(v)
			cfg.Allocation.Precision = &precision
		}
	}
	cfg.Allocation.BatchWorkers = getEnvInt("DISBURSEMENT_BATCH_WORKERS", cfg.Allocation.BatchWorkers)
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	return cfg
}

// LoadOrEnv loads path, falling back to environment variables only when the
// file does not exist. A file that exists but cannot be parsed or validated
// is an error.
func LoadOrEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return LoadFromEnv(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Allocation.Precision != nil && *c.Allocation.Precision < 0 {
		return fmt.Errorf("allocation.precision must not be negative")
	}
	if c.Allocation.BatchWorkers < 1 {
		return fmt.Errorf("allocation.batch_workers must be at least 1")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
