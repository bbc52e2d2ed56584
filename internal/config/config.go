package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the API service
type Config struct {
	// Server
	Port           string   `yaml:"port" validate:"required,numeric"`
	AllowedOrigins []string `yaml:"allowed_origins" validate:"dive,required"`
	StaticDir      string   `yaml:"static_dir"`

	// Database. DatabaseURL selects PostgreSQL; otherwise SQLitePath is opened.
	DatabaseURL string `yaml:"database_url" validate:"required_without=SQLitePath"`
	SQLitePath  string `yaml:"sqlite_database"`

	// Timeouts
	QueryTimeoutSeconds  int `yaml:"query_timeout_seconds" validate:"gte=0"`
	HealthTimeoutSeconds int `yaml:"health_timeout_seconds" validate:"gt=0"`

	// Logging
	LogLevel  string `yaml:"log_level" validate:"oneof=DEBUG INFO WARN ERROR"`
	LogFormat string `yaml:"log_format" validate:"oneof=json text"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		Port:                 "8081",
		AllowedOrigins:       []string{"http://localhost:5173"},
		SQLitePath:           "data/rtps.db",
		QueryTimeoutSeconds:  10,
		HealthTimeoutSeconds: 2,
		LogLevel:             "INFO",
		LogFormat:            "json",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE, and environment variables, in increasing precedence.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.SQLitePath = getEnv("SQLITE_DATABASE", c.SQLitePath)
	c.QueryTimeoutSeconds = getEnvInt("QUERY_TIMEOUT_SECONDS", c.QueryTimeoutSeconds)
	c.HealthTimeoutSeconds = getEnvInt("HEALTH_TIMEOUT_SECONDS", c.HealthTimeoutSeconds)
	c.LogLevel = strings.ToUpper(getEnv("LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", c.LogFormat))

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// UsePostgres reports whether DatabaseURL selects the PostgreSQL backend
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// QueryTimeout bounds a single frequency query; zero means no bound
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// HealthTimeout bounds the database check behind /health
func (c *Config) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
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
