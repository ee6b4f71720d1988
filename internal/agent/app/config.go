package app

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	APIBaseURL string // Required: AirBnG backend base URL
	PushURL    string // Required: websocket endpoint for live alarms

	Email    string // Required: member login email
	Password string // Required: member login password

	DatabaseFile        string        // Optional: path to SQLite inbox file (default: ./inbox.db)
	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: text)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

// fileConfig is the subset of Config configurable via the optional TOML
// file. Credentials stay env-only.
type fileConfig struct {
	APIBaseURL   string `toml:"api_base_url"`
	PushURL      string `toml:"push_url"`
	DatabaseFile string `toml:"database_file"`
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	LogFormat    string `toml:"log_format"`
}

// LoadConfig resolves configuration as defaults, then the TOML file named
// by AIRBNG_CONFIG_FILE (if set), then AIRBNG_* environment variables.
func LoadConfig() (Config, error) {
	cfg := Config{
		DatabaseFile:        "inbox.db",
		Env:                 "dev",
		LogLevel:            "info",
		LogFormat:           "text",
		ShutdownGracePeriod: 10 * time.Second,
	}

	if path := os.Getenv("AIRBNG_CONFIG_FILE"); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		applyString(&cfg.APIBaseURL, fc.APIBaseURL)
		applyString(&cfg.PushURL, fc.PushURL)
		applyString(&cfg.DatabaseFile, fc.DatabaseFile)
		applyString(&cfg.Env, fc.Env)
		applyString(&cfg.LogLevel, fc.LogLevel)
		applyString(&cfg.LogFormat, fc.LogFormat)
	}

	cfg.APIBaseURL = getEnvOrDefault("AIRBNG_API_BASE_URL", cfg.APIBaseURL)
	cfg.PushURL = getEnvOrDefault("AIRBNG_PUSH_URL", cfg.PushURL)
	cfg.Email = os.Getenv("AIRBNG_EMAIL")
	cfg.Password = os.Getenv("AIRBNG_PASSWORD")
	cfg.DatabaseFile = getEnvOrDefault("AIRBNG_DATABASE_FILE", cfg.DatabaseFile)
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)

	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("AIRBNG_API_BASE_URL is required")
	}
	if cfg.PushURL == "" {
		return Config{}, fmt.Errorf("AIRBNG_PUSH_URL is required")
	}
	if cfg.Email == "" || cfg.Password == "" {
		return Config{}, fmt.Errorf("AIRBNG_EMAIL and AIRBNG_PASSWORD are required")
	}

	return cfg, nil
}

func applyString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
