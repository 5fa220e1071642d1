// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// SessionTTL is how long an active session may go without updates
	// before the sweeper force-ends it.
	SessionTTL time.Duration

	// IdleTimeout is the tracker's no-activity threshold.
	IdleTimeout time.Duration

	// TickInterval and DepthPerTick tune the depth gauge.
	TickInterval time.Duration
	DepthPerTick float64

	Summarizer SummarizerConfig
}

// SummarizerConfig controls the text-generation collaborator.
type SummarizerConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Enabled reports whether the summarizer can be called at all.
func (c SummarizerConfig) Enabled() bool {
	return c.APIKey != "" || strings.HasPrefix(c.BaseURL, "mock://")
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/flowd.db"),
		SessionTTL:   getEnvDuration("SESSION_TTL", 4*time.Hour),
		IdleTimeout:  getEnvDuration("IDLE_TIMEOUT", 2*time.Minute),
		TickInterval: getEnvDuration("TICK_INTERVAL", time.Second),
		DepthPerTick: getEnvFloat("DEPTH_PER_TICK", 0.5),
		Summarizer:   SummarizerConfig{
			BaseURL: getEnv("SUMMARIZER_BASE_URL", ""),
			APIKey:  getEnv("SUMMARIZER_API_KEY", ""),
			Model:   getEnv("SUMMARIZER_MODEL", ""),
			Timeout: getEnvDuration("SUMMARIZER_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("IDLE_TIMEOUT must be > 0")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be > 0")
	}
	if c.DepthPerTick <= 0 {
		return fmt.Errorf("DEPTH_PER_TICK must be > 0")
	}
	if c.Summarizer.Timeout <= 0 {
		return fmt.Errorf("SUMMARIZER_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && f > 0 {
		return f
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare integers are treated as seconds.
	if n, err := strconv.Atoi(value); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
