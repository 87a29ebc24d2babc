// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	ServerURL   string        // WebSocket base URL; the client id is appended as the last path segment
	APIURL      string        // Base URL of the legacy request/response API
	CachePath   string        // SQLite file backing the local cache
	DialTimeout time.Duration // Bound on the WebSocket handshake
	TurnTimeout time.Duration // 0 disables the busy timeout
	EventBuffer int
	LogLevel    string
	Backend     BackendConfig
}

// BackendConfig configures the bundled reference backend.
type BackendConfig struct {
	Port      string
	StepDelay time.Duration // Pause between lifecycle events of a turn
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	eventBuffer := getEnvInt("CHAT_EVENT_BUFFER", 64)
	if eventBuffer <= 0 {
		eventBuffer = 64
	}

	cfg := &Config{
		ServerURL:   getEnv("CHAT_SERVER_URL", "ws://localhost:8000/ws"),
		APIURL:      getEnv("CHAT_API_URL", "http://localhost:8000"),
		CachePath:   getEnv("CHAT_CACHE_PATH", "./data/chat-cache.db"),
		DialTimeout: getEnvDuration("CHAT_DIAL_TIMEOUT", 10*time.Second),
		TurnTimeout: getEnvDuration("CHAT_TURN_TIMEOUT", 0),
		EventBuffer: eventBuffer,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Backend: BackendConfig{
			Port:      getEnv("PORT", "8000"),
			StepDelay: getEnvDuration("BACKEND_STEP_DELAY", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("CHAT_SERVER_URL is not a URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("CHAT_SERVER_URL must use ws, wss, http or https, got %q", u.Scheme)
	}
	if c.APIURL == "" {
		return fmt.Errorf("CHAT_API_URL cannot be empty")
	}
	if c.CachePath == "" {
		return fmt.Errorf("CHAT_CACHE_PATH cannot be empty")
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("CHAT_DIAL_TIMEOUT must be >= 0")
	}
	if c.TurnTimeout < 0 {
		return fmt.Errorf("CHAT_TURN_TIMEOUT must be >= 0")
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("CHAT_EVENT_BUFFER must be > 0")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Backend.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", name)
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
