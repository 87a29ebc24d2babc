package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"CHAT_SERVER_URL", "CHAT_API_URL", "CHAT_CACHE_PATH", "CHAT_DIAL_TIMEOUT", "CHAT_TURN_TIMEOUT", "CHAT_EVENT_BUFFER", "LOG_LEVEL", "PORT", "BACKEND_STEP_DELAY"} {
		t.Setenv(key, "")
	}
	// An empty value counts as set for string keys; unparsable numbers and durations fall back.
	t.Setenv("CHAT_SERVER_URL", "ws://localhost:8000/ws")
	t.Setenv("CHAT_API_URL", "http://localhost:8000")
	t.Setenv("CHAT_CACHE_PATH", "./data/chat-cache.db")
	t.Setenv("PORT", "8000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TurnTimeout != 0 {
		t.Errorf("expected turn timeout disabled by default, got %v", cfg.TurnTimeout)
	}
	if cfg.DialTimeout != 10*time.Second {
		t.Errorf("expected 10s dial timeout fallback, got %v", cfg.DialTimeout)
	}
	if cfg.EventBuffer != 64 {
		t.Errorf("expected event buffer 64, got %d", cfg.EventBuffer)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("expected info level, got %v", cfg.SlogLevel())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHAT_SERVER_URL", "wss://chat.example.com/ws")
	t.Setenv("CHAT_TURN_TIMEOUT", "90s")
	t.Setenv("CHAT_EVENT_BUFFER", "8")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BACKEND_STEP_DELAY", "20ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerURL != "wss://chat.example.com/ws" {
		t.Errorf("unexpected server url %q", cfg.ServerURL)
	}
	if cfg.TurnTimeout != 90*time.Second {
		t.Errorf("unexpected turn timeout %v", cfg.TurnTimeout)
	}
	if cfg.EventBuffer != 8 {
		t.Errorf("unexpected event buffer %d", cfg.EventBuffer)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("unexpected level %v", cfg.SlogLevel())
	}
	if cfg.Backend.StepDelay != 20*time.Millisecond {
		t.Errorf("unexpected step delay %v", cfg.Backend.StepDelay)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := Config{
		ServerURL:   "ws://localhost:8000/ws",
		APIURL:      "http://localhost:8000",
		CachePath:   "cache.db",
		EventBuffer: 1,
		LogLevel:    "info",
		Backend:     BackendConfig{Port: "8000"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "scheme", mutate: func(c *Config) { c.ServerURL = "ftp://host/ws" }},
		{name: "cache path", mutate: func(c *Config) { c.CachePath = "" }},
		{name: "negative timeout", mutate: func(c *Config) { c.TurnTimeout = -time.Second }},
		{name: "event buffer", mutate: func(c *Config) { c.EventBuffer = 0 }},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
		{name: "port", mutate: func(c *Config) { c.Backend.Port = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
