// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultAllowedOrigins are the local frontend dev servers accepted when
// ALLOWED_ORIGINS is unset.
var DefaultAllowedOrigins = []string{
	"http://localhost:5173",
	"http://127.0.0.1:5173",
	"http://localhost:5174",
	"http://127.0.0.1:5174",
	"http://localhost:3000",
	"http://localhost:3001",
}

// Config holds all application configuration.
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       slog.Level
	Catalog        CatalogConfig
	Agent          AgentConfig
	Session        SessionConfig
	Archive        ArchiveConfig
}

// CatalogConfig describes the external learning catalog API.
type CatalogConfig struct {
	APIToken      string
	ContentURL    string
	LiveEventsURL string
	WebURL        string
	HTTPTimeout   time.Duration
	CacheTTL      time.Duration
	MaxPages      int
}

// AgentConfig controls the LLM-backed capabilities.
type AgentConfig struct {
	OllamaHost string
	Model      string
	MaxTurns   int
	MaxHistory int
}

// SessionConfig controls session eviction.
type SessionConfig struct {
	ActivityTTL  time.Duration
	HeartbeatTTL time.Duration
	SweepEvery   int
}

// ArchiveConfig controls the SQLite transcript archive.
type ArchiveConfig struct {
	Enabled   bool
	DBPath    string
	Retention time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := getEnv("CATALOG_API_TOKEN", "")
	if token == "" {
		token = getEnv("OREILLY_API_KEY", "")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", DefaultAllowedOrigins),
		LogLevel:       parseLevel(getEnv("LOG_LEVEL", "info")),
		Catalog: CatalogConfig{
			APIToken:      token,
			ContentURL:    getEnv("CATALOG_CONTENT_URL", "https://api.oreilly.com/api/v1/integrations/content/"),
			LiveEventsURL: getEnv("CATALOG_LIVE_EVENTS_URL", "https://api.oreilly.com/api/v1/integrations/live-events/"),
			WebURL:        getEnv("CATALOG_WEB_URL", "https://learning.oreilly.com"),
			HTTPTimeout:   getEnvDuration("CATALOG_HTTP_TIMEOUT", 10*time.Second),
			CacheTTL:      getEnvDuration("CATALOG_CACHE_TTL", 5*time.Minute),
			MaxPages:      getEnvInt("LIVE_EVENTS_MAX_PAGES", 10),
		},
		Agent: AgentConfig{
			OllamaHost: getEnv("OLLAMA_HOST", "http://localhost:11434"),
			Model:      getEnv("OLLAMA_MODEL", "llama3.1"),
			MaxTurns:   getEnvInt("AGENT_MAX_TURNS", 4),
			MaxHistory: getEnvInt("AGENT_MAX_HISTORY", 10),
		},
		Session: SessionConfig{
			ActivityTTL:  getEnvDuration("SESSION_ACTIVITY_TTL", 30*time.Minute),
			HeartbeatTTL: getEnvDuration("SESSION_HEARTBEAT_TTL", 5*time.Minute),
			SweepEvery:   getEnvInt("SWEEP_EVERY", 5),
		},
		Archive: ArchiveConfig{
			Enabled:   getEnvBool("ARCHIVE_ENABLED", true),
			DBPath:    getEnv("ARCHIVE_DB_PATH", "./data/transcripts.db"),
			Retention: getEnvDuration("ARCHIVE_RETENTION", 30*24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// A missing catalog token is not an error here: only the endpoints that
// need it fail.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Catalog.ContentURL == "" {
		return fmt.Errorf("CATALOG_CONTENT_URL cannot be empty")
	}
	if c.Catalog.LiveEventsURL == "" {
		return fmt.Errorf("CATALOG_LIVE_EVENTS_URL cannot be empty")
	}
	if c.Catalog.MaxPages <= 0 {
		return fmt.Errorf("LIVE_EVENTS_MAX_PAGES must be > 0")
	}
	if c.Agent.Model == "" {
		return fmt.Errorf("OLLAMA_MODEL cannot be empty")
	}
	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("AGENT_MAX_TURNS must be > 0")
	}
	if c.Session.ActivityTTL <= 0 || c.Session.HeartbeatTTL <= 0 {
		return fmt.Errorf("session TTLs must be > 0")
	}
	if c.Session.SweepEvery <= 0 {
		return fmt.Errorf("SWEEP_EVERY must be > 0")
	}
	if c.Archive.Enabled && c.Archive.DBPath == "" {
		return fmt.Errorf("ARCHIVE_DB_PATH cannot be empty when the archive is enabled")
	}
	return nil
}

// HasCatalogToken reports whether a catalog API token was supplied.
func (c *Config) HasCatalogToken() bool {
	return strings.TrimSpace(c.Catalog.APIToken) != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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

// getEnvList splits a comma separated variable, dropping blank entries.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
