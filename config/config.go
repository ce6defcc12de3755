package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultAllowedOrigins are the local frontend dev server origins.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}

// Config holds all server configuration
type Config struct {
	Port            int
	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string
	GeminiTimeout   time.Duration // 0 leaves the transport defaults in charge
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AllowedOrigins  []string
	RedisURL        string // empty disables the presence mirror
	RedisPassword   string
	SessionTTL      time.Duration
	KeepAlivePeriod time.Duration // 0 disables pings
	LogLevel        string
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:            8000,
		GeminiModel:     "gemini-1.5-flash",
		AllowedOrigins:  append([]string(nil), DefaultAllowedOrigins...),
		SessionTTL:      30 * time.Minute,
		KeepAlivePeriod: 30 * time.Second,
		LogLevel:        "info",
	}

	// Required: GOOGLE_API_KEY (GEMINI_API_KEY accepted as an alias)
	config.GeminiAPIKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	if config.GeminiAPIKey == "" {
		config.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY environment variable is required")
	}

	// Required: OPENAI_API_KEY
	config.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if config.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}

	// Optional: PORT
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = p
	}

	if model := strings.TrimSpace(os.Getenv("GEMINI_MODEL")); model != "" {
		config.GeminiModel = model
	}
	config.GeminiBaseURL = strings.TrimSpace(os.Getenv("GEMINI_BASE_URL"))
	config.OpenAIBaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))

	// Optional: GEMINI_TIMEOUT (in seconds)
	if timeout := os.Getenv("GEMINI_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid GEMINI_TIMEOUT: %w", err)
		}
		config.GeminiTimeout = time.Duration(t) * time.Second
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = splitList(origins)
	}

	config.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	config.RedisPassword = os.Getenv("REDIS_PASSWORD")

	// Optional: SESSION_TTL (in minutes)
	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		t, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
		}
		config.SessionTTL = time.Duration(t) * time.Minute
	}

	// Optional: KEEPALIVE_PERIOD (in seconds)
	if keepalive := os.Getenv("KEEPALIVE_PERIOD"); keepalive != "" {
		k, err := strconv.Atoi(keepalive)
		if err != nil {
			return nil, fmt.Errorf("invalid KEEPALIVE_PERIOD: %w", err)
		}
		config.KeepAlivePeriod = time.Duration(k) * time.Second
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		config.LogLevel = level
	}

	return config, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
