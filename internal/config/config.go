// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/acbuy/internal/domain"
)

// Config holds the front desk server configuration.
type Config struct {
	Port                  string
	FrontendURL           string
	BackendAddr           string
	Schema                domain.Schema
	SessionTTL            time.Duration
	SessionSweepInterval  time.Duration
	LoginTimeout          time.Duration
	QueryStaleTime        time.Duration
	SubmitRatePerMinute   int
	BackendConnectTimeout time.Duration
	BackendRequestTimeout time.Duration
}

// BackendConfig holds the reference backend configuration.
type BackendConfig struct {
	Listen      string
	DBPath      string
	Schema      domain.Schema
	AdminTokens map[string]string // token -> principal
}

// Load reads the front desk configuration from environment variables.
func Load() (*Config, error) {
	schema, err := domain.ParseSchema(getEnv("SUBMISSION_SCHEMA", string(domain.SchemaEnum)))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		FrontendURL:           getEnv("FRONTEND_URL", ""),
		BackendAddr:           getEnv("BACKEND_ADDR", "localhost:50061"),
		Schema:                schema,
		SessionTTL:            getEnvDuration("SESSION_TTL", 60*time.Minute),
		SessionSweepInterval:  getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		LoginTimeout:          getEnvDuration("LOGIN_TIMEOUT", 2*time.Minute),
		QueryStaleTime:        getEnvDuration("QUERY_STALE_TIME", 0),
		SubmitRatePerMinute:   getEnvInt("SUBMIT_RATE_PER_MINUTE", 6),
		BackendConnectTimeout: getEnvDuration("BACKEND_CONNECT_TIMEOUT", 5*time.Second),
		BackendRequestTimeout: getEnvDuration("BACKEND_REQUEST_TIMEOUT", 10*time.Second),
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
	if c.BackendAddr == "" {
		return fmt.Errorf("BACKEND_ADDR cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be > 0")
	}
	if c.LoginTimeout <= 0 {
		return fmt.Errorf("LOGIN_TIMEOUT must be > 0")
	}
	if c.QueryStaleTime < 0 {
		return fmt.Errorf("QUERY_STALE_TIME cannot be negative")
	}
	if c.SubmitRatePerMinute < 0 {
		return fmt.Errorf("SUBMIT_RATE_PER_MINUTE cannot be negative")
	}
	if c.BackendConnectTimeout <= 0 {
		return fmt.Errorf("BACKEND_CONNECT_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

// LoadBackend reads the reference backend configuration from environment variables.
func LoadBackend() (*BackendConfig, error) {
	schema, err := domain.ParseSchema(getEnv("SUBMISSION_SCHEMA", string(domain.SchemaEnum)))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	tokens, err := ParseAdminTokens(getEnv("ADMIN_TOKENS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &BackendConfig{
		Listen:      getEnv("BACKEND_LISTEN", ":50061"),
		DBPath:      getEnv("DB_PATH", "./data/acbuy.db"),
		Schema:      schema,
		AdminTokens: tokens,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *BackendConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("BACKEND_LISTEN cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	return nil
}

// ParseAdminTokens parses "principal=token,principal=token" into a
// token -> principal map.
func ParseAdminTokens(s string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		principal, token, ok := strings.Cut(pair, "=")
		principal, token = strings.TrimSpace(principal), strings.TrimSpace(token)
		if !ok || principal == "" || token == "" {
			return nil, fmt.Errorf("ADMIN_TOKENS entry %q must be principal=token", pair)
		}
		if _, dup := tokens[token]; dup {
			return nil, fmt.Errorf("ADMIN_TOKENS has a duplicate token for %q", principal)
		}
		tokens[token] = principal
	}
	return tokens, nil
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
