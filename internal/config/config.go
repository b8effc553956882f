// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings for the server, worker and seed commands.
type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	// DatabaseURL selects the Postgres backend; empty runs on the in-memory store.
	DatabaseURL string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	MappingCacheTTL time.Duration

	JWTSecret      string
	AccessTokenTTL time.Duration

	IdempotencyEnabled bool
	IdempotencyTTL     time.Duration

	// Location is used to interpret wall-clock timestamps in POS exports.
	Location *time.Location

	GatewayURL           string
	GatewayKey           string
	GatewayWebhookSecret string

	// ImportRowFilter is an optional CEL expression; rows for which it is true are skipped.
	ImportRowFilter string
	AutoLinkEvents  bool

	// AdminEmail and AdminPassword create an admin operator at startup when
	// none exists with that email. Used by the seed command and the memory backend.
	AdminEmail    string
	AdminPassword string

	OutboxBatchSize    int
	OutboxPollInterval time.Duration
}

// Load reads .env (when present) and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return Config{}, fmt.Errorf("load TIMEZONE: %w", err)
	}

	cfg := Config{
		Port:                 getEnv("PORT", "8080"),
		AppEnv:               getEnv("APP_ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		MappingCacheTTL:      getEnvDuration("MAPPING_CACHE_TTL", 10*time.Minute),
		JWTSecret:            strings.TrimSpace(os.Getenv("JWT_SECRET")),
		AccessTokenTTL:       getEnvDuration("ACCESS_TOKEN_TTL", 8*time.Hour),
		IdempotencyEnabled:   getEnvBool("IDEMPOTENCY_ENABLED", false),
		IdempotencyTTL:       getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		Location:             loc,
		GatewayURL:           os.Getenv("GATEWAY_URL"),
		GatewayKey:           os.Getenv("GATEWAY_KEY"),
		GatewayWebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		ImportRowFilter:      strings.TrimSpace(os.Getenv("IMPORT_ROW_FILTER")),
		AutoLinkEvents:       getEnvBool("AUTO_LINK_EVENTS", true),
		AdminEmail:           strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
		OutboxBatchSize:      getEnvInt("OUTBOX_BATCH_SIZE", 100),
		OutboxPollInterval:   getEnvDuration("OUTBOX_POLL_INTERVAL", time.Second),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// Address returns the listen address for the HTTP server.
func (c Config) Address() string {
	return ":" + c.Port
}

// IsDevelopment reports whether the process runs with development defaults.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
