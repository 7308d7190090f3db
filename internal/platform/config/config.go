package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	StoreBackend string `env:"STORE_BACKEND" default:"postgres"`
	DatabaseURL  string `env:"DATABASE_URL"`
	RedisURL     string `env:"REDIS_URL"`

	// ChatID restricts the bot to one chat; 0 accepts every chat.
	ChatID             int64    `env:"CHAT_ID" default:"0"`
	ProtectedUserIDs   []int64  `env:"PROTECTED_USER_IDS"`
	ProtectedUsernames []string `env:"PROTECTED_USERNAMES"`

	AdminUserIDs     []int64       `env:"ADMIN_USER_IDS"`
	AdminLookupURL   string        `env:"ADMIN_LOOKUP_URL"`
	AdminLookupToken string        `env:"ADMIN_LOOKUP_TOKEN"`
	AdminCacheTTL    time.Duration `env:"ADMIN_CACHE_TTL" default:"5m"`
	AdminCacheSize   int           `env:"ADMIN_CACHE_SIZE" default:"1024"`

	APIToken           string  `env:"API_TOKEN"`
	EventsChannel      string  `env:"EVENTS_CHANNEL" default:"chatwarden:events"`
	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"20"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"40"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.APIToken == "" {
		return errors.New("API_TOKEN is required")
	}

	switch cfg.StoreBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required")
		}
	case BackendMemory:
		if cfg.IsProduction() {
			return errors.New("STORE_BACKEND=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of postgres, redis, memory, got %q", cfg.StoreBackend)
	}

	if cfg.IsProduction() && cfg.DatabaseURL != "" {
		if err := validateSSLMode(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	if cfg.AdminLookupURL != "" {
		if _, err := url.ParseRequestURI(cfg.AdminLookupURL); err != nil {
			return fmt.Errorf("ADMIN_LOOKUP_URL must be a valid URL: %w", err)
		}
	}

	if cfg.AdminCacheSize <= 0 {
		return errors.New("ADMIN_CACHE_SIZE must be positive")
	}
	if cfg.RateLimitPerSecond <= 0 || cfg.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
