package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const EnvDevelopment = "development"

type Config struct {
	Env      string         `json:"env"`
	LogEnv   string         `json:"log_env"`
	Http     HttpConfig     `json:"http"`
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	APIKey   string         `json:"api_key,omitempty"`
	Webhook  WebhookConfig  `json:"webhook"`
}

type HttpConfig struct {
	Port            string          `json:"port"`
	ReadTimeout     time.Duration   `json:"read_timeout"`
	WriteTimeout    time.Duration   `json:"write_timeout"`
	ShutdownTimeout time.Duration   `json:"shutdown_timeout"`
	MaxBodyBytes    int64           `json:"max_body_bytes"`
	RateLimit       RateLimitConfig `json:"rate_limit"`
}

// RateLimitConfig is the per-IP token bucket on /api. A client syncing a
// backlog sends one request per record, so the burst must cover it.
type RateLimitConfig struct {
	RPS      int           `json:"rps"`
	Burst    int           `json:"burst"`
	IdleTTL  time.Duration `json:"idle_ttl"`
	Disabled bool          `json:"disabled"`
}

const (
	DefaultRateRPS     = 100
	DefaultRateBurst   = 1000
	DefaultRateIdleTTL = 10 * time.Minute
)

// WithDefaults fills zero fields.
func (r RateLimitConfig) WithDefaults() RateLimitConfig {
	if r.RPS <= 0 {
		r.RPS = DefaultRateRPS
	}
	if r.Burst <= 0 {
		r.Burst = DefaultRateBurst
	}
	if r.IdleTTL <= 0 {
		r.IdleTTL = DefaultRateIdleTTL
	}
	return r
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	SSLMode  string `json:"ssl_mode"`

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type RedisConfig struct {
	Addr        string        `json:"addr"`
	Password    string        `json:"password,omitempty"`
	DB          int           `json:"db"`
	PoolSize    int           `json:"pool_size"`
	DialTimeout time.Duration `json:"dial_timeout"`
	Disabled    bool          `json:"disabled"`
	StatsTTL    time.Duration `json:"stats_ttl"`
}

type WebhookConfig struct {
	URL      string `json:"url"`
	Disabled bool   `json:"disabled"`
}

// AuthRequired reports whether X-API-Key is enforced.
func (c *Config) AuthRequired() bool {
	return c.Env != EnvDevelopment && c.APIKey != ""
}

func Load(ctx context.Context) (*Config, error) {

	stdLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		stdLogger.Warn(".env load warning", slog.Any("error", err))
	}

	cfg := &Config{
		Env:    getEnv("ENV", EnvDevelopment),
		LogEnv: getEnv("LOG_ENV", "local"),
		Http: HttpConfig{
			Port:            getEnv("HTTP_PORT", ":3000"),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    int64(getEnvInt("HTTP_MAX_BODY_BYTES", 10<<20)),
			RateLimit: RateLimitConfig{
				RPS:      getEnvInt("HTTP_RATE_RPS", DefaultRateRPS),
				Burst:    getEnvInt("HTTP_RATE_BURST", DefaultRateBurst),
				IdleTTL:  getEnvDuration("HTTP_RATE_IDLE_TTL", DefaultRateIdleTTL),
				Disabled: getEnvBool("HTTP_RATE_DISABLED", false),
			},
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnvInt("POSTGRES_PORT", 5432),
			Database:        getEnv("POSTGRES_DB", "location_tracker"),
			User:            getEnv("POSTGRES_USER", "postgres"),
			Password:        getEnv("POSTGRES_PASSWORD", "postgres"),
			SSLMode:         getEnv("POSTGRES_SSL_MODE", "disable"),
			MaxConns:        int32(getEnvInt("POSTGRES_MAX_CONNS", 20)),
			MinConns:        1,
			MaxConnLifetime: 1 * time.Hour,
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			PoolSize:    getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout: getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			Disabled:    getEnvBool("REDIS_DISABLED", false),
			StatsTTL:    getEnvDuration("REDIS_STATS_TTL", 30*time.Second),
		},
		APIKey: getEnv("API_KEY", ""),
		Webhook: WebhookConfig{
			URL:      getEnv("WEBHOOK_URL", ""),
			Disabled: getEnvBool("WEBHOOK_DISABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stdLogger.Info("Config loaded successfully",
		slog.String("env", cfg.Env),
		slog.String("http_port", cfg.Http.Port),
		slog.String("postgres_db", cfg.Postgres.Database),
		slog.String("redis_addr", cfg.Redis.Addr),
		slog.Bool("auth_required", cfg.AuthRequired()))

	return cfg, nil
}

func (c *Config) Validate() error {

	if c.Http.Port == "" || c.Http.Port[0] != ':' {
		return errors.New("HTTP_PORT must start with ':' like ':3000'")
	}

	if c.Http.RateLimit.RPS < 0 || c.Http.RateLimit.Burst < 0 {
		return errors.New("HTTP_RATE_RPS and HTTP_RATE_BURST must not be negative")
	}

	if c.Postgres.Host == "" {
		return errors.New("POSTGRES_HOST required")
	}

	if !c.Webhook.Disabled && c.Webhook.URL == "" {
		return errors.New("WEBHOOK_URL required when webhooks are enabled")
	}

	if c.Webhook.Disabled {
		slog.Debug("webhooks disabled via WEBHOOK_DISABLED")
	}

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
