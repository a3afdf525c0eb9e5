package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string

	JWTSecret     string
	TokenTTL      time.Duration
	Issuer        string
	Audience      string
	SweepInterval time.Duration
	LedgerTimeout time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:      os.Getenv("HTTP_ADDR"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		KafkaBrokers:  []string{os.Getenv("KAFKA_BROKER")},
		JWTSecret:     os.Getenv("JWT_SECRET"),
		Issuer:        os.Getenv("JWT_ISSUER"),
		Audience:      os.Getenv("JWT_AUDIENCE"),
		TokenTTL:      parseDuration("TOKEN_TTL", 24*time.Hour),
		SweepInterval: parseDuration("SWEEP_INTERVAL", time.Hour),
		LedgerTimeout: parseDuration("LEDGER_TIMEOUT", 3*time.Second),
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=tokens sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 1 && cfg.KafkaBrokers[0] == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "user-service"
	}
	if cfg.Audience == "" {
		cfg.Audience = "user-service-clients"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "a-string-secret-at-least-256-bits-long"
	}
	// HMAC-SHA256 needs at least 256 bits of key material.
	if len(cfg.JWTSecret) < 32 {
		slog.Error("JWT_SECRET must be at least 32 bytes", "length", len(cfg.JWTSecret))
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"postgres_dsn", cfg.PostgresDSN,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"issuer", cfg.Issuer,
		"audience", cfg.Audience,
		"token_ttl", cfg.TokenTTL,
		"sweep_interval", cfg.SweepInterval)
	return cfg
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return d
}
