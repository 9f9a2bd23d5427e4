package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	DatabaseURL     string
	NatsURL         string
	NatsToken       string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	CheckModel      string
	IdentityURL     string
	ProfileURL      string
	ProfileCacheTTL time.Duration
	GCRetention     time.Duration
	GCBatchSize     int
}

func Load() Config {
	return Config{
		Port:            envInt("INTAKE_PORT", 8750),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("INTAKE_MODEL", "claude-sonnet-4-20250514"),
		CheckModel:      envStr("INTAKE_CHECK_MODEL", "claude-3-5-haiku-20241022"),
		IdentityURL:     envStr("IDENTITY_URL", "http://identity:8700"),
		ProfileURL:      envStr("PROFILE_URL", "http://profiles:8710"),
		ProfileCacheTTL: envDur("INTAKE_PROFILE_CACHE_TTL", 5*time.Minute),
		GCRetention:     envDur("INTAKE_GC_RETENTION", 24*time.Hour),
		GCBatchSize:     envInt("INTAKE_GC_BATCH_SIZE", 500),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
