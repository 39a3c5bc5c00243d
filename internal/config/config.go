package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Port                   string   `toml:"port"`
	AllowedOrigins         []string `toml:"allowed_origins"`
	DatabaseURL            string   `toml:"database_url"`
	RedisAddr              string   `toml:"redis_addr"`
	RedisPassword          string   `toml:"redis_password"`
	RedisDB                int      `toml:"redis_db"`
	RedisEventChannel      string   `toml:"redis_event_channel"`
	CatalogCacheTTLSeconds int      `toml:"catalog_cache_ttl_seconds"`
	AuthSecret             string   `toml:"auth_secret"`
	AccessTokenTTLMinutes  int      `toml:"access_token_ttl_minutes"`
	ReferenceCurrency      string   `toml:"reference_currency"`
	LocalCurrency          string   `toml:"local_currency"`
	EventQueueSize         int      `toml:"event_queue_size"`
	LockTimeoutMS          int      `toml:"lock_timeout_ms"`
	MetricsEnabled         bool     `toml:"metrics_enabled"`
}

func Default() Config {
	return Config{
		Port:                   "8080",
		AllowedOrigins:         []string{"http://127.0.0.1:3000"},
		RedisEventChannel:      "kasirledger.events",
		CatalogCacheTTLSeconds: 60,
		AccessTokenTTLMinutes:  480,
		ReferenceCurrency:      "USD",
		LocalCurrency:          "VES",
		EventQueueSize:         256,
		LockTimeoutMS:          5000,
		MetricsEnabled:         true,
	}
}

// Load layers defaults, the optional TOML file named by CONFIG_FILE and
// environment variables, in that order.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB, 0)
	cfg.RedisEventChannel = getEnv("REDIS_EVENT_CHANNEL", cfg.RedisEventChannel)
	cfg.CatalogCacheTTLSeconds = getEnvInt("CATALOG_CACHE_TTL_SECONDS", cfg.CatalogCacheTTLSeconds, 1)
	cfg.AuthSecret = strings.TrimSpace(getEnv("AUTH_SECRET", cfg.AuthSecret))
	cfg.AccessTokenTTLMinutes = getEnvInt("ACCESS_TOKEN_TTL_MINUTES", cfg.AccessTokenTTLMinutes, 1)
	cfg.ReferenceCurrency = strings.ToUpper(getEnv("REFERENCE_CURRENCY", cfg.ReferenceCurrency))
	cfg.LocalCurrency = strings.ToUpper(getEnv("LOCAL_CURRENCY", cfg.LocalCurrency))
	cfg.EventQueueSize = getEnvInt("EVENT_QUEUE_SIZE", cfg.EventQueueSize, 1)
	cfg.LockTimeoutMS = getEnvInt("LOCK_TIMEOUT_MS", cfg.LockTimeoutMS, 0)
	if raw := os.Getenv("METRICS_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("METRICS_ENABLED: %w", err)
		}
		cfg.MetricsEnabled = enabled
	}

	if cfg.ReferenceCurrency == "" {
		return Config{}, fmt.Errorf("reference currency must not be empty")
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getEnvInt keeps fallback when the variable is unset, malformed or below min.
func getEnvInt(key string, fallback int, min int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || val < min {
		return fallback
	}
	return val
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
