package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration for the fulfillment service.
type Config struct {
	// OpsAddr is the listen address for the operator HTTP surface
	// (health, metrics, manual order re-drive).
	OpsAddr string

	// DatabaseURL selects the postgres order store. Empty falls back to the
	// in-memory store, which is only suitable for development.
	DatabaseURL string

	Redis RedisConfig

	Njalla NjallaConfig

	// WalletRPCURL is the monero-wallet-rpc endpoint used for outbound
	// transfers.
	WalletRPCURL string

	// OracleURL is the base URL of the EUR price oracle.
	OracleURL string

	// RateCacheTTL bounds how long an oracle rate may be served from cache.
	RateCacheTTL time.Duration

	// PollInterval is the fulfillment engine tick interval.
	PollInterval time.Duration

	// StaleAfter marks undelivered orders as stale for operator visibility.
	StaleAfter time.Duration

	// KafkaBrokers enables the order event publisher when non-empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// RedisConfig holds connection settings for the optional rate cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NjallaConfig holds registrar API settings.
type NjallaConfig struct {
	BaseURL string
	Token   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		OpsAddr:      envOr("VEIL_OPS_ADDR", ":8090"),
		DatabaseURL:  os.Getenv("VEIL_DATABASE_URL"),
		WalletRPCURL: envOr("VEIL_WALLET_RPC_URL", "http://127.0.0.1:18083/json_rpc"),
		OracleURL:    envOr("VEIL_ORACLE_URL", "https://api.coingecko.com/api/v3"),
		RateCacheTTL: durationOr("VEIL_RATE_CACHE_TTL", 2*time.Minute),
		PollInterval: durationOr("VEIL_POLL_INTERVAL", 30*time.Second),
		StaleAfter:   durationOr("VEIL_STALE_AFTER", 24*time.Hour),
		KafkaTopic:   envOr("VEIL_KAFKA_TOPIC", "veil.order-events"),
		Redis: RedisConfig{
			URL:          os.Getenv("VEIL_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Njalla: NjallaConfig{
			BaseURL: envOr("VEIL_NJALLA_URL", "https://njal.la/api/1/"),
			Token:   os.Getenv("VEIL_NJALLA_TOKEN"),
		},
	}

	if brokers := os.Getenv("VEIL_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
