package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	MongoURL   string
	MongoDB    string
	JWTSecret  string
	AccessTTL  time.Duration
	CORSOrigin string
	// Connection admission limits
	SoftConnectionLimit int
	HardConnectionLimit int
	// Store call budgets
	StoreTimeout     time.Duration
	DisconnectBudget time.Duration
	// Operation deduplicator sweep interval
	DedupSweepInterval time.Duration
	// Redis Configuration
	RedisURL string
}

func Load() Config {
	return Config{
		Addr:                getenv("API_ADDR", ":8790"),
		MongoURL:            getenv("MONGO_URL", "mongodb://localhost:27017"),
		MongoDB:             getenv("MONGO_DB", "mosaic"),
		JWTSecret:           getenv("MOSAIC_JWT_SECRET", "mosaic-dev-secret"),
		AccessTTL:           time.Duration(getenvInt("MOSAIC_ACCESS_TTL_SECONDS", 43200)) * time.Second,
		CORSOrigin:          getenv("MOSAIC_CORS_ORIGIN", "*"),
		SoftConnectionLimit: getenvInt("MOSAIC_SOFT_CONNECTION_LIMIT", 80),
		HardConnectionLimit: getenvInt("MOSAIC_HARD_CONNECTION_LIMIT", 100),
		StoreTimeout:        time.Duration(getenvInt("MOSAIC_STORE_TIMEOUT_SECONDS", 5)) * time.Second,
		DisconnectBudget:    time.Duration(getenvInt("MOSAIC_DISCONNECT_BUDGET_SECONDS", 8)) * time.Second,
		DedupSweepInterval:  time.Duration(getenvInt("MOSAIC_DEDUP_SWEEP_SECONDS", 30)) * time.Second,
		// Redis - session storage falls back to in-memory when not configured
		RedisURL: getenv("REDIS_URL", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
