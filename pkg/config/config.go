// Package config loads service settings from the environment (optionally via .env).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the simulation service.
type Config struct {
	Port string

	// Logging
	LogLevel  string
	LogPretty bool

	// Simulation
	InitialBalance  float64
	LiveWindowBars  int
	BacktestMaxDays int
	PresetsPath     string

	// Market data
	UseMockFeed           bool
	BinanceTestnet        bool
	BinanceRequestsPerSec float64

	// Candle cache (disabled when RedisAddr is empty)
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CandleCacheTTL time.Duration

	// Database
	DBPath           string
	HistoryRetention time.Duration // 0 keeps every backtest run

	// HTTP
	CORSOrigins    []string
	APIJWTSecret   string
	RequestTimeout time.Duration
	RateLimit      float64

	// Localization
	Language string // "en" or "zh"
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty:             getEnvBool("LOG_PRETTY", false),
		InitialBalance:        getEnvFloat("INITIAL_BALANCE", 10000),
		LiveWindowBars:        getEnvInt("LIVE_WINDOW_BARS", 500),
		BacktestMaxDays:       getEnvInt("BACKTEST_MAX_DAYS", 365),
		PresetsPath:           getEnv("PRESETS_PATH", "./presets.yaml"),
		UseMockFeed:           getEnvBool("USE_MOCK_FEED", false),
		BinanceTestnet:        getEnvBool("BINANCE_TESTNET", false),
		BinanceRequestsPerSec: getEnvFloat("BINANCE_REQUESTS_PER_SEC", 10),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		CandleCacheTTL:        getEnvDuration("CANDLE_CACHE_TTL", 10*time.Minute),
		DBPath:                getEnv("DB_PATH", "./data/backtest.db"),
		HistoryRetention:      getEnvDuration("HISTORY_RETENTION", 30*24*time.Hour),
		CORSOrigins:           splitAndTrim(getEnv("CORS_ORIGINS", "*")),
		APIJWTSecret:          os.Getenv("API_JWT_SECRET"),
		RequestTimeout:        getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
		RateLimit:             getEnvFloat("API_RATE_LIMIT", 20),
		Language:              getEnv("LANGUAGE", "en"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.InitialBalance <= 0 {
		return fmt.Errorf("INITIAL_BALANCE must be positive, got %v", c.InitialBalance)
	}
	if c.LiveWindowBars <= 0 {
		return fmt.Errorf("LIVE_WINDOW_BARS must be positive, got %d", c.LiveWindowBars)
	}
	if c.BacktestMaxDays <= 0 {
		return fmt.Errorf("BACKTEST_MAX_DAYS must be positive, got %d", c.BacktestMaxDays)
	}
	if c.BinanceRequestsPerSec < 0 {
		return fmt.Errorf("BINANCE_REQUESTS_PER_SEC must not be negative, got %v", c.BinanceRequestsPerSec)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
