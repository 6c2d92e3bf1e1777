// Package config loads all pipeline configuration from environment
// variables with sensible defaults, validated eagerly at startup.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"emastream/internal/indicator"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Market
	Symbol   string
	Interval string

	// Indicator parameters
	EMAPeriod    int
	MAPeriod     int
	RecentWindow int

	SlopeLookback   int
	SlopeMode       string
	MinSlope        float64
	SlopeNormalize  bool
	StrictMonotonic bool

	// Ingestion
	WSBaseURL       string
	RESTBaseURL     string
	HistoryLimit    int
	FallbackEnabled bool
	PollInterval    time.Duration

	// Broadcast
	QueueCapacity int

	// Servers
	ListenAddr  string
	MetricsAddr string

	// Optional stores
	RedisAddr     string // empty disables Redis
	RedisPassword string
	SQLitePath    string // empty disables the trade journal

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Symbol:   strings.ToUpper(getEnv("SYMBOL", "BTCUSDT")),
		Interval: getEnv("INTERVAL", "1m"),

		EMAPeriod:    getEnvInt("EMA_PERIOD", 5),
		MAPeriod:     getEnvInt("MA_PERIOD", 15),
		RecentWindow: getEnvInt("RECENT_WINDOW", 5),

		SlopeLookback:   getEnvInt("SLOPE_LOOKBACK", 3),
		SlopeMode:       getEnv("SLOPE_MODE", "mean_diff"),
		MinSlope:        getEnvFloat("MIN_SLOPE", 0.0),
		SlopeNormalize:  getEnvBool("SLOPE_NORMALIZE", false),
		StrictMonotonic: getEnvBool("SLOPE_STRICT_MONOTONIC", false),

		WSBaseURL:       getEnv("WS_BASE_URL", "wss://fstream.binance.com/ws"),
		RESTBaseURL:     getEnv("REST_BASE_URL", "https://fapi.binance.com"),
		HistoryLimit:    getEnvInt("HISTORY_LIMIT", 100),
		FallbackEnabled: getEnvBool("FALLBACK_ENABLED", true),
		PollInterval:    getEnvDuration("POLL_INTERVAL", 2*time.Second),

		QueueCapacity: getEnvInt("QUEUE_CAP", 1000),

		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/trades.db"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate rejects bad configuration before any component is built.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("config: SYMBOL must not be empty")
	}
	if c.Interval == "" {
		return fmt.Errorf("config: INTERVAL must not be empty")
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("config: HISTORY_LIMIT must be >= 0, got %d", c.HistoryLimit)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	return c.IndicatorConfig().Validate()
}

// IndicatorConfig assembles the indicator engine parameters.
func (c *Config) IndicatorConfig() indicator.Config {
	return indicator.Config{
		EMAPeriod: c.EMAPeriod,
		MAPeriod:  c.MAPeriod,
		Slope: indicator.SlopeConfig{
			Lookback:        c.SlopeLookback,
			Mode:            indicator.SlopeMode(c.SlopeMode),
			MinSlope:        c.MinSlope,
			Normalize:       c.SlopeNormalize,
			StrictMonotonic: c.StrictMonotonic,
		},
		RecentWindow: c.RecentWindow,
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
