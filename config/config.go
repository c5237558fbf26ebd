package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	// Postgres configuration
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration
	MemcacheAddr string

	// Telegram configuration
	TelegramBotToken string
	TelegramChatID   string

	// Primary marketplace harvest
	HarvestURL      string
	MaxPages        int
	HarvestInterval time.Duration

	// Comparison marketplace discovery
	MaxBestMatchItems  int
	MaxLeastMatchItems int
	MinPriceFilter     int

	// Reconciliation and profitability
	StalenessThresholdDays int
	MinProfitMargin        decimal.Decimal

	// Browser sessions
	Headless     bool
	AttemptDelay time.Duration
	BlockTime    time.Duration

	// Comparison-check worker pool
	ComparisonWorkers     int
	ComparisonRateLimitMs int

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	postgresPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	streamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))
	maxPages, _ := strconv.Atoi(getEnv("MAX_PAGES_TO_SCRAPE", "2"))
	harvestInterval, _ := strconv.Atoi(getEnv("HARVEST_INTERVAL_SECONDS", "86400"))
	maxBest, _ := strconv.Atoi(getEnv("MAX_BESTMATCH_ITEMS", "10"))
	maxLeast, _ := strconv.Atoi(getEnv("MAX_LEASTMATCH_ITEMS", "3"))
	minPrice, _ := strconv.Atoi(getEnv("COMPARISON_MIN_PRICE", "50"))
	staleDays, _ := strconv.Atoi(getEnv("COMPARISON_CHECK_THRESHOLD_DAYS", "14"))
	attemptDelay, _ := strconv.Atoi(getEnv("ATTEMPT_DELAY_SECONDS", "2"))
	blockTime, _ := strconv.Atoi(getEnv("RATE_LIMIT_BLOCK_SECONDS", "300"))
	workers, _ := strconv.Atoi(getEnv("COMPARISON_WORKERS", "1"))
	rateMs, _ := strconv.Atoi(getEnv("COMPARISON_RATE_LIMIT_MS", "2000"))

	margin, err := decimal.NewFromString(getEnv("MIN_PROFIT_MARGIN", "50.0"))
	if err != nil {
		margin = decimal.NewFromInt(50)
	}

	return Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     postgresPort,
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "dropscout"),

		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "harvest"),
		RedisStreamCount:     streamCount,
		RedisStreamMaxLength: streamMaxLen,

		MemcacheAddr: getEnv("MEMCACHE_ADDR", "localhost:11211"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		HarvestURL:      getEnv("HARVEST_URL", ""),
		MaxPages:        maxPages,
		HarvestInterval: time.Duration(harvestInterval) * time.Second,

		MaxBestMatchItems:  maxBest,
		MaxLeastMatchItems: maxLeast,
		MinPriceFilter:     minPrice,

		StalenessThresholdDays: staleDays,
		MinProfitMargin:        margin,

		Headless:     getEnv("HEADLESS", "true") == "true",
		AttemptDelay: time.Duration(attemptDelay) * time.Second,
		BlockTime:    time.Duration(blockTime) * time.Second,

		ComparisonWorkers:     workers,
		ComparisonRateLimitMs: rateMs,

		Environment: getEnv("DROPSCOUT_ENVIRONMENT", "development"),
	}
}

// DSN returns the Postgres connection string
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
	)
}

// ComparisonRateLimit returns the minimum interval between comparison lookups
func (c *Config) ComparisonRateLimit() time.Duration {
	return time.Duration(c.ComparisonRateLimitMs) * time.Millisecond
}

// TelegramConfigured returns true when both the bot token and chat id are set
func (c *Config) TelegramConfigured() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.HarvestURL == "" {
		return fmt.Errorf("HARVEST_URL is required")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("MAX_PAGES_TO_SCRAPE must be at least 1, got %d", c.MaxPages)
	}
	if c.MaxBestMatchItems < 1 {
		return fmt.Errorf("MAX_BESTMATCH_ITEMS must be at least 1, got %d", c.MaxBestMatchItems)
	}
	if c.MaxLeastMatchItems < 1 {
		return fmt.Errorf("MAX_LEASTMATCH_ITEMS must be at least 1, got %d", c.MaxLeastMatchItems)
	}
	if c.StalenessThresholdDays < 1 {
		return fmt.Errorf("COMPARISON_CHECK_THRESHOLD_DAYS must be positive, got %d", c.StalenessThresholdDays)
	}
	if c.MinProfitMargin.IsNegative() {
		return fmt.Errorf("MIN_PROFIT_MARGIN must not be negative, got %s", c.MinProfitMargin)
	}
	if c.ComparisonWorkers < 1 {
		return fmt.Errorf("COMPARISON_WORKERS must be at least 1, got %d", c.ComparisonWorkers)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
