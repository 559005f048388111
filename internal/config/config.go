// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	Alpaca    AlpacaConfig
	Prices    PricesConfig
	Snapshots SnapshotsConfig
	Backup    BackupConfig
}

// AlpacaConfig holds market data provider settings
type AlpacaConfig struct {
	APIKey     string
	APISecret  string
	DataURL    string
	TradingURL string
	Feed       string  // "iex" or "sip"
	RateLimit  float64 // requests per second
}

// PricesConfig holds price cache settings
type PricesConfig struct {
	CacheTTL       time.Duration
	StreamInterval time.Duration
}

// SnapshotsConfig holds snapshot engine and job settings
type SnapshotsConfig struct {
	Schedule        string
	ActiveWindow    time.Duration // users seen within this window get backfilled by the job
	MaxHoursPerRun  int
	BenchmarkSymbol string
}

// BackupConfig holds S3-compatible backup settings. Empty Bucket disables backups.
type BackupConfig struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Schedule  string

	RetentionDays int // 0 keeps every backup
}

// Enabled reports whether backups are configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Alpaca: AlpacaConfig{
			APIKey:     getEnv("ALPACA_API_KEY", ""),
			APISecret:  getEnv("ALPACA_API_SECRET", ""),
			DataURL:    getEnv("ALPACA_DATA_URL", "https://data.alpaca.markets"),
			TradingURL: getEnv("ALPACA_TRADING_URL", "https://paper-api.alpaca.markets"),
			Feed:       getEnv("ALPACA_FEED", "iex"),
			RateLimit:  getEnvAsFloat("ALPACA_RATE_LIMIT", 3), // free plan allows 200/min
		},
		Prices: PricesConfig{
			CacheTTL:       getEnvAsDuration("PRICE_CACHE_TTL", 10*time.Second),
			StreamInterval: getEnvAsDuration("PRICE_STREAM_INTERVAL", 5*time.Second),
		},
		Snapshots: SnapshotsConfig{
			Schedule:        getEnv("SNAPSHOT_SCHEDULE", "0 */5 * * * *"),
			ActiveWindow:    getEnvAsDuration("SNAPSHOT_ACTIVE_WINDOW", 30*time.Minute),
			MaxHoursPerRun:  getEnvAsInt("SNAPSHOT_MAX_HOURS", 24*31),
			BenchmarkSymbol: getEnv("BENCHMARK_SYMBOL", "SPY"),
		},
		Backup: BackupConfig{
			Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:    getEnv("BACKUP_S3_REGION", "auto"),
			AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			Schedule:  getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),

			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}

	// Dev mode runs without market data credentials (price calls fail and degrade to estimates)
	if !c.DevMode && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		return fmt.Errorf("ALPACA_API_KEY and ALPACA_API_SECRET are required outside dev mode")
	}

	if c.Snapshots.MaxHoursPerRun <= 0 {
		return fmt.Errorf("SNAPSHOT_MAX_HOURS must be positive, got %d", c.Snapshots.MaxHoursPerRun)
	}
	if c.Prices.CacheTTL <= 0 {
		return fmt.Errorf("PRICE_CACHE_TTL must be positive")
	}

	if c.Backup.Enabled() && (c.Backup.AccessKey == "" || c.Backup.SecretKey == "") {
		return fmt.Errorf("backup bucket configured without BACKUP_S3_ACCESS_KEY/BACKUP_S3_SECRET_KEY")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
