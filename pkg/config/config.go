package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Price conflict policies for fact_price.
const (
	PriceConflictUpdate = "update"
	PriceConflictIgnore = "ignore"
)

// Config holds all configuration for the warehouse
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production

	Database  DatabaseConfig
	Redis     RedisConfig
	Warehouse WarehouseConfig
	API       APIConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// WarehouseConfig controls the dimensional model maintenance and ingestion
type WarehouseConfig struct {
	// Date dimension horizon: Jan 1 of DateFromYear through Dec 31 of (current year + YearsAhead)
	DateFromYear int
	YearsAhead   int

	// Trading holidays, YYYYMMDD
	Holidays []string

	// CSV drop directory (<dir>/<TICKER>/<TICKER>_<table>.csv)
	DropDir          string
	ArchiveDir       string // processed drops move here; empty keeps them in place
	IngestSchedule   string
	HorizonSchedule  string
	IngestRatePerSec int // 0 = unlimited

	PriceConflictPolicy string
}

// APIConfig holds the monitoring/ingestion API configuration
type APIConfig struct {
	Port      string
	RateLimit int // requests per second per client
	RateBurst int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Warehouse: WarehouseConfig{
			DateFromYear:        getEnvAsInt("DATE_FROM_YEAR", 2010),
			YearsAhead:          getEnvAsInt("DATE_YEARS_AHEAD", 2),
			Holidays:            getEnvAsList("TRADING_HOLIDAYS"),
			DropDir:             getEnv("DROP_DIR", "StockData"),
			ArchiveDir:          getEnv("ARCHIVE_DIR", ""),
			IngestSchedule:      getEnv("INGEST_SCHEDULE", "0 30 18 * * 1-5"),
			HorizonSchedule:     getEnv("HORIZON_SCHEDULE", "0 0 1 1 * *"),
			IngestRatePerSec:    getEnvAsInt("INGEST_ROWS_PER_SECOND", 0),
			PriceConflictPolicy: strings.ToLower(getEnv("PRICE_CONFLICT_POLICY", PriceConflictUpdate)),
		},

		API: APIConfig{
			Port:      getEnv("PORT", "8089"),
			RateLimit: getEnvAsInt("API_RATE_LIMIT", 20),
			RateBurst: getEnvAsInt("API_RATE_BURST", 40),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Warehouse.PriceConflictPolicy {
	case PriceConflictUpdate, PriceConflictIgnore:
	default:
		return fmt.Errorf("PRICE_CONFLICT_POLICY must be one of: update, ignore")
	}

	if c.Warehouse.DateFromYear > time.Now().Year() {
		return fmt.Errorf("DATE_FROM_YEAR %d is in the future", c.Warehouse.DateFromYear)
	}

	if c.Warehouse.YearsAhead < 0 {
		return fmt.Errorf("DATE_YEARS_AHEAD must not be negative")
	}

	for _, h := range c.Warehouse.Holidays {
		if _, err := time.Parse("20060102", h); err != nil {
			return fmt.Errorf("TRADING_HOLIDAYS: invalid date %q (expected YYYYMMDD)", h)
		}
	}

	return nil
}

// DateHorizon returns the [from, to] calendar range the date dimension must cover
func (c *Config) DateHorizon(now time.Time) (time.Time, time.Time) {
	from := time.Date(c.Warehouse.DateFromYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(now.Year()+c.Warehouse.YearsAhead, time.December, 31, 0, 0, 0, 0, time.UTC)
	return from, to
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated variable, dropping blanks
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
