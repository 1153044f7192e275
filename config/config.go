package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	StorageDriver string
	SQLitePath    string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	AIAPIURL     string
	AIAPIKey     string
	AIModel      string
	AITimeout    time.Duration
	AIMaxRetries int
	AIUseImages  bool

	BatchSize          int
	BatchTimeBudget    time.Duration
	AICallDelay        time.Duration
	ReclassifyCategory string

	KeywordsPath string
	SourcesPath  string

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	PagesToScrape  int

	CSVOutputPath string
	ChromeBin     string

	HTTPAddr string
	LogLevel string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() *Config {
	return &Config{
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
		SQLitePath:    getEnv("SQLITE_PATH", "./gear.db"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "gear"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "gear123"),
		PostgresDB:       getEnv("POSTGRES_DB", "gear_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		AIAPIURL:     getEnv("AI_API_URL", "https://api.deepseek.com/v1"),
		AIAPIKey:     getEnv("AI_API_KEY", ""),
		AIModel:      getEnv("AI_MODEL", "deepseek-chat"),
		AITimeout:    getEnvDuration("AI_TIMEOUT_SEC", 30*time.Second),
		AIMaxRetries: getEnvInt("AI_MAX_RETRIES", 2),
		AIUseImages:  getEnvBool("AI_USE_IMAGES", true),

		BatchSize:          getEnvInt("BATCH_SIZE", 50),
		BatchTimeBudget:    getEnvDuration("BATCH_TIME_BUDGET_SEC", 50*time.Second),
		AICallDelay:        time.Duration(getEnvInt("AI_CALL_DELAY_MS", 200)) * time.Millisecond,
		ReclassifyCategory: getEnv("RECLASSIFY_CATEGORY", "other"),

		KeywordsPath: getEnv("KEYWORDS_PATH", ""),
		SourcesPath:  getEnv("SOURCES_PATH", "./sources.yaml"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		PagesToScrape:  getEnvInt("PAGES_TO_SCRAPE", 2),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/raw_listings.csv"),
		ChromeBin:     getEnv("CHROME_BIN", ""),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// AIEnabled reports whether the AI fallback has credentials.
func (c *Config) AIEnabled() bool {
	return c.AIAPIKey != ""
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration reads a whole number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
