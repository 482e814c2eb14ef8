package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from the environment.
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string

	// LockTimeout bounds how long a mutation waits for an account row
	// lock before failing with a retryable conflict.
	LockTimeout time.Duration

	// HistoryPageSize is the number of ledger entries per history page.
	HistoryPageSize int

	// AutoMigrate applies the embedded schema migrations on startup.
	AutoMigrate bool
}

// Load reads configuration from the environment, honoring a .env file when
// one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", "password"),
		DBName:          getEnv("DB_NAME", "matrix_bank"),
		DBSSLMode:       getEnv("DB_SSLMODE", "disable"),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		LockTimeout:     getDurationEnv("LOCK_TIMEOUT", 3*time.Second),
		HistoryPageSize: getIntEnv("HISTORY_PAGE_SIZE", 5),
		AutoMigrate:     getBoolEnv("AUTO_MIGRATE", false),
	}
}

// GetDBConnectionString builds the lib/pq connection string.
func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
