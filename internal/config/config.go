package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	// Oracle settings
	OracleProvider string // "openai" or "mock"
	OracleAPIKey   string
	OracleBaseURL  string
	OracleModel    string // creative calls
	OracleLogic    string // logic calls (strict, low temperature)
	OracleTimeout  time.Duration

	// World store
	DBPath   string
	SavesDir string
	GameID   string

	// Recall memory. Empty disables the Redis-backed side path.
	RedisURL string
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		OracleProvider: getEnv("ORACLE_PROVIDER", "openai"),
		OracleAPIKey:   getEnv("ORACLE_API_KEY", ""),
		OracleBaseURL:  getEnv("ORACLE_BASE_URL", ""),
		OracleModel:    getEnv("ORACLE_MODEL", "gpt-4o"),
		OracleLogic:    getEnv("ORACLE_LOGIC_MODEL", "gpt-4o-mini"),
		OracleTimeout:  time.Duration(getEnvInt("ORACLE_TIMEOUT_SECONDS", 60)) * time.Second,

		DBPath:   getEnv("DB_PATH", "./data/world.db"),
		SavesDir: getEnv("SAVES_DIR", "./data/saves"),
		GameID:   getEnv("GAME_ID", "current_session"),

		RedisURL: getEnv("REDIS_URL", ""),
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
