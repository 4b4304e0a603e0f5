package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/your-username/loki-clickhouse-gateway/internal/limits"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Limits   limits.Config
	Patterns PatternsConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	// LogsTable is the OTel-style wide table queries run against.
	LogsTable string
}

// JWTConfig enables bearer-token auth when a secret is set.
type JWTConfig struct {
	Secret string
}

// PatternsConfig controls pattern mining persistence and extra rules.
type PatternsConfig struct {
	// Table for persisted pattern counts; empty disables persistence.
	Table string
	// RulesFile optionally adds extraction rules from a YAML file.
	RulesFile string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3100"),
		},
		Database: DatabaseConfig{
			Host:      getEnv("CLICKHOUSE_HOST", "localhost"),
			Port:      getEnv("CLICKHOUSE_PORT", "9000"),
			Database:  getEnv("CLICKHOUSE_DATABASE", "default"),
			Username:  getEnv("CLICKHOUSE_USER", "default"),
			Password:  getEnv("CLICKHOUSE_PASSWORD", ""),
			LogsTable: getEnv("CLICKHOUSE_LOGS_TABLE", "otel_logs"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Limits: limits.Config{
			MaxQuerySeries:          getEnvInt("LIMITS_MAX_QUERY_SERIES", 500),
			MaxEntriesLimitPerQuery: getEnvInt("LIMITS_MAX_ENTRIES_PER_QUERY", 1000),
			MaxChunksPerQuery:       getEnvInt("LIMITS_MAX_CHUNKS_PER_QUERY", 0),
			MaxChunkBytesPerQuery:   getEnvInt("LIMITS_MAX_CHUNK_BYTES_PER_QUERY", 0),
			MaxQueryLength:          getEnvDuration("LIMITS_MAX_QUERY_LENGTH", 0),
			MaxQueryLookback:        getEnvDuration("LIMITS_MAX_QUERY_LOOKBACK", 0),
			RequiredLabels:          getEnvList("LIMITS_REQUIRED_LABELS"),
			RequiredNumberLabels:    getEnvInt("LIMITS_REQUIRED_NUMBER_LABELS", 0),
		},
		Patterns: PatternsConfig{
			Table:     getEnv("PATTERNS_TABLE", "loki_patterns"),
			RulesFile: getEnv("PATTERNS_RULES_FILE", ""),
		},
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
