package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	LedgerURL             string
	LedgerTimeoutSeconds  int
	LedgerRetryAttempts   int
	LedgerRetryBaseMillis int

	SnapshotIntervalSeconds int
	SnapshotScopes          []string
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                addr,
		PostgresDSN:             os.Getenv("POSTGRES_DSN"),
		LogLevel:                envDefault("LOG_LEVEL", "info"),
		LedgerURL:               os.Getenv("LEDGER_URL"),
		LedgerTimeoutSeconds:    envIntDefault("LEDGER_TIMEOUT_SECONDS", 5),
		LedgerRetryAttempts:     envIntDefault("LEDGER_RETRY_ATTEMPTS", 3),
		LedgerRetryBaseMillis:   envIntDefault("LEDGER_RETRY_BASE_MS", 100),
		SnapshotIntervalSeconds: envIntDefault("SNAPSHOT_INTERVAL_SECONDS", 0),
		SnapshotScopes:          envList("SNAPSHOT_SCOPES"),
	}
}

func (c Config) LedgerTimeout() time.Duration {
	return time.Duration(c.LedgerTimeoutSeconds) * time.Second
}

func (c Config) LedgerRetryBase() time.Duration {
	return time.Duration(c.LedgerRetryBaseMillis) * time.Millisecond
}

func (c Config) SnapshotInterval() time.Duration {
	if c.SnapshotIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.SnapshotIntervalSeconds) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
