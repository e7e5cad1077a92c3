// Package config provides environment-aware configuration management for
// the ledger core and its command-line entry points.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/satoshiflow/ledgercore/pkg/logger"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

func parseEnvironment(s string) (Environment, bool) {
	switch Environment(s) {
	case Development, Testing, Production:
		return Environment(s), true
	default:
		return "", false
	}
}

// JournalBackend selects which journal.Journal implementation the core
// runs against.
type JournalBackend string

const (
	JournalBackendFile JournalBackend = "file"
	JournalBackendSQL  JournalBackend = "sql"
)

// Config holds every option the ledger core surface recognizes (spec
// section 6.4), plus the ambient logging selection the rest of the
// module reads through pkg/logger.
type Config struct {
	Env Environment `env:"LEDGER_ENV,default=development"`

	JournalBackend   JournalBackend `env:"JOURNAL_BACKEND,default=file"`
	JournalFilePath  string         `env:"JOURNAL_FILE_PATH,default=data/events.jsonl"`
	JournalFileFsync bool           `env:"JOURNAL_FILE_FSYNC,default=true"`

	JournalSQLConnection  string `env:"JOURNAL_SQL_CONNECTION"`
	JournalSQLPoolSize    int    `env:"JOURNAL_SQL_POOL_SIZE,default=10"`
	JournalSQLMaxOverflow int    `env:"JOURNAL_SQL_MAX_OVERFLOW,default=5"`

	ReplayVerifyIntegrity bool `env:"REPLAY_VERIFY_INTEGRITY,default=true"`

	SnapshotEnabled   bool `env:"SNAPSHOT_ENABLED,default=false"`
	SnapshotRetention int  `env:"SNAPSHOT_RETENTION,default=10"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// Load reads an optional .env file (LEDGER_ENV-specific, falling back to
// a bare .env at the repository root) and populates Config from the
// process environment. Both files are optional; only non-"file not
// found" errors are surfaced as warnings.
func Load() (*Config, error) {
	envStr := os.Getenv("LEDGER_ENV")
	if envStr == "" {
		envStr = string(Development)
	}
	env, ok := parseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid LEDGER_ENV: %s (must be development, testing, or production)", envStr)
	}

	envFile := fmt.Sprintf("config/%s.env", env)
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("warning: could not load %s: %v\n", envFile, err)
		} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("warning: could not load .env: %v\n", err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	backend := getEnv("JOURNAL_BACKEND", string(JournalBackendFile))
	switch JournalBackend(backend) {
	case JournalBackendFile, JournalBackendSQL:
		c.JournalBackend = JournalBackend(backend)
	default:
		return fmt.Errorf("invalid JOURNAL_BACKEND: %s (must be file or sql)", backend)
	}

	c.JournalFilePath = getEnv("JOURNAL_FILE_PATH", "data/events.jsonl")
	c.JournalFileFsync = getBoolEnv("JOURNAL_FILE_FSYNC", true)

	c.JournalSQLConnection = getEnv("JOURNAL_SQL_CONNECTION", "")
	if c.JournalBackend == JournalBackendSQL && c.JournalSQLConnection == "" {
		return fmt.Errorf("JOURNAL_SQL_CONNECTION is required when JOURNAL_BACKEND=sql")
	}
	c.JournalSQLPoolSize = getIntEnv("JOURNAL_SQL_POOL_SIZE", 10)
	c.JournalSQLMaxOverflow = getIntEnv("JOURNAL_SQL_MAX_OVERFLOW", 5)

	c.ReplayVerifyIntegrity = getBoolEnv("REPLAY_VERIFY_INTEGRITY", true)

	c.SnapshotEnabled = getBoolEnv("SNAPSHOT_ENABLED", false)
	c.SnapshotRetention = getIntEnv("SNAPSHOT_RETENTION", 10)

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "text")

	return nil
}

// LoggingConfig builds the pkg/logger.LoggingConfig a Config-driven
// entry point uses to construct its component-scoped Logger, reading
// LogLevel/LogFormat from the environment instead of hardcoding them.
func (c *Config) LoggingConfig(component string) logger.LoggingConfig {
	return logger.LoggingConfig{
		Component: component,
		Level:     c.LogLevel,
		Format:    c.LogFormat,
		Output:    "stdout",
	}
}

func (c *Config) IsDevelopment() bool { return c.Env == Development }
func (c *Config) IsTesting() bool     { return c.Env == Testing }
func (c *Config) IsProduction() bool  { return c.Env == Production }

// Validate rejects unsafe or inconsistent combinations. Production
// additionally requires fsync enabled on the file backend, since
// disabling it trades crash-safety for speed and the spec only permits
// that trade for tests.
func (c *Config) Validate() error {
	if c.JournalBackend != JournalBackendFile && c.JournalBackend != JournalBackendSQL {
		return fmt.Errorf("invalid journal backend: %s", c.JournalBackend)
	}
	if c.JournalBackend == JournalBackendSQL && c.JournalSQLConnection == "" {
		return fmt.Errorf("journal.sql.connection is required for the sql backend")
	}
	if c.JournalSQLPoolSize <= 0 {
		return fmt.Errorf("journal.sql.pool_size must be positive, got %d", c.JournalSQLPoolSize)
	}
	if c.JournalSQLMaxOverflow < 0 {
		return fmt.Errorf("journal.sql.max_overflow must not be negative, got %d", c.JournalSQLMaxOverflow)
	}
	if c.SnapshotEnabled && c.SnapshotRetention <= 0 {
		return fmt.Errorf("snapshot.retention must be positive when snapshots are enabled, got %d", c.SnapshotRetention)
	}

	if c.IsProduction() {
		if c.JournalBackend == JournalBackendFile && !c.JournalFileFsync {
			return fmt.Errorf("journal.file.fsync must be true in production")
		}
		if !c.ReplayVerifyIntegrity {
			return fmt.Errorf("replay.verify_integrity must be true in production")
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
