package config

import "testing"

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("LEDGER_ENV", "")
	t.Setenv("JOURNAL_BACKEND", "")
	t.Setenv("JOURNAL_SQL_CONNECTION", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Env != Development {
		t.Errorf("expected default env development, got %s", cfg.Env)
	}
	if cfg.JournalBackend != JournalBackendFile {
		t.Errorf("expected default journal backend file, got %s", cfg.JournalBackend)
	}
	if cfg.JournalFilePath != "data/events.jsonl" {
		t.Errorf("expected default journal file path, got %s", cfg.JournalFilePath)
	}
	if !cfg.JournalFileFsync {
		t.Error("expected fsync enabled by default")
	}
	if !cfg.ReplayVerifyIntegrity {
		t.Error("expected replay.verify_integrity enabled by default")
	}
	if cfg.SnapshotRetention != 10 {
		t.Errorf("expected default snapshot retention 10, got %d", cfg.SnapshotRetention)
	}
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	t.Setenv("LEDGER_ENV", "staging")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unrecognized LEDGER_ENV")
	}
}

func TestLoadSQLBackendRequiresConnection(t *testing.T) {
	t.Setenv("LEDGER_ENV", "")
	t.Setenv("JOURNAL_BACKEND", "sql")
	t.Setenv("JOURNAL_SQL_CONNECTION", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when sql backend is selected without a connection string")
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("LEDGER_ENV", "testing")
	t.Setenv("JOURNAL_BACKEND", "sql")
	t.Setenv("JOURNAL_SQL_CONNECTION", "postgres://localhost/ledger")
	t.Setenv("JOURNAL_SQL_POOL_SIZE", "25")
	t.Setenv("SNAPSHOT_ENABLED", "true")
	t.Setenv("SNAPSHOT_RETENTION", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Env != Testing {
		t.Errorf("expected env testing, got %s", cfg.Env)
	}
	if cfg.JournalSQLConnection != "postgres://localhost/ledger" {
		t.Errorf("connection string override mismatch: %s", cfg.JournalSQLConnection)
	}
	if cfg.JournalSQLPoolSize != 25 {
		t.Errorf("pool size override mismatch: %d", cfg.JournalSQLPoolSize)
	}
	if !cfg.SnapshotEnabled {
		t.Error("expected snapshot enabled override")
	}
	if cfg.SnapshotRetention != 3 {
		t.Errorf("snapshot retention override mismatch: %d", cfg.SnapshotRetention)
	}
}

func TestValidateRejectsInvalidBackend(t *testing.T) {
	cfg := &Config{JournalBackend: "carrier-pigeon", JournalSQLPoolSize: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid journal backend")
	}
}

func TestValidateProductionRequiresFsync(t *testing.T) {
	cfg := &Config{
		Env:                   Production,
		JournalBackend:        JournalBackendFile,
		JournalFileFsync:      false,
		JournalSQLPoolSize:    1,
		ReplayVerifyIntegrity: true,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for fsync disabled in production")
	}
}

func TestValidateProductionRequiresIntegrityVerification(t *testing.T) {
	cfg := &Config{
		Env:                   Production,
		JournalBackend:        JournalBackendFile,
		JournalFileFsync:      true,
		JournalSQLPoolSize:    1,
		ReplayVerifyIntegrity: false,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for integrity verification disabled in production")
	}
}

func TestValidateAcceptsDevelopmentDefaults(t *testing.T) {
	cfg := &Config{
		Env:                Development,
		JournalBackend:     JournalBackendFile,
		JournalFileFsync:   false,
		JournalSQLPoolSize: 1,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoggingConfigCarriesComponentAndLevel(t *testing.T) {
	cfg := &Config{LogLevel: "debug", LogFormat: "json"}
	lc := cfg.LoggingConfig("replay")

	if lc.Component != "replay" {
		t.Errorf("expected component replay, got %s", lc.Component)
	}
	if lc.Level != "debug" {
		t.Errorf("expected level debug, got %s", lc.Level)
	}
	if lc.Format != "json" {
		t.Errorf("expected format json, got %s", lc.Format)
	}
}
