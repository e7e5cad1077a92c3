// ledger-migrate copies every durable event from a file journal into a
// relational journal, in order. Because SQLJournal.Append is idempotent
// on idempotency_key, running this tool twice (or resuming after a crash
// partway through) is always safe: already-migrated events are silently
// suppressed as duplicates.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
	"github.com/satoshiflow/ledgercore/internal/ledger/journal"
	"github.com/satoshiflow/ledgercore/internal/ledger/telemetry"
	"github.com/satoshiflow/ledgercore/pkg/logger"
)

type migrateConfig struct {
	FilePath      string `env:"JOURNAL_FILE_PATH,default=data/events.jsonl"`
	SQLConnection string `env:"JOURNAL_SQL_CONNECTION"`
	LogEvery      int    `env:"MIGRATE_LOG_EVERY,default=1000"`
}

func main() {
	filePath := flag.String("file", "", "path to the source file journal (overrides JOURNAL_FILE_PATH)")
	dsn := flag.String("dsn", "", "target Postgres DSN (overrides JOURNAL_SQL_CONNECTION)")
	flag.Parse()

	log := logger.NewDefault("ledger-migrate")

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if *filePath != "" {
		cfg.FilePath = *filePath
	}
	if *dsn != "" {
		cfg.SQLConnection = *dsn
	}
	if cfg.SQLConnection == "" {
		log.Fatal("target DSN required: set JOURNAL_SQL_CONNECTION or pass -dsn")
	}

	ctx := context.Background()
	registry := events.DefaultRegistry()

	src := journal.NewFileJournal(cfg.FilePath, false, registry, log, nil)
	if err := src.Initialize(ctx); err != nil {
		log.Fatalf("initialize source file journal: %v", err)
	}
	defer src.Close()

	db, err := sqlx.Connect("postgres", cfg.SQLConnection)
	if err != nil {
		log.Fatalf("connect to target database: %v", err)
	}
	defer db.Close()

	dst := journal.NewSQLJournal(db, registry, log, telemetry.NewIsolated())
	if err := dst.Initialize(ctx); err != nil {
		log.Fatalf("initialize target sql journal: %v", err)
	}
	defer dst.Close()

	start := time.Now()
	copied, skipped, err := migrate(ctx, src, dst, cfg.LogEvery, log)
	if err != nil {
		log.Fatalf("migration failed after copying %d events: %v", copied, err)
	}

	log.WithField("copied", copied).
		WithField("skipped_duplicates", skipped).
		WithField("elapsed", time.Since(start).String()).
		Info("migration complete")
}

// loadConfig reads an optional .env file, then decodes the environment
// through envdecode rather than internal/config's hand-rolled getEnv
// helpers -- this tool has no nested option surface, so the plain
// struct-tag decode the teacher's go.mod also supports is the simpler
// fit.
func loadConfig() (migrateConfig, error) {
	_ = godotenv.Load()

	var cfg migrateConfig
	if err := envdecode.Decode(&cfg); err != nil {
		return migrateConfig{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

func migrate(ctx context.Context, src journal.Journal, dst journal.Journal, logEvery int, log *logger.Logger) (copied, skipped int64, err error) {
	cur, err := src.ReadEvents(ctx, true)
	if err != nil {
		return 0, 0, fmt.Errorf("open source cursor: %w", err)
	}
	defer cur.Close()

	var total int64
	for cur.Next() {
		rec := cur.Record()
		accepted, err := dst.Append(ctx, rec.Envelope)
		if err != nil {
			return copied, skipped, fmt.Errorf("append event %s (sequence %d): %w", rec.Envelope.EventID, rec.Sequence, err)
		}
		if accepted {
			copied++
		} else {
			skipped++
		}
		total++
		if logEvery > 0 && total%int64(logEvery) == 0 {
			log.WithField("processed", total).Info("migration progress")
		}
	}
	if err := cur.Err(); err != nil {
		return copied, skipped, fmt.Errorf("read source events: %w", err)
	}
	return copied, skipped, nil
}
