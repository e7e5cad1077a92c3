// Package journal defines the append-only event store interface and its
// two interchangeable backends: a file-backed JSONL journal and a
// Postgres-backed relational journal.
package journal

import (
	"context"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
)

// Record pairs a decoded envelope with the sequence id the journal assigned
// it at append time. Sequence ids are monotonically increasing per journal
// instance and define replay order; they are not part of the envelope's
// own content identity.
type Record struct {
	Sequence int64
	Envelope events.Envelope
}

// Cursor streams journal records in sequence-id order, mirroring the
// database/sql.Rows idiom: call Next until it returns false, then check
// Err to distinguish end-of-stream from a read failure.
type Cursor interface {
	Next() bool
	Record() Record
	Err() error
	Close() error
}

// Metrics mirrors the Python journal's get_metrics() output.
type Metrics struct {
	Backend               string
	TotalEvents           int64
	IdempotencyViolations int64
	FileSizeBytes         int64
}

// Violation is one finding from VerifyIntegrity.
type Violation struct {
	Level   int
	Hard    bool
	Message string
}

// IntegrityReport is the structured result of VerifyIntegrity. It is never
// an error in itself; callers decide what to do with a non-empty,
// non-Valid report.
type IntegrityReport struct {
	Valid       bool
	TotalEvents int64
	Violations  []Violation
}

// Journal is the append-only, crash-safe event store. Exactly one writer
// owns a Journal instance (see the concurrency model); the interface does
// not arbitrate between multiple writers.
type Journal interface {
	// Initialize prepares the journal for use: creating files/directories,
	// opening connections, and rebuilding any in-memory idempotency state
	// from what is already durable. Must be called once before Append or
	// ReadEvents.
	Initialize(ctx context.Context) error

	// Append durably persists env and returns true, or detects a duplicate
	// idempotency_key and returns false without touching durable storage.
	// A non-nil error means env was not accepted and left no trace.
	Append(ctx context.Context, env events.Envelope) (bool, error)

	// ReadEvents streams every durable record in sequence-id order. When
	// skipCorrupted is true, unreadable records are logged and skipped;
	// when false, the cursor surfaces CorruptionDetected via Err and
	// stops.
	ReadEvents(ctx context.Context, skipCorrupted bool) (Cursor, error)

	// Metrics reports journal-level counters for operators and tests.
	Metrics(ctx context.Context) (Metrics, error)

	// Count returns the total number of durable records.
	Count(ctx context.Context) (int64, error)

	// MaxSequence returns the highest sequence id currently durable in the
	// journal, or 0 if the journal is empty. Replay compares a snapshot's
	// cursor against this value, not Count, to decide whether the
	// snapshot is within range of what the journal currently holds: a
	// backend's sequence allocator and its row count can diverge (a
	// suppressed duplicate insert still consumes a sequence value on the
	// SQL backend), so Count alone would wrongly reject a usable
	// snapshot.
	MaxSequence(ctx context.Context) (int64, error)

	// VerifyIntegrity re-scans the durable log and reports structural
	// violations (duplicate ids, duplicate keys, missing timestamps). It
	// never mutates state.
	VerifyIntegrity(ctx context.Context) (IntegrityReport, error)

	// Clear destroys every durable record. DANGEROUS: test-only, never
	// called from a non-test code path.
	Clear(ctx context.Context) error

	// Close releases any held file handles or connections.
	Close() error
}
