// Package ledgererrors defines the semantic error kinds shared across the
// credit ledger core (journal, bus, replay, snapshot). These are sentinel
// errors, not a type hierarchy: callers match them with errors.Is and wrap
// them with fmt.Errorf("...: %w", ...) for context.
package ledgererrors

import "errors"

var (
	// ErrWriteFailed is raised when a journal append cannot be durably
	// persisted (disk or database write error). Critical: propagated to
	// the bus and to the caller of publish.
	ErrWriteFailed = errors.New("ledger: write failed")

	// ErrSerializationFailed is raised when an envelope cannot be encoded.
	ErrSerializationFailed = errors.New("ledger: serialization failed")

	// ErrPermissionDenied is raised when a journal cannot open its backing
	// file or database connection. Fatal for the journal instance.
	ErrPermissionDenied = errors.New("ledger: permission denied")

	// ErrBackendUnavailable is raised when the storage backend cannot be
	// reached during initialize (e.g. database connection refused).
	ErrBackendUnavailable = errors.New("ledger: backend unavailable")

	// ErrCorruptionDetected is raised from read_events when skip_corrupted
	// is false and a line/row cannot be parsed or reconstructed.
	ErrCorruptionDetected = errors.New("ledger: corruption detected")

	// ErrSchemaVersionGap is raised at schema registry build time when a
	// non-contiguous version is registered for an event type. Fatal
	// startup error.
	ErrSchemaVersionGap = errors.New("ledger: schema version gap")
)
