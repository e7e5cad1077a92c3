package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/tidwall/gjson"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
	"github.com/satoshiflow/ledgercore/internal/ledger/journal/migrations"
	"github.com/satoshiflow/ledgercore/internal/ledger/ledgererrors"
	"github.com/satoshiflow/ledgercore/internal/ledger/telemetry"
	"github.com/satoshiflow/ledgercore/pkg/logger"
)

const insertEventQuery = `
INSERT INTO credit_events
	(event_id, idempotency_key, event_type, schema_version, occurred_at, actor_id, correlation_id, causation_id, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING id`

const selectEventsQuery = `
SELECT id, event_id, idempotency_key, event_type, schema_version, occurred_at, actor_id, correlation_id, causation_id, payload
FROM credit_events
ORDER BY id ASC`

// SQLJournal is the relational journal backend: a single table with a
// unique constraint on idempotency_key as the authoritative dedup
// mechanism. fsync/WAL durability is left entirely to the database and its
// driver defaults; this journal issues no application-level sync call,
// since there is no meaningful analog over a database connection (Open
// Question D.2).
type SQLJournal struct {
	db       *sqlx.DB
	registry *events.SchemaRegistry
	log      *logger.Logger
	metrics  *telemetry.Metrics

	mu                    sync.Mutex
	seenFastPath          map[string]struct{}
	idempotencyViolations int64
}

var _ Journal = (*SQLJournal)(nil)

// NewSQLJournal wraps an already-open *sqlx.DB. The caller owns the pool's
// lifetime configuration (max open/idle connections); Close here closes
// the underlying pool.
func NewSQLJournal(db *sqlx.DB, registry *events.SchemaRegistry, log *logger.Logger, metrics *telemetry.Metrics) *SQLJournal {
	if metrics == nil {
		metrics = telemetry.NewIsolated()
	}
	return &SQLJournal{
		db:           db,
		registry:     registry,
		log:          log,
		metrics:      metrics,
		seenFastPath: make(map[string]struct{}),
	}
}

func (s *SQLJournal) Initialize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ledgererrors.ErrBackendUnavailable, err)
	}
	if err := migrations.Apply(s.db.DB); err != nil {
		return fmt.Errorf("%w: %v", ledgererrors.ErrPermissionDenied, err)
	}
	if err := s.loadSeenFastPath(ctx); err != nil {
		return err
	}
	return nil
}

// loadSeenFastPath preloads every idempotency_key already durable into
// the in-memory dedup set, mirroring FileJournal.loadExisting. Without
// this, a process restarting mid-migration re-issues an INSERT for every
// already-migrated event: ON CONFLICT DO NOTHING still suppresses the
// row, but the BIGSERIAL id sequence is consumed regardless, so repeated
// restarts burn through sequence values without persisting anything.
func (s *SQLJournal) loadSeenFastPath(ctx context.Context) error {
	rows, err := s.db.QueryxContext(ctx, "SELECT idempotency_key FROM credit_events")
	if err != nil {
		return fmt.Errorf("%w: %v", ledgererrors.ErrPermissionDenied, err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return fmt.Errorf("%w: %v", ledgererrors.ErrCorruptionDetected, err)
		}
		s.seenFastPath[key] = struct{}{}
	}
	return rows.Err()
}

func (s *SQLJournal) Append(ctx context.Context, env events.Envelope) (bool, error) {
	s.mu.Lock()
	_, dup := s.seenFastPath[env.IdempotencyKey]
	s.mu.Unlock()
	if dup {
		s.recordDuplicate()
		return false, nil
	}

	payloadBytes, err := json.Marshal(env.Payload)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ledgererrors.ErrSerializationFailed, err)
	}

	var actorID, correlationID, causationID sql.NullString
	if env.ActorID != nil {
		actorID = sql.NullString{String: *env.ActorID, Valid: true}
	}
	if env.CorrelationID != nil {
		correlationID = sql.NullString{String: *env.CorrelationID, Valid: true}
	}
	if env.CausationID != nil {
		causationID = sql.NullString{String: *env.CausationID, Valid: true}
	}

	var id int64
	row := s.db.QueryRowContext(ctx, insertEventQuery,
		env.EventID, env.IdempotencyKey, string(env.EventType), env.SchemaVersion, env.Timestamp,
		actorID, correlationID, causationID, payloadBytes,
	)
	switch err := row.Scan(&id); {
	case errors.Is(err, sql.ErrNoRows):
		s.mu.Lock()
		s.seenFastPath[env.IdempotencyKey] = struct{}{}
		s.mu.Unlock()
		s.recordDuplicate()
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%w: %v", ledgererrors.ErrWriteFailed, err)
	}

	s.mu.Lock()
	s.seenFastPath[env.IdempotencyKey] = struct{}{}
	s.mu.Unlock()
	s.metrics.IncAppended()
	s.log.WithEvent(env.EventID, env.EventType).WithField("sequence", id).Debug("appended event")
	return true, nil
}

func (s *SQLJournal) recordDuplicate() {
	s.mu.Lock()
	s.idempotencyViolations++
	s.mu.Unlock()
	s.metrics.IncIdempotencyViolation()
}

func (s *SQLJournal) ReadEvents(ctx context.Context, skipCorrupted bool) (Cursor, error) {
	rows, err := s.db.QueryxContext(ctx, selectEventsQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererrors.ErrPermissionDenied, err)
	}
	return &sqlCursor{rows: rows, registry: s.registry, log: s.log, skipCorrupted: skipCorrupted}, nil
}

func (s *SQLJournal) Metrics(ctx context.Context) (Metrics, error) {
	total, err := s.Count(ctx)
	if err != nil {
		return Metrics{}, err
	}
	s.mu.Lock()
	violations := s.idempotencyViolations
	s.mu.Unlock()
	return Metrics{Backend: "sql", TotalEvents: total, IdempotencyViolations: violations}, nil
}

func (s *SQLJournal) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM credit_events"); err != nil {
		return 0, fmt.Errorf("%w: %v", ledgererrors.ErrPermissionDenied, err)
	}
	return count, nil
}

// MaxSequence reports the highest allocated id, which can exceed Count
// when a suppressed duplicate insert has consumed a BIGSERIAL value
// without leaving a row behind.
func (s *SQLJournal) MaxSequence(ctx context.Context) (int64, error) {
	var maxID int64
	if err := s.db.GetContext(ctx, &maxID, "SELECT COALESCE(MAX(id), 0) FROM credit_events"); err != nil {
		return 0, fmt.Errorf("%w: %v", ledgererrors.ErrPermissionDenied, err)
	}
	return maxID, nil
}

// VerifyIntegrity re-checks duplicate event_ids/idempotency_keys and
// missing timestamps directly in SQL. Under normal operation the unique
// constraints make duplicates impossible through Append; this guards
// against out-of-band writes bypassing the journal.
func (s *SQLJournal) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	total, err := s.Count(ctx)
	if err != nil {
		return IntegrityReport{}, err
	}

	var violations []Violation
	violations = append(violations, s.duplicateViolations(ctx, "event_id")...)
	violations = append(violations, s.duplicateViolations(ctx, "idempotency_key")...)

	var missing int64
	if err := s.db.GetContext(ctx, &missing, "SELECT COUNT(*) FROM credit_events WHERE occurred_at IS NULL"); err != nil {
		return IntegrityReport{}, fmt.Errorf("%w: %v", ledgererrors.ErrPermissionDenied, err)
	}
	if missing > 0 {
		violations = append(violations, Violation{Level: 1, Hard: true, Message: fmt.Sprintf("%d rows missing occurred_at", missing)})
	}

	return IntegrityReport{Valid: len(violations) == 0, TotalEvents: total, Violations: violations}, nil
}

func (s *SQLJournal) duplicateViolations(ctx context.Context, column string) []Violation {
	query := fmt.Sprintf("SELECT %s, COUNT(*) AS n FROM credit_events GROUP BY %s HAVING COUNT(*) > 1", column, column)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var value string
		var n int
		if err := rows.Scan(&value, &n); err != nil {
			continue
		}
		out = append(out, Violation{Level: 1, Hard: true, Message: fmt.Sprintf("duplicate %s %s appears %d times", column, value, n)})
	}
	return out
}

// Clear deletes every row. DANGEROUS: test-only.
func (s *SQLJournal) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM credit_events"); err != nil {
		return fmt.Errorf("%w: %v", ledgererrors.ErrWriteFailed, err)
	}
	s.mu.Lock()
	s.seenFastPath = make(map[string]struct{})
	s.idempotencyViolations = 0
	s.mu.Unlock()
	return nil
}

func (s *SQLJournal) Close() error {
	return s.db.Close()
}

// QueryPayload pulls one field out of a stored envelope's payload without
// fully deserializing the tagged payload variant, using gjson's dotted
// path syntax. Returns an empty string if the event or path does not
// exist.
func (s *SQLJournal) QueryPayload(ctx context.Context, eventID, path string) (string, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, "SELECT payload FROM credit_events WHERE event_id = $1", eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledgererrors.ErrPermissionDenied, err)
	}
	return gjson.GetBytes(raw, path).String(), nil
}

type eventRow struct {
	ID             int64          `db:"id"`
	EventID        string         `db:"event_id"`
	IdempotencyKey string         `db:"idempotency_key"`
	EventType      string         `db:"event_type"`
	SchemaVersion  int            `db:"schema_version"`
	OccurredAt     time.Time      `db:"occurred_at"`
	ActorID        sql.NullString `db:"actor_id"`
	CorrelationID  sql.NullString `db:"correlation_id"`
	CausationID    sql.NullString `db:"causation_id"`
	Payload        []byte         `db:"payload"`
}

func rowToEnvelope(row eventRow, registry *events.SchemaRegistry) (events.Envelope, error) {
	et := events.EventType(row.EventType)
	if !et.Valid() {
		return events.Envelope{}, fmt.Errorf("%w: unknown event type %q", ledgererrors.ErrCorruptionDetected, row.EventType)
	}

	payload, err := events.DecodePayload(et, row.SchemaVersion, json.RawMessage(row.Payload), registry)
	if err != nil {
		return events.Envelope{}, err
	}

	env := events.Envelope{
		EventID:        row.EventID,
		IdempotencyKey: row.IdempotencyKey,
		EventType:      et,
		SchemaVersion:  registry.LatestVersion(et),
		Timestamp:      row.OccurredAt,
		Payload:        payload,
	}
	if row.ActorID.Valid {
		v := row.ActorID.String
		env.ActorID = &v
	}
	if row.CorrelationID.Valid {
		v := row.CorrelationID.String
		env.CorrelationID = &v
	}
	if row.CausationID.Valid {
		v := row.CausationID.String
		env.CausationID = &v
	}
	return env, nil
}

type sqlCursor struct {
	rows          *sqlx.Rows
	registry      *events.SchemaRegistry
	log           *logger.Logger
	skipCorrupted bool

	current Record
	err     error
	done    bool
}

func (c *sqlCursor) Next() bool {
	if c.err != nil || c.done {
		return false
	}
	for c.rows.Next() {
		var row eventRow
		if err := c.rows.StructScan(&row); err != nil {
			c.err = fmt.Errorf("%w: %v", ledgererrors.ErrCorruptionDetected, err)
			c.done = true
			return false
		}
		env, err := rowToEnvelope(row, c.registry)
		if err != nil {
			if c.skipCorrupted {
				c.log.WithField("id", row.ID).Warn("skipping corrupted row on read")
				continue
			}
			c.err = err
			c.done = true
			return false
		}
		c.current = Record{Sequence: row.ID, Envelope: env}
		return true
	}
	if err := c.rows.Err(); err != nil {
		c.err = err
	}
	c.done = true
	return false
}

func (c *sqlCursor) Record() Record { return c.current }
func (c *sqlCursor) Err() error     { return c.err }
func (c *sqlCursor) Close() error   { return c.rows.Close() }
