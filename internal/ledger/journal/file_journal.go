package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
	"github.com/satoshiflow/ledgercore/internal/ledger/ledgererrors"
	"github.com/satoshiflow/ledgercore/internal/ledger/telemetry"
	"github.com/satoshiflow/ledgercore/pkg/logger"
)

// FileJournal is the reference journal backend: one envelope per line, in
// canonical sorted-key JSON, with a trailing OS fsync on every append
// unless Fsync is disabled for tests. It holds its own append-mode file
// handle open for the lifetime of the journal and keeps the full set of
// seen idempotency keys in memory.
type FileJournal struct {
	path     string
	fsync    bool
	registry *events.SchemaRegistry
	log      *logger.Logger
	metrics  *telemetry.Metrics

	mu                    sync.Mutex
	file                  *os.File
	initialized           bool
	seen                  map[string]struct{}
	totalEvents           int64
	idempotencyViolations int64
	nextSequence          int64
}

var _ Journal = (*FileJournal)(nil)

// NewFileJournal constructs a file journal rooted at path. registry and log
// must not be nil; metrics may be nil, in which case an isolated metrics
// set is created so counters always have a home.
func NewFileJournal(path string, fsync bool, registry *events.SchemaRegistry, log *logger.Logger, metrics *telemetry.Metrics) *FileJournal {
	if metrics == nil {
		metrics = telemetry.NewIsolated()
	}
	return &FileJournal{
		path:     path,
		fsync:    fsync,
		registry: registry,
		log:      log,
		metrics:  metrics,
		seen:     make(map[string]struct{}),
	}
}

func (j *FileJournal) Initialize(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create journal directory: %v", ledgererrors.ErrPermissionDenied, err)
	}

	if rf, err := os.Open(j.path); err == nil {
		seq, scanErr := j.loadExisting(rf)
		closeErr := rf.Close()
		if scanErr != nil {
			return scanErr
		}
		if closeErr != nil {
			return fmt.Errorf("%w: %v", ledgererrors.ErrPermissionDenied, closeErr)
		}
		j.nextSequence = seq
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%w: open journal file: %v", ledgererrors.ErrPermissionDenied, err)
	}

	wf, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open journal file for append: %v", ledgererrors.ErrPermissionDenied, err)
	}
	j.file = wf
	j.initialized = true
	return nil
}

// loadExisting replays every line of an already-existing journal file to
// rebuild the in-memory seen set and running sequence id. Corrupted lines
// are logged and skipped; this mirrors the read protocol's skip_corrupted
// behavior since a file that exists at all is assumed to have been written
// by a prior, possibly crashed, run.
func (j *FileJournal) loadExisting(f *os.File) (int64, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var seq int64
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		seq++
		if line == "" {
			continue
		}
		env, err := events.DecodeEnvelope([]byte(line), j.registry)
		if err != nil {
			j.log.WithField("sequence", seq).Warn("skipping corrupted journal line during startup scan")
			continue
		}
		j.seen[env.IdempotencyKey] = struct{}{}
		j.totalEvents++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("%w: scanning journal file: %v", ledgererrors.ErrPermissionDenied, err)
	}
	return seq, nil
}

func (j *FileJournal) Append(_ context.Context, env events.Envelope) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.initialized {
		return false, fmt.Errorf("%w: journal not initialized", ledgererrors.ErrPermissionDenied)
	}

	if _, dup := j.seen[env.IdempotencyKey]; dup {
		j.idempotencyViolations++
		j.metrics.IncIdempotencyViolation()
		j.log.WithField("idempotency_key", env.IdempotencyKey).Debug("rejected duplicate append")
		return false, nil
	}

	data, err := json.Marshal(env)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ledgererrors.ErrSerializationFailed, err)
	}
	data = append(data, '\n')

	if _, err := j.file.Write(data); err != nil {
		return false, fmt.Errorf("%w: %v", ledgererrors.ErrWriteFailed, err)
	}
	if j.fsync {
		if err := j.file.Sync(); err != nil {
			return false, fmt.Errorf("%w: fsync: %v", ledgererrors.ErrWriteFailed, err)
		}
	}

	j.seen[env.IdempotencyKey] = struct{}{}
	j.totalEvents++
	j.nextSequence++
	j.metrics.IncAppended()
	j.log.WithEvent(env.EventID, env.EventType).Debug("appended event")
	return true, nil
}

func (j *FileJournal) ReadEvents(_ context.Context, skipCorrupted bool) (Cursor, error) {
	f, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererrors.ErrPermissionDenied, err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &fileCursor{
		file:          f,
		scanner:       scanner,
		skipCorrupted: skipCorrupted,
		registry:      j.registry,
		log:           j.log,
	}, nil
}

func (j *FileJournal) Metrics(_ context.Context) (Metrics, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	size := int64(0)
	if stat, err := os.Stat(j.path); err == nil {
		size = stat.Size()
	}
	return Metrics{
		Backend:               "file",
		TotalEvents:           j.totalEvents,
		IdempotencyViolations: j.idempotencyViolations,
		FileSizeBytes:         size,
	}, nil
}

func (j *FileJournal) Count(_ context.Context) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.totalEvents, nil
}

// MaxSequence returns the running sequence counter, which is the line
// number of the last line in the file. The file backend never suppresses
// a write after allocating a line number -- a duplicate is rejected before
// anything is appended -- so appends never make nextSequence and
// totalEvents diverge; they differ only by the blank or corrupted lines
// the startup scan counted but did not load.
func (j *FileJournal) MaxSequence(_ context.Context) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextSequence, nil
}

// VerifyIntegrity re-reads the entire file and checks for duplicate
// event_ids, duplicate idempotency_keys, and missing timestamps. It never
// mutates journal state.
func (j *FileJournal) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	cursor, err := j.ReadEvents(ctx, true)
	if err != nil {
		return IntegrityReport{}, err
	}
	defer cursor.Close()

	eventIDCounts := make(map[string]int)
	keyCounts := make(map[string]int)
	var missingTimestamps, total int64

	for cursor.Next() {
		rec := cursor.Record()
		total++
		eventIDCounts[rec.Envelope.EventID]++
		keyCounts[rec.Envelope.IdempotencyKey]++
		if rec.Envelope.Timestamp.IsZero() {
			missingTimestamps++
		}
	}
	if err := cursor.Err(); err != nil {
		return IntegrityReport{}, err
	}

	var violations []Violation
	for id, n := range eventIDCounts {
		if n > 1 {
			violations = append(violations, Violation{Level: 1, Hard: true, Message: fmt.Sprintf("duplicate event_id %s appears %d times", id, n)})
		}
	}
	for key, n := range keyCounts {
		if n > 1 {
			violations = append(violations, Violation{Level: 1, Hard: true, Message: fmt.Sprintf("duplicate idempotency_key %s appears %d times", key, n)})
		}
	}
	if missingTimestamps > 0 {
		violations = append(violations, Violation{Level: 1, Hard: true, Message: fmt.Sprintf("%d records missing a timestamp", missingTimestamps)})
	}

	return IntegrityReport{
		Valid:       len(violations) == 0,
		TotalEvents: total,
		Violations:  violations,
	}, nil
}

// Clear truncates the journal file and resets all in-memory state.
// DANGEROUS: intended only for test setup/teardown.
func (j *FileJournal) Clear(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		if err := j.file.Truncate(0); err != nil {
			return fmt.Errorf("%w: %v", ledgererrors.ErrWriteFailed, err)
		}
		if _, err := j.file.Seek(0, 0); err != nil {
			return fmt.Errorf("%w: %v", ledgererrors.ErrWriteFailed, err)
		}
	}
	j.seen = make(map[string]struct{})
	j.totalEvents = 0
	j.idempotencyViolations = 0
	j.nextSequence = 0
	return nil
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	return j.file.Close()
}

type fileCursor struct {
	file          *os.File
	scanner       *bufio.Scanner
	skipCorrupted bool
	registry      *events.SchemaRegistry
	log           *logger.Logger

	sequence int64
	current  Record
	err      error
	done     bool
}

func (c *fileCursor) Next() bool {
	if c.err != nil || c.done {
		return false
	}
	for c.scanner.Scan() {
		line := strings.TrimSpace(c.scanner.Text())
		c.sequence++
		if line == "" {
			continue
		}
		env, err := events.DecodeEnvelope([]byte(line), c.registry)
		if err != nil {
			if c.skipCorrupted {
				c.log.WithField("sequence", c.sequence).Warn("skipping corrupted record on read")
				continue
			}
			c.err = fmt.Errorf("%w: at sequence %d: %v", ledgererrors.ErrCorruptionDetected, c.sequence, err)
			c.done = true
			return false
		}
		c.current = Record{Sequence: c.sequence, Envelope: env}
		return true
	}
	if err := c.scanner.Err(); err != nil {
		c.err = err
	}
	c.done = true
	return false
}

func (c *fileCursor) Record() Record { return c.current }
func (c *fileCursor) Err() error     { return c.err }
func (c *fileCursor) Close() error   { return c.file.Close() }
