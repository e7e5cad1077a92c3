package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
	"github.com/satoshiflow/ledgercore/pkg/logger"
)

func newTestFileJournal(t *testing.T) *FileJournal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credits.jsonl")
	j := NewFileJournal(path, false, events.DefaultRegistry(), logger.NewDefault("test"), nil)
	require.NoError(t, j.Initialize(context.Background()))
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestFileJournalAppendAndRead(t *testing.T) {
	ctx := context.Background()
	j := newTestFileJournal(t)

	env := events.NewCreditAllocated("a1", events.EntityAgent, 80, 80, "init", nil, events.WithIdempotencyKey("init:a1"))
	ok, err := j.Append(ctx, env)
	require.NoError(t, err)
	assert.True(t, ok)

	cursor, err := j.ReadEvents(ctx, true)
	require.NoError(t, err)
	defer cursor.Close()

	var count int
	for cursor.Next() {
		rec := cursor.Record()
		assert.Equal(t, int64(1), rec.Sequence)
		assert.Equal(t, env.EventID, rec.Envelope.EventID)
		count++
	}
	require.NoError(t, cursor.Err())
	assert.Equal(t, 1, count)
}

func TestFileJournalRejectsDuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	j := newTestFileJournal(t)

	env := events.NewCreditAllocated("a1", events.EntityAgent, 80, 80, "init", nil, events.WithIdempotencyKey("k"))
	ok1, err := j.Append(ctx, env)
	require.NoError(t, err)
	assert.True(t, ok1)

	env2 := events.NewCreditAllocated("a1", events.EntityAgent, 80, 80, "init", nil, events.WithIdempotencyKey("k"))
	ok2, err := j.Append(ctx, env2)
	require.NoError(t, err)
	assert.False(t, ok2)

	metrics, err := j.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.TotalEvents)
	assert.Equal(t, int64(1), metrics.IdempotencyViolations)
}

func TestFileJournalSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credits.jsonl")
	registry := events.DefaultRegistry()

	j1 := NewFileJournal(path, false, registry, logger.NewDefault("test"), nil)
	require.NoError(t, j1.Initialize(ctx))
	_, err := j1.Append(ctx, events.NewCreditAllocated("a1", events.EntityAgent, 80, 80, "init", nil, events.WithIdempotencyKey("k1")))
	require.NoError(t, err)
	require.NoError(t, j1.Close())

	j2 := NewFileJournal(path, false, registry, logger.NewDefault("test"), nil)
	require.NoError(t, j2.Initialize(ctx))
	defer j2.Close()

	count, err := j2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	ok, err := j2.Append(ctx, events.NewCreditAllocated("a1", events.EntityAgent, 1, 81, "again", nil, events.WithIdempotencyKey("k1")))
	require.NoError(t, err)
	assert.False(t, ok, "idempotency state must survive restart")
}

func TestFileJournalVerifyIntegrityReportsCleanJournalValid(t *testing.T) {
	ctx := context.Background()
	j := newTestFileJournal(t)

	_, err := j.Append(ctx, events.NewCreditAllocated("a1", events.EntityAgent, 1, 1, "r", nil, events.WithIdempotencyKey("k1")))
	require.NoError(t, err)

	report, err := j.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, int64(1), report.TotalEvents)
}

func TestFileJournalClearResetsState(t *testing.T) {
	ctx := context.Background()
	j := newTestFileJournal(t)

	_, err := j.Append(ctx, events.NewCreditAllocated("a1", events.EntityAgent, 1, 1, "r", nil, events.WithIdempotencyKey("k1")))
	require.NoError(t, err)

	require.NoError(t, j.Clear(ctx))

	count, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	ok, err := j.Append(ctx, events.NewCreditAllocated("a1", events.EntityAgent, 1, 1, "r", nil, events.WithIdempotencyKey("k1")))
	require.NoError(t, err)
	assert.True(t, ok, "cleared journal must forget prior idempotency keys")
}
