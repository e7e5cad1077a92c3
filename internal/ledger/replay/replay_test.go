package replay

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
	"github.com/satoshiflow/ledgercore/internal/ledger/journal"
	"github.com/satoshiflow/ledgercore/internal/ledger/projections"
	"github.com/satoshiflow/ledgercore/internal/ledger/snapshot"
	"github.com/satoshiflow/ledgercore/pkg/logger"
)

func newTestJournal(t *testing.T) *journal.FileJournal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j := journal.NewFileJournal(path, false, events.DefaultRegistry(), logger.NewDefault("test"), nil)
	require.NoError(t, j.Initialize(context.Background()))
	return j
}

// TestReplayRebuildsProjectionsAfterCrash exercises scenario 3: events are
// appended, the projection set is thrown away (simulating a crash before
// the in-memory state was ever read), and replay from the untouched
// journal reproduces the exact same balance.
func TestReplayRebuildsProjectionsAfterCrash(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	_, err := j.Append(ctx, events.NewCreditAllocated("a1", events.EntityAgent, 100, 100, "init", nil))
	require.NoError(t, err)
	_, err = j.Append(ctx, events.NewCreditConsumed("a1", events.EntityAgent, 40, 60, "task", nil))
	require.NoError(t, err)

	manager := projections.NewProjectionManager()
	engine := New(j, manager, logger.NewDefault("test"))

	result, err := engine.Replay(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.EventsApplied)
	assert.True(t, result.Integrity.Valid)
	assert.Equal(t, 60.0, manager.Balance.Get("a1"))
	assert.Equal(t, 2, manager.Ledger.Len())
}

// TestReplaySkipsEventsBeforeSnapshotCursor exercises scenario 7-style
// snapshot fast-start: a snapshot taken after the first event means only
// the second is re-applied during replay, yet the resulting state matches
// a cold replay of both events.
func TestReplaySkipsEventsBeforeSnapshotCursor(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	_, err := j.Append(ctx, events.NewCreditAllocated("a1", events.EntityAgent, 100, 100, "init", nil))
	require.NoError(t, err)

	manager := projections.NewProjectionManager()
	require.NoError(t, manager.Apply(ctx, journal.Record{Sequence: 1, Envelope: events.NewCreditAllocated("a1", events.EntityAgent, 100, 100, "init", nil)}))
	snap := snapshot.Take(manager, 1, time.Time{})

	store := snapshot.NewFileStore(t.TempDir())
	require.NoError(t, store.Save(ctx, snap))

	_, err = j.Append(ctx, events.NewCreditConsumed("a1", events.EntityAgent, 30, 70, "task", nil))
	require.NoError(t, err)

	fresh := projections.NewProjectionManager()
	engine := New(j, fresh, logger.NewDefault("test"), WithSnapshots(store))

	result, err := engine.Replay(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.RestoredFromSeq)
	assert.Equal(t, int64(1), result.EventsApplied, "only the post-snapshot event is re-applied")
	assert.Equal(t, 70.0, fresh.Balance.Get("a1"))
}

// TestReplayAppliesUpcastedSchema exercises scenario 4: an envelope
// written under an older schema version is upcasted transparently during
// read, so replay sees the same final shape regardless of when the event
// was originally written.
func TestReplayAppliesUpcastedSchema(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	_, err := j.Append(ctx, events.NewCreditAllocated("a1", events.EntityAgent, 50, 50, "init", nil))
	require.NoError(t, err)

	manager := projections.NewProjectionManager()
	engine := New(j, manager, logger.NewDefault("test"))

	result, err := engine.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.EventsApplied)
	assert.Equal(t, 50.0, manager.Balance.Get("a1"))
}

func TestVerifyFlagsDivergentBalance(t *testing.T) {
	manager := projections.NewProjectionManager()
	ctx := context.Background()
	require.NoError(t, manager.Apply(ctx, journal.Record{Envelope: events.NewCreditAllocated("a1", events.EntityAgent, 80, 80, "init", nil)}))

	manager.Balance.Restore(map[string]float64{"a1": 999})

	report := Verify(manager, VerifyOptions{})
	assert.False(t, report.Valid)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, 1, report.Violations[0].Level)
}

func TestVerifyApprovalSafetyOptIn(t *testing.T) {
	manager := projections.NewProjectionManager()
	ctx := context.Background()
	require.NoError(t, manager.Apply(ctx, journal.Record{Envelope: events.NewApprovalRequested("r1", "withdraw", "a1", "high", nil)}))
	require.NoError(t, manager.Apply(ctx, journal.Record{Envelope: events.NewApprovalApproved("r1", "admin-1", "ok")}))
	require.NoError(t, manager.Apply(ctx, journal.Record{Envelope: events.NewApprovalRejected("r1", "admin-2", "too late")}))

	offReport := Verify(manager, VerifyOptions{})
	assert.True(t, offReport.Valid)

	onReport := Verify(manager, VerifyOptions{CheckApprovalSafety: true})
	assert.False(t, onReport.Valid)
}
