package bus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
	"github.com/satoshiflow/ledgercore/internal/ledger/journal"
	"github.com/satoshiflow/ledgercore/pkg/logger"
)

// fakeJournal is a minimal in-memory journal.Journal used to isolate bus
// fan-out behavior from any real storage backend.
type fakeJournal struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newFakeJournal() *fakeJournal { return &fakeJournal{seen: make(map[string]struct{})} }

func (f *fakeJournal) Initialize(context.Context) error { return nil }

func (f *fakeJournal) Append(_ context.Context, env events.Envelope) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[env.IdempotencyKey]; dup {
		return false, nil
	}
	f.seen[env.IdempotencyKey] = struct{}{}
	return true, nil
}

func (f *fakeJournal) ReadEvents(context.Context, bool) (journal.Cursor, error) { return nil, nil }
func (f *fakeJournal) Metrics(context.Context) (journal.Metrics, error)         { return journal.Metrics{}, nil }
func (f *fakeJournal) Count(context.Context) (int64, error)                    { return 0, nil }
func (f *fakeJournal) MaxSequence(context.Context) (int64, error)              { return 0, nil }
func (f *fakeJournal) VerifyIntegrity(context.Context) (journal.IntegrityReport, error) {
	return journal.IntegrityReport{Valid: true}, nil
}
func (f *fakeJournal) Clear(context.Context) error { return nil }
func (f *fakeJournal) Close() error                { return nil }

func TestPublishReturnsFalseOnDuplicateWithoutInvokingHandlers(t *testing.T) {
	b := New(newFakeJournal(), logger.NewDefault("test"), nil)
	var invocations int
	b.Subscribe(events.CreditAllocated, "counter", func(ctx context.Context, rec journal.Record) error {
		invocations++
		return nil
	})

	env := events.NewCreditAllocated("a1", events.EntityAgent, 10, 10, "r", nil, events.WithIdempotencyKey("k"))

	ok1, err := b.Publish(context.Background(), env)
	require.NoError(t, err)
	assert.True(t, ok1)

	ok2, err := b.Publish(context.Background(), env)
	require.NoError(t, err)
	assert.False(t, ok2)

	assert.Equal(t, 1, invocations)
}

func TestPublishInvokesAllSubscribersForEventType(t *testing.T) {
	b := New(newFakeJournal(), logger.NewDefault("test"), nil)
	var first, second bool
	b.Subscribe(events.CreditAllocated, "first", func(ctx context.Context, rec journal.Record) error {
		first = true
		return nil
	})
	b.Subscribe(events.CreditAllocated, "second", func(ctx context.Context, rec journal.Record) error {
		second = true
		return nil
	})

	env := events.NewCreditAllocated("a1", events.EntityAgent, 10, 10, "r", nil, events.WithIdempotencyKey("k"))
	ok, err := b.Publish(context.Background(), env)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, first)
	assert.True(t, second)
}

func TestPublishIsolatesHandlerFailure(t *testing.T) {
	b := New(newFakeJournal(), logger.NewDefault("test"), nil)
	var secondCalled bool
	b.Subscribe(events.CreditAllocated, "broken", func(ctx context.Context, rec journal.Record) error {
		return errors.New("boom")
	})
	b.Subscribe(events.CreditAllocated, "healthy", func(ctx context.Context, rec journal.Record) error {
		secondCalled = true
		return nil
	})

	env := events.NewCreditAllocated("a1", events.EntityAgent, 10, 10, "r", nil, events.WithIdempotencyKey("k"))
	ok, err := b.Publish(context.Background(), env)
	require.NoError(t, err)
	assert.True(t, ok, "handler failure must not revoke the persisted event")
	assert.True(t, secondCalled, "handler failure must not abort fan-out to later subscribers")

	stats := b.Stats()
	assert.Equal(t, int64(1), stats.TotalPublished)
	assert.Equal(t, int64(1), stats.TotalSubscriberErrors)
}

func TestUnsubscribeStopsFurtherInvocations(t *testing.T) {
	b := New(newFakeJournal(), logger.NewDefault("test"), nil)
	var invocations int
	id := b.Subscribe(events.CreditAllocated, "counter", func(ctx context.Context, rec journal.Record) error {
		invocations++
		return nil
	})
	b.Unsubscribe(events.CreditAllocated, id)

	env := events.NewCreditAllocated("a1", events.EntityAgent, 10, 10, "r", nil, events.WithIdempotencyKey("k"))
	_, err := b.Publish(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 0, invocations)
}

func TestStatsReportsSubscriberCounts(t *testing.T) {
	b := New(newFakeJournal(), logger.NewDefault("test"), nil)
	b.Subscribe(events.CreditAllocated, "a", func(context.Context, journal.Record) error { return nil })
	b.Subscribe(events.CreditAllocated, "b", func(context.Context, journal.Record) error { return nil })
	b.Subscribe(events.ApprovalRequested, "c", func(context.Context, journal.Record) error { return nil })

	stats := b.Stats()
	assert.Equal(t, 2, stats.SubscriberCounts[events.CreditAllocated])
	assert.Equal(t, 1, stats.SubscriberCounts[events.ApprovalRequested])
}
