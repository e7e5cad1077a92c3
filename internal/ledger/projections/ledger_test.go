package projections

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
)

func TestLedgerProjectionHistoryNewestFirst(t *testing.T) {
	p := NewLedgerProjection()
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, rec(events.NewCreditAllocated("a1", events.EntityAgent, 80, 80, "init", nil))))
	require.NoError(t, p.Handle(ctx, rec(events.NewCreditConsumed("a1", events.EntityAgent, 30, 50, "task", nil))))

	history := p.History("a1", 0)
	require.Len(t, history, 2)
	assert.Equal(t, "task", history[0].Reason)
	assert.Equal(t, -30.0, history[0].SignedAmount)
	assert.Equal(t, "init", history[1].Reason)
	assert.Equal(t, 80.0, history[1].SignedAmount)
}

func TestLedgerProjectionHistoryRespectsLimit(t *testing.T) {
	p := NewLedgerProjection()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Handle(ctx, rec(events.NewCreditAllocated("a1", events.EntityAgent, 1, 1, "r", nil))))
	}

	assert.Len(t, p.History("a1", 2), 2)
	assert.Len(t, p.History("a1", 0), 5)
	assert.Equal(t, 5, p.Len())
}

func TestLedgerProjectionIgnoresNonLedgerEvents(t *testing.T) {
	p := NewLedgerProjection()
	ctx := context.Background()
	require.NoError(t, p.Handle(ctx, rec(events.NewApprovalRequested("r1", "withdraw", "a1", "high", nil))))
	assert.Equal(t, 0, p.Len())
}

func TestLedgerProjectionRejectsNegativeAmount(t *testing.T) {
	p := NewLedgerProjection()
	ctx := context.Background()

	err := p.Handle(ctx, rec(events.NewCreditAllocated("a1", events.EntityAgent, -50, -50, "bad", nil)))

	require.Error(t, err)
	assert.Equal(t, 0, p.Len(), "a rejected event must not be recorded")
	assert.Equal(t, int64(1), p.NegativeAmountAnomalies())
}
