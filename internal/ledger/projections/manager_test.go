package projections

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
)

func TestProjectionManagerDispatchesToAllProjections(t *testing.T) {
	m := NewProjectionManager()
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, rec(events.NewCreditAllocated("a1", events.EntityAgent, 80, 80, "init", nil))))
	require.NoError(t, m.Apply(ctx, rec(events.NewApprovalRequested("r1", "withdraw", "a1", "high", nil))))
	require.NoError(t, m.Apply(ctx, rec(events.NewCollaborationRecorded("c1", "m1", []string{"a1"}, map[string]float64{"a1": 1}))))

	assert.Equal(t, 80.0, m.Balance.Get("a1"))
	assert.Equal(t, 1, m.Ledger.Len())
	_, ok := m.Approval.State("r1")
	assert.True(t, ok)
	assert.Len(t, m.Synergy.Collaborations(), 1)
}

func TestProjectionManagerClearResetsEverything(t *testing.T) {
	m := NewProjectionManager()
	ctx := context.Background()
	require.NoError(t, m.Apply(ctx, rec(events.NewCreditAllocated("a1", events.EntityAgent, 80, 80, "init", nil))))

	m.Clear()

	assert.Equal(t, 0.0, m.Balance.Get("a1"))
	assert.Equal(t, 0, m.Ledger.Len())
}
