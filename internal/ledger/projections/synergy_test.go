package projections

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
)

func TestSynergyProjectionAggregatesTeamRewards(t *testing.T) {
	p := NewSynergyProjection()
	ctx := context.Background()

	scores := map[string]float64{"a1": 0.6, "a2": 0.4}
	require.NoError(t, p.Handle(ctx, rec(events.NewCollaborationRecorded("c1", "m1", []string{"a1", "a2"}, scores))))

	assert.Equal(t, 1.0, p.TeamReward([]string{"a2", "a1"}), "team key is order-independent")
	assert.Len(t, p.Collaborations(), 1)
}

func TestSynergyProjectionCountsReuse(t *testing.T) {
	p := NewSynergyProjection()
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, rec(events.NewReuseDetected("res-1", "a2", "a1", 5))))
	require.NoError(t, p.Handle(ctx, rec(events.NewReuseDetected("res-1", "a3", "a1", 5))))

	assert.Equal(t, int64(2), p.ReuseCount("res-1"))
	assert.Equal(t, int64(0), p.ReuseCount("unknown"))
}
