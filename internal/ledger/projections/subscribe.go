package projections

import (
	"github.com/satoshiflow/ledgercore/internal/ledger/bus"
	"github.com/satoshiflow/ledgercore/internal/ledger/events"
)

// SubscribeAll registers each projection in m against exactly the event
// types it cares about, in the same balance -> ledger -> approval ->
// synergy order the replay engine uses, so live publish fan-out and cold
// replay apply events to the projection set in the same relative order.
func SubscribeAll(b *bus.Bus, m *ProjectionManager) {
	ledgerTypes := []events.EventType{
		events.CreditAllocated, events.CreditConsumed, events.CreditRefunded,
		events.CreditWithdrawn, events.CreditRegenerated,
	}
	for _, t := range ledgerTypes {
		b.Subscribe(t, "balance_projection", m.Balance.Handle)
		b.Subscribe(t, "ledger_projection", m.Ledger.Handle)
	}

	approvalTypes := []events.EventType{
		events.ApprovalRequested, events.ApprovalApproved, events.ApprovalRejected, events.ApprovalExpired,
	}
	for _, t := range approvalTypes {
		b.Subscribe(t, "approval_projection", m.Approval.Handle)
	}

	b.Subscribe(events.CollaborationRecorded, "synergy_projection", m.Synergy.Handle)
	b.Subscribe(events.ReuseDetected, "synergy_projection", m.Synergy.Handle)
}
