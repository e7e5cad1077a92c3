// Package projections implements the in-memory read models rebuilt from
// the journal: balance, ledger history, approval state, and synergy
// counters. Every projection handler is a pure function of (current
// state, envelope) and is idempotent on envelope event_id, so replaying
// the same event twice (possible across overlapping live/replay windows)
// never double-applies it.
package projections

import (
	"time"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
)

// LedgerEntry is one line of ledger history: a ledger-family event as
// recorded by the producer, with the signed amount already applied so
// callers do not need to know per-event-type sign rules.
type LedgerEntry struct {
	EventID      string
	Timestamp    time.Time
	EntityID     string
	EntityType   events.EntityType
	SignedAmount float64
	BalanceAfter float64
	Reason       string
	MissionID    *string
}

// ApprovalState is the current state of one approval request.
type ApprovalState struct {
	RequestID     string
	ActionType    string
	RequesterID   string
	RiskLevel     string
	Status        events.ApprovalStatus
	RequestedAt   time.Time
	ResolvedAt    *time.Time
	ResolvedBy    string
	Justification string
	Context       map[string]any
}

// CollaborationRecord is one recorded split of a mission's reward across
// contributing agents.
type CollaborationRecord struct {
	CollaborationID    string
	AgentIDs           []string
	MissionID          string
	ContributionScores map[string]float64
	Timestamp          time.Time
}

func signedDelta(t events.EventType, amount float64) float64 {
	switch t {
	case events.CreditAllocated, events.CreditRefunded, events.CreditRegenerated:
		return amount
	case events.CreditConsumed, events.CreditWithdrawn:
		return -amount
	default:
		return 0
	}
}
