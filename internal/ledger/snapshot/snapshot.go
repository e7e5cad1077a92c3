// Package snapshot persists and restores serialized projection state so
// the replay engine can cold-start in O(events since snapshot) instead of
// O(all events). The journal remains the sole source of truth; a
// snapshot is a derived, disposable optimization and can always be
// rebuilt by a full replay.
package snapshot

import (
	"time"

	"github.com/satoshiflow/ledgercore/internal/ledger/projections"
)

// projectionBlob is the serialized shape of the full projection set.
// Every field marshals cleanly through the standard library; none of the
// projections hold channels, mutexes, or other non-serializable state.
type projectionBlob struct {
	Balances       map[string]float64                   `json:"balances"`
	LedgerEntries  []projections.LedgerEntry             `json:"ledger_entries"`
	ApprovalStates map[string]projections.ApprovalState  `json:"approval_states"`
	TeamRewards    map[string]float64                    `json:"team_rewards"`
	Collaborations []projections.CollaborationRecord     `json:"collaborations"`
	ReuseCounts    map[string]int64                      `json:"reuse_counts"`
}

// Snapshot is one taken-at-a-point-in-time view of the full projection
// set, content-addressed by the sequence id of the last event it
// includes.
type Snapshot struct {
	SequenceID int64           `json:"sequence_id"`
	TakenAt    time.Time       `json:"taken_at"`
	Blob       projectionBlob  `json:"blob"`
}

// Take serializes m's current state into a Snapshot addressed by
// sequenceID, which the caller derives from the journal (the sequence id
// of the last event applied before Take is called).
func Take(m *projections.ProjectionManager, sequenceID int64, takenAt time.Time) Snapshot {
	return Snapshot{
		SequenceID: sequenceID,
		TakenAt:    takenAt,
		Blob: projectionBlob{
			Balances:       m.Balance.Snapshot(),
			LedgerEntries:  m.Ledger.AllEntries(),
			ApprovalStates: m.Approval.States(),
			TeamRewards:    m.Synergy.TeamRewards(),
			Collaborations: m.Synergy.Collaborations(),
			ReuseCounts:    m.Synergy.ReuseCounts(),
		},
	}
}

// Restore installs the snapshot's state into m, which must already be
// cleared (the replay engine clears projections before consulting a
// snapshot). Replay then applies every event after SequenceID on top.
func (s Snapshot) Restore(m *projections.ProjectionManager) {
	m.Balance.Restore(s.Blob.Balances)
	m.Ledger.Restore(s.Blob.LedgerEntries)
	m.Approval.Restore(s.Blob.ApprovalStates)
	m.Synergy.Restore(s.Blob.TeamRewards, s.Blob.Collaborations, s.Blob.ReuseCounts)
}
