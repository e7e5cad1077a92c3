package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/satoshiflow/ledgercore/internal/ledger/projections"
)

// Store persists and retrieves snapshots. Both implementations share the
// same retention policy: Prune keeps the most recent `retain` sequence
// ids and deletes the rest.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Latest(ctx context.Context) (Snapshot, bool, error)
	Prune(ctx context.Context, retain int) error
}

const (
	partBalance  = "balance"
	partLedger   = "ledger"
	partApproval = "approval"
	partSynergy  = "synergy"
)

// SQLStore persists snapshots to the credit_snapshots table, one row per
// projection per sequence id, matching the journal's migration-managed
// schema.
type SQLStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

const upsertSnapshotPartQuery = `
INSERT INTO credit_snapshots (sequence_number, projection_name, blob, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (sequence_number, projection_name) DO UPDATE SET blob = EXCLUDED.blob`

// Save writes snap as four rows sharing sequence_number, one per
// projection, inside a single transaction so a reader never observes a
// partially-written snapshot.
func (s *SQLStore) Save(ctx context.Context, snap Snapshot) error {
	parts := map[string]any{
		partBalance:  snap.Blob.Balances,
		partLedger:   snap.Blob.LedgerEntries,
		partApproval: snap.Blob.ApprovalStates,
		partSynergy: synergyPart{
			TeamRewards:    snap.Blob.TeamRewards,
			Collaborations: snap.Blob.Collaborations,
			ReuseCounts:    snap.Blob.ReuseCounts,
		},
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot save: begin tx: %w", err)
	}
	defer tx.Rollback()

	for name, part := range parts {
		blob, err := json.Marshal(part)
		if err != nil {
			return fmt.Errorf("snapshot save: marshal %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, upsertSnapshotPartQuery, snap.SequenceID, name, blob, snap.TakenAt); err != nil {
			return fmt.Errorf("snapshot save: write %s: %w", name, err)
		}
	}
	return tx.Commit()
}

type synergyPart struct {
	TeamRewards    map[string]float64                 `json:"team_rewards"`
	Collaborations []projections.CollaborationRecord  `json:"collaborations,omitempty"`
	ReuseCounts    map[string]int64                    `json:"reuse_counts"`
}

const latestSequenceQuery = `SELECT COALESCE(MAX(sequence_number), 0) FROM credit_snapshots`

const selectSnapshotPartsQuery = `
SELECT projection_name, blob, created_at
FROM credit_snapshots
WHERE sequence_number = $1`

// Latest loads the snapshot at the highest known sequence_number. ok is
// false when the table is empty.
func (s *SQLStore) Latest(ctx context.Context) (Snapshot, bool, error) {
	var seq int64
	if err := s.db.GetContext(ctx, &seq, latestSequenceQuery); err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot latest: %w", err)
	}
	if seq == 0 {
		return Snapshot{}, false, nil
	}

	rows, err := s.db.QueryxContext(ctx, selectSnapshotPartsQuery, seq)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot latest: query parts: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{SequenceID: seq}
	for rows.Next() {
		var name string
		var blob []byte
		var takenAt time.Time
		if err := rows.Scan(&name, &blob, &takenAt); err != nil {
			return Snapshot{}, false, fmt.Errorf("snapshot latest: scan part: %w", err)
		}
		snap.TakenAt = takenAt
		switch name {
		case partBalance:
			if err := json.Unmarshal(blob, &snap.Blob.Balances); err != nil {
				return Snapshot{}, false, fmt.Errorf("snapshot latest: decode balances: %w", err)
			}
		case partLedger:
			if err := json.Unmarshal(blob, &snap.Blob.LedgerEntries); err != nil {
				return Snapshot{}, false, fmt.Errorf("snapshot latest: decode ledger entries: %w", err)
			}
		case partApproval:
			if err := json.Unmarshal(blob, &snap.Blob.ApprovalStates); err != nil {
				return Snapshot{}, false, fmt.Errorf("snapshot latest: decode approval states: %w", err)
			}
		case partSynergy:
			var sp synergyPart
			if err := json.Unmarshal(blob, &sp); err != nil {
				return Snapshot{}, false, fmt.Errorf("snapshot latest: decode synergy: %w", err)
			}
			snap.Blob.TeamRewards = sp.TeamRewards
			snap.Blob.ReuseCounts = sp.ReuseCounts
			snap.Blob.Collaborations = sp.Collaborations
		}
	}
	return snap, true, rows.Err()
}

const pruneSnapshotsQuery = `
DELETE FROM credit_snapshots
WHERE sequence_number NOT IN (
	SELECT DISTINCT sequence_number FROM credit_snapshots
	ORDER BY sequence_number DESC
	LIMIT $1
)`

// Prune deletes every snapshot except the `retain` most recent sequence
// ids.
func (s *SQLStore) Prune(ctx context.Context, retain int) error {
	if retain <= 0 {
		return fmt.Errorf("snapshot prune: retain must be positive, got %d", retain)
	}
	_, err := s.db.ExecContext(ctx, pruneSnapshotsQuery, retain)
	if err != nil {
		return fmt.Errorf("snapshot prune: %w", err)
	}
	return nil
}
