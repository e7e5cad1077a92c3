package projections

import (
	"context"
	"fmt"
	"sync"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
	"github.com/satoshiflow/ledgercore/internal/ledger/journal"
)

// LedgerProjection is the append-only, per-entity history of ledger-family
// events. It stores balance_after exactly as the producer reported it; it
// never recomputes a balance (that is the BalanceProjection's job, and
// integrity verification cross-checks the two independently).
type LedgerProjection struct {
	mu                      sync.RWMutex
	entries                 []LedgerEntry
	byEntity                map[string][]int
	applied                 map[string]struct{}
	negativeAmountAnomalies int64
}

func NewLedgerProjection() *LedgerProjection {
	return &LedgerProjection{
		byEntity: make(map[string][]int),
		applied:  make(map[string]struct{}),
	}
}

func (p *LedgerProjection) Handle(_ context.Context, rec journal.Record) error {
	env := rec.Envelope
	if !env.EventType.LedgerFamily() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.applied[env.EventID]; seen {
		return nil
	}

	credit, ok := env.Payload.(events.CreditPayload)
	if !ok {
		return fmt.Errorf("ledger projection: unexpected payload type %T for %s", env.Payload, env.EventType)
	}

	if credit.Amount < 0 {
		p.negativeAmountAnomalies++
		return fmt.Errorf("ledger projection: negative amount %v for entity %s event %s", credit.Amount, credit.EntityID, env.EventType)
	}

	entry := LedgerEntry{
		EventID:      env.EventID,
		Timestamp:    env.Timestamp,
		EntityID:     credit.EntityID,
		EntityType:   credit.EntityType,
		SignedAmount: signedDelta(env.EventType, credit.Amount),
		BalanceAfter: credit.BalanceAfter,
		Reason:       credit.Reason,
		MissionID:    credit.MissionID,
	}

	idx := len(p.entries)
	p.entries = append(p.entries, entry)
	p.byEntity[credit.EntityID] = append(p.byEntity[credit.EntityID], idx)
	p.applied[env.EventID] = struct{}{}
	return nil
}

// History returns entityID's ledger entries, most recent first. A limit of
// 0 or less returns every entry.
func (p *LedgerProjection) History(entityID string, limit int) []LedgerEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	indices := p.byEntity[entityID]
	n := len(indices)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]LedgerEntry, 0, n)
	for i := len(indices) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, p.entries[indices[i]])
	}
	return out
}

// AllEntries returns a copy of every ledger entry across every entity, in
// arrival order. Used by integrity verification to recompute balances
// independently of the balance projection.
func (p *LedgerProjection) AllEntries() []LedgerEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]LedgerEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Len returns the total number of ledger entries across every entity.
func (p *LedgerProjection) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// NegativeAmountAnomalies reports how many ledger-family events carried a
// negative amount and were rejected before being recorded.
func (p *LedgerProjection) NegativeAmountAnomalies() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.negativeAmountAnomalies
}

// Restore installs entries taken from a snapshot, rebuilding the
// per-entity index. Like BalanceProjection.Restore, it does not populate
// the dedup set: the snapshot's sequence cursor guarantees replay will
// not re-stream the events behind these entries.
func (p *LedgerProjection) Restore(entries []LedgerEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append([]LedgerEntry(nil), entries...)
	p.byEntity = make(map[string][]int)
	for i, e := range p.entries {
		p.byEntity[e.EntityID] = append(p.byEntity[e.EntityID], i)
	}
}

func (p *LedgerProjection) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = nil
	p.byEntity = make(map[string][]int)
	p.applied = make(map[string]struct{})
	p.negativeAmountAnomalies = 0
}
