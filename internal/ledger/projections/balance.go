package projections

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
	"github.com/satoshiflow/ledgercore/internal/ledger/journal"
)

// balanceOverflowGuard rejects accidental overflow of domain amounts; real
// credit balances never approach this magnitude.
const balanceOverflowGuard = 1e15

// BalanceProjection maintains each entity's running credit balance. Only
// CREDIT_WITHDRAWN may legitimately drive a balance negative (Open
// Question decision D.1); a CREDIT_CONSUMED that would still do so is
// applied (the projection cannot reject an already-appended event) and
// increments NegativeConsumptionAnomalies instead.
type BalanceProjection struct {
	mu                            sync.RWMutex
	balances                      map[string]float64
	applied                       map[string]struct{}
	negativeConsumptionAnomalies int64
	negativeAmountAnomalies      int64
}

func NewBalanceProjection() *BalanceProjection {
	return &BalanceProjection{
		balances: make(map[string]float64),
		applied:  make(map[string]struct{}),
	}
}

// Handle applies one ledger-family event. Non-ledger events are a no-op.
func (p *BalanceProjection) Handle(_ context.Context, rec journal.Record) error {
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
		return fmt.Errorf("balance projection: unexpected payload type %T for %s", env.Payload, env.EventType)
	}

	if credit.Amount < 0 {
		p.negativeAmountAnomalies++
		return fmt.Errorf("balance projection: negative amount %v for entity %s event %s", credit.Amount, credit.EntityID, env.EventType)
	}

	delta := signedDelta(env.EventType, credit.Amount)
	next := p.balances[credit.EntityID] + delta

	if math.IsNaN(next) || math.IsInf(next, 0) {
		return fmt.Errorf("balance projection: non-finite balance for entity %s", credit.EntityID)
	}
	if math.Abs(next) >= balanceOverflowGuard {
		return fmt.Errorf("balance projection: overflow guard tripped for entity %s", credit.EntityID)
	}
	if next < 0 && env.EventType != events.CreditWithdrawn {
		p.negativeConsumptionAnomalies++
	}

	p.balances[credit.EntityID] = next
	p.applied[env.EventID] = struct{}{}
	return nil
}

// Get returns entity's balance, or 0 if unknown.
func (p *BalanceProjection) Get(entityID string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balances[entityID]
}

// Snapshot returns a copy of every known balance, safe to iterate without
// holding the projection's lock.
func (p *BalanceProjection) Snapshot() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]float64, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out
}

// NegativeConsumptionAnomalies reports how many CREDIT_CONSUMED events
// drove a balance below zero, which should not happen if producers
// enforce preconditions upstream of the ledger core.
func (p *BalanceProjection) NegativeConsumptionAnomalies() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.negativeConsumptionAnomalies
}

// NegativeAmountAnomalies reports how many ledger-family events carried a
// negative amount, violating the invariant that amount conveys magnitude
// only and direction comes from the event type. These events are
// rejected here and never update a balance.
func (p *BalanceProjection) NegativeAmountAnomalies() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.negativeAmountAnomalies
}

// Restore installs balances taken from a snapshot. It does not mark any
// event id as applied: the snapshot's sequence cursor guarantees replay
// will not re-stream the events that produced these balances.
func (p *BalanceProjection) Restore(balances map[string]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances = make(map[string]float64, len(balances))
	for k, v := range balances {
		p.balances[k] = v
	}
}

// Clear resets the projection to empty, as required at the start of a
// replay.
func (p *BalanceProjection) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances = make(map[string]float64)
	p.applied = make(map[string]struct{})
	p.negativeConsumptionAnomalies = 0
	p.negativeAmountAnomalies = 0
}
