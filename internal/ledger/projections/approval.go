package projections

import (
	"context"
	"fmt"
	"sync"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
	"github.com/satoshiflow/ledgercore/internal/ledger/journal"
)

// ApprovalProjection tracks a state machine per request_id: absent ->
// pending -> one of {approved, rejected, expired}. The terminal state is
// absorbing; a second terminal event on an already-terminal request is
// counted as a governance anomaly and otherwise ignored (Open Question
// decision D.3: first terminal transition wins).
type ApprovalProjection struct {
	mu                  sync.RWMutex
	requests            map[string]ApprovalState
	applied             map[string]struct{}
	governanceAnomalies int64
}

func NewApprovalProjection() *ApprovalProjection {
	return &ApprovalProjection{
		requests: make(map[string]ApprovalState),
		applied:  make(map[string]struct{}),
	}
}

func (p *ApprovalProjection) Handle(_ context.Context, rec journal.Record) error {
	env := rec.Envelope
	if !env.EventType.ApprovalFamily() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.applied[env.EventID]; seen {
		return nil
	}

	payload, ok := env.Payload.(events.ApprovalPayload)
	if !ok {
		return fmt.Errorf("approval projection: unexpected payload type %T for %s", env.Payload, env.EventType)
	}

	switch env.EventType {
	case events.ApprovalRequested:
		if _, exists := p.requests[payload.RequestID]; !exists {
			p.requests[payload.RequestID] = ApprovalState{
				RequestID:   payload.RequestID,
				ActionType:  payload.ActionType,
				RequesterID: payload.RequesterID,
				RiskLevel:   payload.RiskLevel,
				Status:      events.ApprovalStatusPending,
				RequestedAt: env.Timestamp,
				Context:     payload.Context,
			}
		}
	case events.ApprovalApproved, events.ApprovalRejected, events.ApprovalExpired:
		state, exists := p.requests[payload.RequestID]
		if !exists || state.Status != events.ApprovalStatusPending {
			p.governanceAnomalies++
			p.applied[env.EventID] = struct{}{}
			return nil
		}
		resolvedAt := env.Timestamp
		state.Status = terminalStatus(env.EventType)
		state.ResolvedAt = &resolvedAt
		state.ResolvedBy = payload.ResolvedBy
		state.Justification = payload.Justification
		p.requests[payload.RequestID] = state
	}

	p.applied[env.EventID] = struct{}{}
	return nil
}

func terminalStatus(t events.EventType) events.ApprovalStatus {
	switch t {
	case events.ApprovalApproved:
		return events.ApprovalStatusApproved
	case events.ApprovalRejected:
		return events.ApprovalStatusRejected
	case events.ApprovalExpired:
		return events.ApprovalStatusExpired
	default:
		return events.ApprovalStatusPending
	}
}

// State returns requestID's current state and whether any record exists
// for it at all.
func (p *ApprovalProjection) State(requestID string) (ApprovalState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	state, ok := p.requests[requestID]
	return state, ok
}

// GovernanceAnomalies reports how many terminal events arrived for a
// request that was not pending.
func (p *ApprovalProjection) GovernanceAnomalies() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.governanceAnomalies
}

// States returns a copy of every tracked approval request, for snapshot
// serialization.
func (p *ApprovalProjection) States() map[string]ApprovalState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]ApprovalState, len(p.requests))
	for k, v := range p.requests {
		out[k] = v
	}
	return out
}

// Restore installs request states taken from a snapshot.
func (p *ApprovalProjection) Restore(states map[string]ApprovalState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = make(map[string]ApprovalState, len(states))
	for k, v := range states {
		p.requests[k] = v
	}
}

func (p *ApprovalProjection) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = make(map[string]ApprovalState)
	p.applied = make(map[string]struct{})
	p.governanceAnomalies = 0
}
