package projections

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
	"github.com/satoshiflow/ledgercore/internal/ledger/journal"
)

// SynergyProjection tracks collaboration rewards and reuse detection.
// Every counter it maintains is non-negative and monotonically
// non-decreasing, since it only ever sums contribution scores and
// increments reuse counts.
type SynergyProjection struct {
	mu             sync.RWMutex
	teamRewards    map[string]float64
	collaborations []CollaborationRecord
	reuseCounts    map[string]int64
	applied        map[string]struct{}
}

func NewSynergyProjection() *SynergyProjection {
	return &SynergyProjection{
		teamRewards: make(map[string]float64),
		reuseCounts: make(map[string]int64),
		applied:     make(map[string]struct{}),
	}
}

func (p *SynergyProjection) Handle(_ context.Context, rec journal.Record) error {
	env := rec.Envelope

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.applied[env.EventID]; seen {
		return nil
	}

	switch env.EventType {
	case events.CollaborationRecorded:
		payload, ok := env.Payload.(events.CollaborationPayload)
		if !ok {
			return fmt.Errorf("synergy projection: unexpected payload type %T for %s", env.Payload, env.EventType)
		}
		key := teamKey(payload.AgentIDs)
		var sum float64
		for _, score := range payload.ContributionScores {
			sum += score
		}
		p.teamRewards[key] += sum
		p.collaborations = append(p.collaborations, CollaborationRecord{
			CollaborationID:    payload.CollaborationID,
			AgentIDs:           append([]string(nil), payload.AgentIDs...),
			MissionID:          payload.MissionID,
			ContributionScores: payload.ContributionScores,
			Timestamp:          env.Timestamp,
		})
	case events.ReuseDetected:
		payload, ok := env.Payload.(events.ReuseDetectedPayload)
		if !ok {
			return fmt.Errorf("synergy projection: unexpected payload type %T for %s", env.Payload, env.EventType)
		}
		p.reuseCounts[payload.ResourceID]++
	default:
		return nil
	}

	p.applied[env.EventID] = struct{}{}
	return nil
}

func teamKey(agentIDs []string) string {
	sorted := append([]string(nil), agentIDs...)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

// TeamReward returns the cumulative contribution-score sum recorded for
// the team made up of exactly agentIDs (order-independent).
func (p *SynergyProjection) TeamReward(agentIDs []string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.teamRewards[teamKey(agentIDs)]
}

// Collaborations returns a copy of every recorded collaboration, oldest
// first.
func (p *SynergyProjection) Collaborations() []CollaborationRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]CollaborationRecord, len(p.collaborations))
	copy(out, p.collaborations)
	return out
}

// ReuseCount returns how many times resourceID has been reused.
func (p *SynergyProjection) ReuseCount(resourceID string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reuseCounts[resourceID]
}

// TeamRewards returns a copy of the full per-team reward map, for
// snapshot serialization.
func (p *SynergyProjection) TeamRewards() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]float64, len(p.teamRewards))
	for k, v := range p.teamRewards {
		out[k] = v
	}
	return out
}

// ReuseCounts returns a copy of the full per-resource reuse count map,
// for snapshot serialization.
func (p *SynergyProjection) ReuseCounts() map[string]int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int64, len(p.reuseCounts))
	for k, v := range p.reuseCounts {
		out[k] = v
	}
	return out
}

// Restore installs team rewards, collaboration history, and reuse counts
// taken from a snapshot.
func (p *SynergyProjection) Restore(teamRewards map[string]float64, collaborations []CollaborationRecord, reuseCounts map[string]int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teamRewards = make(map[string]float64, len(teamRewards))
	for k, v := range teamRewards {
		p.teamRewards[k] = v
	}
	p.collaborations = append([]CollaborationRecord(nil), collaborations...)
	p.reuseCounts = make(map[string]int64, len(reuseCounts))
	for k, v := range reuseCounts {
		p.reuseCounts[k] = v
	}
}

func (p *SynergyProjection) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teamRewards = make(map[string]float64)
	p.collaborations = nil
	p.reuseCounts = make(map[string]int64)
	p.applied = make(map[string]struct{})
}
