package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/satoshiflow/ledgercore/internal/ledger/ledgererrors"
)

// maxIdempotencyKeyLen bounds the idempotency_key field so that a runaway
// caller-supplied reason string cannot produce unbounded journal rows.
const maxIdempotencyKeyLen = 128

// Envelope wraps every event recorded in the ledger core. It is the only
// unit the journal, bus, and projections exchange; nothing downstream of
// the journal ever sees a bare Payload.
type Envelope struct {
	EventID        string
	IdempotencyKey string
	EventType      EventType
	SchemaVersion  int
	Timestamp      time.Time
	ActorID        *string
	CorrelationID  *string
	CausationID    *string
	Payload        Payload
}

// EnvelopeOption customizes an envelope at construction time. The
// create_<event> constructors apply defaults first and options last, so an
// explicit option always wins.
type EnvelopeOption func(*Envelope)

func WithActor(actorID string) EnvelopeOption {
	return func(e *Envelope) { e.ActorID = &actorID }
}

func WithCorrelationID(id string) EnvelopeOption {
	return func(e *Envelope) { e.CorrelationID = &id }
}

func WithCausationID(id string) EnvelopeOption {
	return func(e *Envelope) { e.CausationID = &id }
}

// WithIdempotencyKey overrides the canonical default key a constructor
// would otherwise derive from its business arguments.
func WithIdempotencyKey(key string) EnvelopeOption {
	return func(e *Envelope) { e.IdempotencyKey = key }
}

// WithSchemaVersion stamps the envelope at a non-baseline schema version.
// Only meaningful for producers that have themselves been upgraded to emit
// a newer payload shape directly.
func WithSchemaVersion(v int) EnvelopeOption {
	return func(e *Envelope) { e.SchemaVersion = v }
}

func newEnvelope(eventType EventType, payload Payload, defaultIdempotencyKey string, opts ...EnvelopeOption) Envelope {
	e := Envelope{
		EventID:        uuid.NewString(),
		IdempotencyKey: defaultIdempotencyKey,
		EventType:      eventType,
		SchemaVersion:  1,
		Timestamp:      time.Now().UTC(),
		Payload:        payload,
	}
	for _, opt := range opts {
		opt(&e)
	}
	if len(e.IdempotencyKey) > maxIdempotencyKeyLen {
		e.IdempotencyKey = e.IdempotencyKey[:maxIdempotencyKeyLen]
	}
	return e
}

// MarshalJSON renders the envelope as a canonical JSON object with
// alphabetically sorted top-level keys, so that two processes producing the
// same event independently emit byte-identical records. Nested payloads are
// encoded following their own per-type field order.
func (e Envelope) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"event_id":        e.EventID,
		"idempotency_key": e.IdempotencyKey,
		"event_type":      e.EventType,
		"schema_version":  e.SchemaVersion,
		"timestamp":       e.Timestamp.UTC().Format(time.RFC3339Nano),
		"payload":         e.Payload,
	}
	if e.ActorID != nil {
		m["actor_id"] = *e.ActorID
	}
	if e.CorrelationID != nil {
		m["correlation_id"] = *e.CorrelationID
	}
	if e.CausationID != nil {
		m["causation_id"] = *e.CausationID
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererrors.ErrSerializationFailed, err)
	}
	return out, nil
}

type rawEnvelope struct {
	EventID        string          `json:"event_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	EventType      EventType       `json:"event_type"`
	SchemaVersion  int             `json:"schema_version"`
	Timestamp      time.Time       `json:"timestamp"`
	ActorID        *string         `json:"actor_id"`
	CorrelationID  *string         `json:"correlation_id"`
	CausationID    *string         `json:"causation_id"`
	Payload        json.RawMessage `json:"payload"`
}

// DecodeEnvelope parses one JSON-encoded envelope record, applying
// registry's upcasters so the returned Payload always reflects the
// registry's latest known schema for its event type regardless of which
// version the record was originally written at.
func DecodeEnvelope(data []byte, registry *SchemaRegistry) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ledgererrors.ErrCorruptionDetected, err)
	}
	if !raw.EventType.Valid() {
		return Envelope{}, fmt.Errorf("%w: unknown event type %q", ledgererrors.ErrCorruptionDetected, raw.EventType)
	}
	if raw.EventID == "" || raw.IdempotencyKey == "" || raw.Timestamp.IsZero() {
		return Envelope{}, fmt.Errorf("%w: missing required envelope field", ledgererrors.ErrCorruptionDetected)
	}

	payload, err := DecodePayload(raw.EventType, raw.SchemaVersion, raw.Payload, registry)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		EventID:        raw.EventID,
		IdempotencyKey: raw.IdempotencyKey,
		EventType:      raw.EventType,
		SchemaVersion:  registry.LatestVersion(raw.EventType),
		Timestamp:      raw.Timestamp,
		ActorID:        raw.ActorID,
		CorrelationID:  raw.CorrelationID,
		CausationID:    raw.CausationID,
		Payload:        payload,
	}, nil
}

func creditIdempotencyKey(eventType EventType, entityID, reason string, missionID *string) string {
	m := ""
	if missionID != nil {
		m = *missionID
	}
	return fmt.Sprintf("%s:%s:%s:%s", strings.ToLower(string(eventType)), entityID, reason, m)
}

// NewCreditAllocated records a grant of credit to an entity's balance.
func NewCreditAllocated(entityID string, entityType EntityType, amount, balanceAfter float64, reason string, missionID *string, opts ...EnvelopeOption) Envelope {
	payload := CreditPayload{
		EventType: CreditAllocated, EntityID: entityID, EntityType: entityType,
		Amount: amount, BalanceAfter: balanceAfter, Reason: reason, MissionID: missionID,
	}
	key := creditIdempotencyKey(CreditAllocated, entityID, reason, missionID)
	return newEnvelope(CreditAllocated, payload, key, opts...)
}

// NewCreditConsumed records spend against an entity's balance.
func NewCreditConsumed(entityID string, entityType EntityType, amount, balanceAfter float64, reason string, missionID *string, opts ...EnvelopeOption) Envelope {
	payload := CreditPayload{
		EventType: CreditConsumed, EntityID: entityID, EntityType: entityType,
		Amount: amount, BalanceAfter: balanceAfter, Reason: reason, MissionID: missionID,
	}
	key := creditIdempotencyKey(CreditConsumed, entityID, reason, missionID)
	return newEnvelope(CreditConsumed, payload, key, opts...)
}

// NewCreditRefunded records a reversal of a prior consumption.
func NewCreditRefunded(entityID string, entityType EntityType, amount, balanceAfter float64, reason string, missionID *string, opts ...EnvelopeOption) Envelope {
	payload := CreditPayload{
		EventType: CreditRefunded, EntityID: entityID, EntityType: entityType,
		Amount: amount, BalanceAfter: balanceAfter, Reason: reason, MissionID: missionID,
	}
	key := creditIdempotencyKey(CreditRefunded, entityID, reason, missionID)
	return newEnvelope(CreditRefunded, payload, key, opts...)
}

// NewCreditWithdrawn records a deliberate debit that may take an entity's
// balance negative; it is the only ledger event permitted to do so.
func NewCreditWithdrawn(entityID string, entityType EntityType, amount, balanceAfter float64, reason string, missionID *string, opts ...EnvelopeOption) Envelope {
	payload := CreditPayload{
		EventType: CreditWithdrawn, EntityID: entityID, EntityType: entityType,
		Amount: amount, BalanceAfter: balanceAfter, Reason: reason, MissionID: missionID,
	}
	key := creditIdempotencyKey(CreditWithdrawn, entityID, reason, missionID)
	return newEnvelope(CreditWithdrawn, payload, key, opts...)
}

// NewCreditRegenerated records periodic or scheduled balance replenishment.
func NewCreditRegenerated(entityID string, entityType EntityType, amount, balanceAfter float64, reason string, missionID *string, opts ...EnvelopeOption) Envelope {
	payload := CreditPayload{
		EventType: CreditRegenerated, EntityID: entityID, EntityType: entityType,
		Amount: amount, BalanceAfter: balanceAfter, Reason: reason, MissionID: missionID,
	}
	key := creditIdempotencyKey(CreditRegenerated, entityID, reason, missionID)
	return newEnvelope(CreditRegenerated, payload, key, opts...)
}

// NewApprovalRequested opens an approval request awaiting a decision.
func NewApprovalRequested(requestID, actionType, requesterID, riskLevel string, context map[string]any, opts ...EnvelopeOption) Envelope {
	payload := ApprovalPayload{
		EventType: ApprovalRequested, RequestID: requestID, ActionType: actionType,
		RequesterID: requesterID, RiskLevel: riskLevel, Context: context,
	}
	key := fmt.Sprintf("approval_requested:%s", requestID)
	return newEnvelope(ApprovalRequested, payload, key, opts...)
}

// NewApprovalApproved resolves a pending request with approval.
func NewApprovalApproved(requestID, resolvedBy, justification string, opts ...EnvelopeOption) Envelope {
	payload := ApprovalPayload{
		EventType: ApprovalApproved, RequestID: requestID, ResolvedBy: resolvedBy, Justification: justification,
	}
	key := fmt.Sprintf("approval_approved:%s", requestID)
	return newEnvelope(ApprovalApproved, payload, key, opts...)
}

// NewApprovalRejected resolves a pending request with rejection.
func NewApprovalRejected(requestID, resolvedBy, justification string, opts ...EnvelopeOption) Envelope {
	payload := ApprovalPayload{
		EventType: ApprovalRejected, RequestID: requestID, ResolvedBy: resolvedBy, Justification: justification,
	}
	key := fmt.Sprintf("approval_rejected:%s", requestID)
	return newEnvelope(ApprovalRejected, payload, key, opts...)
}

// NewApprovalExpired resolves a pending request that timed out unanswered.
func NewApprovalExpired(requestID string, opts ...EnvelopeOption) Envelope {
	payload := ApprovalPayload{EventType: ApprovalExpired, RequestID: requestID}
	key := fmt.Sprintf("approval_expired:%s", requestID)
	return newEnvelope(ApprovalExpired, payload, key, opts...)
}

// NewCollaborationRecorded records how a mission's reward was split across
// the agents that contributed to it.
func NewCollaborationRecorded(collaborationID, missionID string, agentIDs []string, contributionScores map[string]float64, opts ...EnvelopeOption) Envelope {
	payload := CollaborationPayload{
		CollaborationID: collaborationID, MissionID: missionID,
		AgentIDs: agentIDs, ContributionScores: contributionScores,
	}
	key := fmt.Sprintf("collaboration_recorded:%s", collaborationID)
	return newEnvelope(CollaborationRecorded, payload, key, opts...)
}

// NewReuseDetected records an agent reusing another agent's work product.
func NewReuseDetected(resourceID, reusedBy, originalOwner string, savingsEstimate float64, opts ...EnvelopeOption) Envelope {
	payload := ReuseDetectedPayload{
		ResourceID: resourceID, ReusedBy: reusedBy, OriginalOwner: originalOwner, SavingsEstimate: savingsEstimate,
	}
	key := fmt.Sprintf("reuse_detected:%s:%s", resourceID, reusedBy)
	return newEnvelope(ReuseDetected, payload, key, opts...)
}

// NewEOCRegulated records an edge-of-chaos regulation pass adjusting an
// entity's operating regime.
func NewEOCRegulated(entityID string, score float64, regime string, opts ...EnvelopeOption) Envelope {
	payload := EOCPayload{EntityID: entityID, Score: score, Regime: regime}
	key := fmt.Sprintf("eoc_regulated:%s:%s", entityID, regime)
	return newEnvelope(EOCRegulated, payload, key, opts...)
}

// NewMissionRated records a requester's quality rating of a completed
// mission.
func NewMissionRated(missionID, ratedBy string, score float64, comments string, opts ...EnvelopeOption) Envelope {
	payload := MissionRatedPayload{MissionID: missionID, RatedBy: ratedBy, Score: score, Comments: comments}
	key := fmt.Sprintf("mission_rated:%s:%s", missionID, ratedBy)
	return newEnvelope(MissionRated, payload, key, opts...)
}
