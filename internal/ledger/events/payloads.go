package events

// Payload is implemented by every per-event-type payload struct. It carries
// no behavior beyond identifying which event type it belongs to; the
// envelope constructors and decoder do not consult it, so it only limits
// which types can be stored in Envelope.Payload.
type Payload interface {
	payloadType() EventType
}

// CreditPayload is the shared shape for every member of the ledger family
// (CREDIT_ALLOCATED/CONSUMED/REFUNDED/WITHDRAWN/REGENERATED). Amount is
// always non-negative; the event type conveys direction. BalanceAfter is the
// entity's running balance immediately following this event, as computed by
// the producer; the projections store it as reported and never compare it
// with their own balances (the replay integrity check reconciles the
// balance projection against summed signed amounts instead).
//
// Metadata was added in schema version 2 (see schema.go) and is populated by
// the v1->v2 upcaster for events recorded before the field existed.
type CreditPayload struct {
	EventType    EventType      `json:"-"`
	EntityID     string         `json:"entity_id"`
	EntityType   EntityType     `json:"entity_type"`
	Amount       float64        `json:"amount"`
	BalanceAfter float64        `json:"balance_after"`
	Reason       string         `json:"reason"`
	MissionID    *string        `json:"mission_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (p CreditPayload) payloadType() EventType { return p.EventType }

// ApprovalPayload is the shared shape for the approval family. ResolvedBy
// and Justification are empty on APPROVAL_REQUESTED and populated on the
// terminal transitions (APPROVED/REJECTED/EXPIRED).
type ApprovalPayload struct {
	EventType     EventType      `json:"-"`
	RequestID     string         `json:"request_id"`
	ActionType    string         `json:"action_type"`
	RequesterID   string         `json:"requester_id"`
	RiskLevel     string         `json:"risk_level"`
	ResolvedBy    string         `json:"resolved_by,omitempty"`
	Justification string         `json:"justification,omitempty"`
	Context       map[string]any `json:"action_context,omitempty"`
}

func (p ApprovalPayload) payloadType() EventType { return p.EventType }

// CollaborationPayload backs COLLABORATION_RECORDED: a mission's reward is
// split across the agents that contributed to it.
type CollaborationPayload struct {
	CollaborationID    string             `json:"collaboration_id"`
	AgentIDs           []string           `json:"agent_ids"`
	MissionID          string             `json:"mission_id"`
	ContributionScores map[string]float64 `json:"contribution_scores"`
}

func (p CollaborationPayload) payloadType() EventType { return CollaborationRecorded }

// ReuseDetectedPayload backs REUSE_DETECTED: an agent reused another agent's
// prior work product instead of redoing it from scratch.
type ReuseDetectedPayload struct {
	ResourceID      string  `json:"resource_id"`
	ReusedBy        string  `json:"reused_by"`
	OriginalOwner   string  `json:"original_owner"`
	SavingsEstimate float64 `json:"savings_estimate"`
}

func (p ReuseDetectedPayload) payloadType() EventType { return ReuseDetected }

// EOCPayload backs EOC_REGULATED: an edge-of-chaos regulation pass adjusted
// an entity's operating regime.
type EOCPayload struct {
	EntityID string  `json:"entity_id"`
	Score    float64 `json:"score"`
	Regime   string  `json:"regime"`
}

func (p EOCPayload) payloadType() EventType { return EOCRegulated }

// MissionRatedPayload backs MISSION_RATED: a completed mission received a
// quality rating from its requester.
type MissionRatedPayload struct {
	MissionID string  `json:"mission_id"`
	RatedBy   string  `json:"rated_by"`
	Score     float64 `json:"score"`
	Comments  string  `json:"comments,omitempty"`
}

func (p MissionRatedPayload) payloadType() EventType { return MissionRated }
