// Package events defines the closed catalogue of credit-ledger event types,
// their payload shapes, the envelope that wraps them for transport through
// the journal and bus, and the schema registry that upcasts older payload
// versions to the current shape at read time.
package events

// EventType identifies one member of the closed event-type catalogue. New
// event types are added by extending this file, never by accepting an
// arbitrary string from a caller.
type EventType string

const (
	CreditAllocated   EventType = "CREDIT_ALLOCATED"
	CreditConsumed    EventType = "CREDIT_CONSUMED"
	CreditRefunded    EventType = "CREDIT_REFUNDED"
	CreditWithdrawn   EventType = "CREDIT_WITHDRAWN"
	CreditRegenerated EventType = "CREDIT_REGENERATED"

	ApprovalRequested EventType = "APPROVAL_REQUESTED"
	ApprovalApproved  EventType = "APPROVAL_APPROVED"
	ApprovalRejected  EventType = "APPROVAL_REJECTED"
	ApprovalExpired   EventType = "APPROVAL_EXPIRED"

	CollaborationRecorded EventType = "COLLABORATION_RECORDED"
	ReuseDetected         EventType = "REUSE_DETECTED"

	EOCRegulated EventType = "EOC_REGULATED"
	MissionRated EventType = "MISSION_RATED"
)

// KnownEventTypes lists every member of the closed catalogue, in the order
// they were introduced. DefaultRegistry seeds a version 1 schema for each
// entry, and Valid checks membership against it.
var KnownEventTypes = []EventType{
	CreditAllocated, CreditConsumed, CreditRefunded, CreditWithdrawn, CreditRegenerated,
	ApprovalRequested, ApprovalApproved, ApprovalRejected, ApprovalExpired,
	CollaborationRecorded, ReuseDetected,
	EOCRegulated, MissionRated,
}

func (t EventType) Valid() bool {
	for _, k := range KnownEventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// LedgerFamily reports whether the event type carries a CreditPayload and
// participates in the balance/ledger projections.
func (t EventType) LedgerFamily() bool {
	switch t {
	case CreditAllocated, CreditConsumed, CreditRefunded, CreditWithdrawn, CreditRegenerated:
		return true
	default:
		return false
	}
}

// ApprovalFamily reports whether the event type carries an ApprovalPayload.
func (t EventType) ApprovalFamily() bool {
	switch t {
	case ApprovalRequested, ApprovalApproved, ApprovalRejected, ApprovalExpired:
		return true
	default:
		return false
	}
}

// EntityType names the kind of ledger participant a credit event applies to.
type EntityType string

const (
	EntityAgent   EntityType = "agent"
	EntityMission EntityType = "mission"
)

// ApprovalStatus is the terminal or pending state of an approval request, as
// tracked by the approval projection.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)
