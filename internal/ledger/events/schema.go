package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/satoshiflow/ledgercore/internal/ledger/ledgererrors"
)

// RawPayload is the generic, untyped representation an upcaster operates on.
// Upcasters never see or produce the strongly typed Payload structs; they
// transform the wire shape, which keeps them pure, serializable functions of
// one JSON object to another.
type RawPayload = map[string]any

// Upcaster maps a payload recorded at version N to its shape at version
// N+1. It must be pure and total: same input always produces the same
// output, and it must not fail. Upcasters never touch bytes already on
// disk; the transform happens in memory when a record is read back.
type Upcaster func(RawPayload) RawPayload

type schemaVersion struct {
	version     int
	description string
	upcaster    Upcaster // nil only for version 1
}

// SchemaRegistry tracks, per event type, the sequence of schema versions
// and the upcaster that advances each version to the next. Versions for a
// given event type must be registered contiguously starting at 1; gaps are
// rejected at registration time rather than discovered during replay.
type SchemaRegistry struct {
	mu       sync.RWMutex
	versions map[EventType][]schemaVersion
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{versions: make(map[EventType][]schemaVersion)}
}

// Register adds a schema version for eventType. Version 1 must not carry an
// upcaster (there is nothing before it to upcast from); every later version
// must, and versions must be registered in order with no gaps.
func (r *SchemaRegistry) Register(eventType EventType, version int, description string, upcaster Upcaster) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.versions[eventType]
	wantNext := 1
	if len(existing) > 0 {
		wantNext = existing[len(existing)-1].version + 1
	}
	if version != wantNext {
		return fmt.Errorf("%w: %s expected version %d, got %d", ledgererrors.ErrSchemaVersionGap, eventType, wantNext, version)
	}
	if version == 1 && upcaster != nil {
		return fmt.Errorf("%w: %s version 1 must not declare an upcaster", ledgererrors.ErrSchemaVersionGap, eventType)
	}
	if version > 1 && upcaster == nil {
		return fmt.Errorf("%w: %s version %d must declare an upcaster from version %d", ledgererrors.ErrSchemaVersionGap, eventType, version, version-1)
	}

	r.versions[eventType] = append(existing, schemaVersion{version: version, description: description, upcaster: upcaster})
	return nil
}

// LatestVersion returns the highest registered version for eventType, or 1
// if the event type has never had a version explicitly registered (every
// event type starts life at the implicit baseline of version 1).
func (r *SchemaRegistry) LatestVersion(eventType EventType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.versions[eventType]
	if len(versions) == 0 {
		return 1
	}
	return versions[len(versions)-1].version
}

// Upcast applies every upcaster registered for eventType between fromVersion
// (exclusive) and the latest registered version (inclusive), in order, and
// returns the resulting payload along with the version it now represents.
func (r *SchemaRegistry) Upcast(eventType EventType, fromVersion int, payload RawPayload) (RawPayload, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current := payload
	currentVersion := fromVersion
	for _, sv := range r.versions[eventType] {
		if sv.version <= currentVersion {
			continue
		}
		if sv.upcaster == nil {
			return nil, currentVersion, fmt.Errorf("%w: %s missing upcaster for version %d", ledgererrors.ErrSchemaVersionGap, eventType, sv.version)
		}
		current = sv.upcaster(current)
		currentVersion = sv.version
	}
	return current, currentVersion, nil
}

// DefaultRegistry returns a registry seeded with the baseline version 1
// schema for every known event type, plus the CREDIT_ALLOCATED version 2
// upcaster that backfills a deterministic metadata field on records written
// before the field existed.
func DefaultRegistry() *SchemaRegistry {
	reg := NewSchemaRegistry()
	for _, t := range KnownEventTypes {
		_ = reg.Register(t, 1, "baseline schema", nil)
	}
	_ = registerCreditAllocatedV2(reg)
	return reg
}

func registerCreditAllocatedV2(reg *SchemaRegistry) error {
	return registerUpcast(reg, CreditAllocated, 2, "adds a metadata object carrying a deterministic backfill marker", func(p RawPayload) RawPayload {
		out := make(RawPayload, len(p)+1)
		for k, v := range p {
			out[k] = v
		}
		if _, ok := out["metadata"]; !ok {
			out["metadata"] = map[string]any{"backfilled": true}
		}
		return out
	})
}

// registerUpcast adds the requested version on top of the version 1
// baseline DefaultRegistry already seeded. It is a no-op when eventType
// already has that many versions registered, since SchemaRegistry.Register
// rejects re-registering an existing version.
func registerUpcast(reg *SchemaRegistry, eventType EventType, version int, description string, upcaster Upcaster) error {
	reg.mu.Lock()
	existing := reg.versions[eventType]
	reg.mu.Unlock()
	if len(existing) >= version {
		return nil
	}
	return reg.Register(eventType, version, description, upcaster)
}

// DecodePayload unmarshals raw into a generic map, upcasts it to the
// registry's latest known version for eventType, and hydrates the result
// into the strongly typed Payload for that event type.
func DecodePayload(eventType EventType, schemaVersion int, raw json.RawMessage, registry *SchemaRegistry) (Payload, error) {
	var generic RawPayload
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: payload decode: %v", ledgererrors.ErrCorruptionDetected, err)
	}

	upcasted, _, err := registry.Upcast(eventType, schemaVersion, generic)
	if err != nil {
		return nil, err
	}

	hydrateBytes, err := json.Marshal(upcasted)
	if err != nil {
		return nil, fmt.Errorf("%w: payload re-encode: %v", ledgererrors.ErrSerializationFailed, err)
	}

	switch {
	case eventType.LedgerFamily():
		var p CreditPayload
		if err := json.Unmarshal(hydrateBytes, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ledgererrors.ErrCorruptionDetected, err)
		}
		p.EventType = eventType
		return p, nil
	case eventType.ApprovalFamily():
		var p ApprovalPayload
		if err := json.Unmarshal(hydrateBytes, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ledgererrors.ErrCorruptionDetected, err)
		}
		p.EventType = eventType
		return p, nil
	case eventType == CollaborationRecorded:
		var p CollaborationPayload
		err := json.Unmarshal(hydrateBytes, &p)
		return p, wrapCorruption(err)
	case eventType == ReuseDetected:
		var p ReuseDetectedPayload
		err := json.Unmarshal(hydrateBytes, &p)
		return p, wrapCorruption(err)
	case eventType == EOCRegulated:
		var p EOCPayload
		err := json.Unmarshal(hydrateBytes, &p)
		return p, wrapCorruption(err)
	case eventType == MissionRated:
		var p MissionRatedPayload
		err := json.Unmarshal(hydrateBytes, &p)
		return p, wrapCorruption(err)
	default:
		return nil, fmt.Errorf("%w: unhandled event type %q", ledgererrors.ErrCorruptionDetected, eventType)
	}
}

func wrapCorruption(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ledgererrors.ErrCorruptionDetected, err)
}
