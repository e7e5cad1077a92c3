package events

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreditAllocatedStampsDefaults(t *testing.T) {
	env := NewCreditAllocated("agent-1", EntityAgent, 50, 50, "initial grant", nil)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, CreditAllocated, env.EventType)
	assert.Equal(t, 1, env.SchemaVersion)
	assert.False(t, env.Timestamp.IsZero())
	assert.Equal(t, "credit_allocated:agent-1:initial grant:", env.IdempotencyKey)
}

func TestEnvelopeOptionsOverrideDefaults(t *testing.T) {
	env := NewCreditConsumed("agent-1", EntityAgent, 5, 45, "task run", nil,
		WithActor("agent-1"),
		WithCorrelationID("corr-1"),
		WithCausationID("cause-1"),
		WithIdempotencyKey("explicit-key"),
	)

	require.NotNil(t, env.ActorID)
	assert.Equal(t, "agent-1", *env.ActorID)
	require.NotNil(t, env.CorrelationID)
	assert.Equal(t, "corr-1", *env.CorrelationID)
	require.NotNil(t, env.CausationID)
	assert.Equal(t, "cause-1", *env.CausationID)
	assert.Equal(t, "explicit-key", env.IdempotencyKey)
}

func TestEnvelopeRoundTripsThroughJSON(t *testing.T) {
	reg := DefaultRegistry()
	missionID := "mission-7"
	original := NewCreditConsumed("agent-1", EntityAgent, 5, 95, "task run", &missionID)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data, reg)
	require.NoError(t, err)

	assert.Equal(t, original.EventID, decoded.EventID)
	assert.Equal(t, original.IdempotencyKey, decoded.IdempotencyKey)
	assert.Equal(t, original.EventType, decoded.EventType)
	assert.WithinDuration(t, original.Timestamp, decoded.Timestamp, 0)

	credit, ok := decoded.Payload.(CreditPayload)
	require.True(t, ok)
	assert.Equal(t, "agent-1", credit.EntityID)
	assert.Equal(t, 5.0, credit.Amount)
	require.NotNil(t, credit.MissionID)
	assert.Equal(t, missionID, *credit.MissionID)
}

func TestEnvelopeMarshalProducesSortedTopLevelKeys(t *testing.T) {
	env := NewCreditAllocated("agent-1", EntityAgent, 1, 1, "r", nil)
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var ordered map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &ordered))

	prev := -1
	for _, key := range []string{`"event_id"`, `"event_type"`, `"idempotency_key"`, `"payload"`, `"schema_version"`, `"timestamp"`} {
		idx := bytes.Index(data, []byte(key))
		require.Greater(t, idx, prev, "top-level key %s out of order", key)
		prev = idx
	}

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "event_id")
	assert.Contains(t, m, "payload")
	assert.Contains(t, m, "schema_version")
}

func TestDecodeEnvelopeRejectsUnknownEventType(t *testing.T) {
	reg := DefaultRegistry()
	bogus := []byte(`{"event_id":"e1","idempotency_key":"k1","event_type":"NOT_A_REAL_TYPE","schema_version":1,"timestamp":"2026-01-01T00:00:00Z","payload":{}}`)

	_, err := DecodeEnvelope(bogus, reg)
	assert.Error(t, err)
}

func TestIdempotencyKeyTruncatedToMaxLength(t *testing.T) {
	longReason := ""
	for i := 0; i < 300; i++ {
		longReason += "x"
	}
	env := NewCreditAllocated("agent-1", EntityAgent, 1, 1, longReason, nil)
	assert.LessOrEqual(t, len(env.IdempotencyKey), maxIdempotencyKeyLen)
}

func TestApprovalLifecycleIdempotencyKeysDistinctPerRequest(t *testing.T) {
	requested := NewApprovalRequested("req-1", "withdraw", "agent-1", "high", nil)
	approved := NewApprovalApproved("req-1", "admin-1", "looks fine")

	assert.NotEqual(t, requested.IdempotencyKey, approved.IdempotencyKey)
	assert.Equal(t, ApprovalRequested, requested.EventType)
	assert.Equal(t, ApprovalApproved, approved.EventType)
}
