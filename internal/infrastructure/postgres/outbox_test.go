package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadLetterPayload(t *testing.T) {
	lastErr := "broker unavailable"
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	e := &OutboxEntry{
		ID:          7,
		AggregateID: "0b0e7c4c-2f39-4bde-9a53-3f1f8f0c2a11",
		EventType:   "MedicationAdded",
		Payload:     json.RawMessage(`{"medicine_name":"Paracetamol"}`),
		KafkaTopic:  "prescription.events",
		CreatedAt:   created,
		RetryCount:  5,
		LastError:   &lastErr,
	}

	b, err := deadLetterPayload(e)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "prescription.events", got["original_topic"])
	assert.Equal(t, "MedicationAdded", got["event_type"])
	assert.Equal(t, "broker unavailable", got["last_error"])
	assert.Equal(t, float64(5), got["retry_count"])
	assert.Equal(t, map[string]any{"medicine_name": "Paracetamol"}, got["payload"])
}

func TestPublisherFunc(t *testing.T) {
	var gotTopic string
	p := PublisherFunc(func(_ context.Context, topic, _ string, _ []byte) error {
		gotTopic = topic
		return nil
	})
	require.NoError(t, p.Publish(context.Background(), "dead.letter", "k", nil))
	assert.Equal(t, "dead.letter", gotTopic)
}

func TestSchemaDefinesTables(t *testing.T) {
	for _, table := range []string{"prescription_events", "outbox", "inbox"} {
		assert.True(t, strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" "), table)
	}
}
