package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertPayload struct {
	EntityID string  `json:"entity_id"`
	ZScore   float64 `json:"z_score"`
}

func TestParsePayloadTypedValue(t *testing.T) {
	in := alertPayload{EntityID: "BTC", ZScore: 2.4}

	got, err := ParsePayload[alertPayload](in)
	require.NoError(t, err)
	assert.Equal(t, in, *got)

	got, err = ParsePayload[alertPayload](&in)
	require.NoError(t, err)
	assert.Same(t, &in, got)
}

func TestParsePayloadRawJSON(t *testing.T) {
	raw := json.RawMessage(`{"entity_id":"ETH","z_score":-3.1}`)

	got, err := ParsePayload[alertPayload](raw)
	require.NoError(t, err)
	assert.Equal(t, "ETH", got.EntityID)
	assert.Equal(t, -3.1, got.ZScore)
}

func TestParsePayloadMap(t *testing.T) {
	m := map[string]interface{}{"entity_id": "SOL", "z_score": 2.0}

	got, err := ParsePayload[alertPayload](m)
	require.NoError(t, err)
	assert.Equal(t, "SOL", got.EntityID)
}

func TestParsePayloadUnsupportedType(t *testing.T) {
	_, err := ParsePayload[alertPayload](42)
	assert.Error(t, err)
}
