package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID      string            `cbor:"id"`
	Created time.Time         `cbor:"created"`
	Tags    []string          `cbor:"tags,omitempty"`
	Extra   map[string]string `cbor:"extra,omitempty"`
}

func TestDeterministicEncoding(t *testing.T) {
	r := record{ID: "a", Extra: map[string]string{"z": "1", "a": "2", "m": "3"}}

	first, err := Marshal(r)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(r)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTimePrecisionSurvivesRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)
	data, err := Marshal(record{ID: "b", Created: created})
	require.NoError(t, err)

	var decoded record
	require.NoError(t, Unmarshal(data, &decoded))
	assert.True(t, created.Equal(decoded.Created))
}

func TestAnyMapsDecodeWithStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"k": "v"}})
	require.NoError(t, err)

	var decoded any
	require.NoError(t, Unmarshal(data, &decoded))
	m, ok := decoded.(map[string]any)
	require.True(t, ok)
	_, ok = m["nested"].(map[string]any)
	assert.True(t, ok)
}

func TestStreamEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(record{ID: "1"}))
	require.NoError(t, enc.Encode(record{ID: "2"}))

	dec := NewDecoder(&buf)
	var a, b record
	require.NoError(t, dec.Decode(&a))
	require.NoError(t, dec.Decode(&b))
	assert.Equal(t, "1", a.ID)
	assert.Equal(t, "2", b.ID)
}
