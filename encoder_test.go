package main

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() TelemetryPayload {
	sig := snapAirborne(35000, 450, 0)
	sig.Distance = 350_000
	sig.FlightTime = 3600
	return BuildPayload(sig, PhaseEnroute, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
}

func samplePayloadWithEvents() TelemetryPayload {
	p := samplePayload()
	p.Events = []PayloadEvent{
		{Log: "Flight phase changed to enroute", SimTime: "2025-06-15T11:58:30Z"},
		{Log: "Simulator resumed, phase enroute", SimTime: "2025-06-15T11:59:10Z"},
	}
	return p
}

func TestNewPayloadEncoder(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
		wantErr  bool
	}{
		{"", "json", false},
		{"json", "json", false},
		{"minimal", "minimal", false},
		{"msgpack", "msgpack", false},
		{"protobuf", "", true},
	}

	for _, tt := range tests {
		t.Run("config value "+tt.name, func(t *testing.T) {
			enc, err := NewPayloadEncoder(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown encoder")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, enc.Name())
		})
	}
}

// TestEncodersRoundTrip verifies every strategy decodes its own output
// back to the original payload, with and without events.
func TestEncodersRoundTrip(t *testing.T) {
	for _, name := range []string{"json", "minimal", "msgpack"} {
		enc, err := NewPayloadEncoder(name)
		require.NoError(t, err)

		t.Run(name+" without events", func(t *testing.T) {
			p := samplePayload()
			data, err := enc.Encode(p)
			require.NoError(t, err)

			got, err := enc.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})

		t.Run(name+" with events", func(t *testing.T) {
			p := samplePayloadWithEvents()
			data, err := enc.Encode(p)
			require.NoError(t, err)

			got, err := enc.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}
}

// TestMinimalEncoderMatchesStdlib verifies the minimal strategy emits
// the same document the default strategy does, so the two are
// interchangeable on the wire.
func TestMinimalEncoderMatchesStdlib(t *testing.T) {
	for _, p := range []TelemetryPayload{samplePayload(), samplePayloadWithEvents()} {
		minimal, err := minimalEncoder{}.Encode(p)
		require.NoError(t, err)

		stdlib, err := json.Marshal(p)
		require.NoError(t, err)

		assert.JSONEq(t, string(stdlib), string(minimal))
	}
}

// TestMinimalEncoderDeterministic verifies identical payloads produce
// identical bytes, which duplicate suppression downstream relies on.
func TestMinimalEncoderDeterministic(t *testing.T) {
	p := samplePayloadWithEvents()

	a, err := minimalEncoder{}.Encode(p)
	require.NoError(t, err)
	b, err := minimalEncoder{}.Encode(p)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

// TestMinimalEncoderEscaping verifies string escaping survives a round
// trip: quotes, backslashes, newlines, and raw control bytes.
func TestMinimalEncoderEscaping(t *testing.T) {
	p := samplePayload()
	p.Events = []PayloadEvent{
		{Log: "say \"again\"\nline2\ttabbed \\ done \x01", SimTime: "2025-06-15T12:00:00Z"},
	}

	data, err := minimalEncoder{}.Encode(p)
	require.NoError(t, err)

	assert.Contains(t, string(data), `\"again\"`)
	assert.Contains(t, string(data), `\n`)
	assert.Contains(t, string(data), `\t`)
	assert.Contains(t, string(data), `\u0001`)

	var got TelemetryPayload
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, p.Events[0].Log, got.Events[0].Log)
}

// TestAppendJSONValueErrors verifies the minimal writer refuses values
// JSON cannot carry instead of emitting something lossy.
func TestAppendJSONValueErrors(t *testing.T) {
	t.Run("NaN", func(t *testing.T) {
		_, err := appendJSONValue(nil, jsonObject{{"v", math.NaN()}})
		require.Error(t, err)
	})

	t.Run("infinity", func(t *testing.T) {
		_, err := appendJSONValue(nil, jsonObject{{"v", math.Inf(1)}})
		require.Error(t, err)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := appendJSONValue(nil, jsonObject{{"v", struct{}{}}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot encode value of type")
	})
}
