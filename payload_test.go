package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestBuildPayloadRounding pins the direction of every rounded field:
// altitudes and distance go up and clamp at zero, speeds and the rest
// truncate toward zero, vertical speed keeps its sign.
func TestBuildPayloadRounding(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	sig := SignalSnapshot{
		OnGround:      false,
		Latitude:      51.4775004,
		Longitude:     -0.4614496,
		Elevation:     83.2,  // 272.97 ft
		AltitudeAGL:   -0.5,  // sim jitter below the surface
		GroundSpeed:   77.2,  // 150.06 kt
		Airspeed:      70.0,  // 136.07 kt
		VerticalSpeed: -3.5,  // -688.98 fpm
		Heading:       269.9,
		Distance:      100_000, // 53.99 nm
		FuelTotal:     5000.9,
		FlightTime:    125, // 2.08 min
	}

	p := BuildPayload(sig, PhaseEnroute, now)

	assert.Equal(t, "ENR", p.Status)
	assert.Equal(t, 51.4775, p.Position.Lat)
	assert.Equal(t, -0.46145, p.Position.Lon)
	assert.Equal(t, 273, p.Position.AltitudeMSL, "altitude rounds up")
	assert.Equal(t, 0, p.Position.AltitudeAGL, "below-ground AGL clamps to zero")
	assert.Equal(t, 150, p.Position.GS, "ground speed truncates")
	assert.Equal(t, 136, p.Position.IAS, "airspeed truncates")
	assert.Equal(t, -688, p.Position.VS, "vertical speed truncates toward zero, keeping its sign")
	assert.Equal(t, 269, p.Position.Heading)
	assert.Equal(t, 54, p.Position.Distance, "distance rounds up")
	assert.Equal(t, "2025-06-15T12:00:00Z", p.Position.SimTime)
	assert.Equal(t, 5000, p.Fuel)
	assert.Equal(t, 2, p.FlightTime)
	assert.Nil(t, p.Events)
}

// TestBuildPayloadDeterministic verifies the builder is a pure function
// of its inputs.
func TestBuildPayloadDeterministic(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	sig := snapAirborne(35000, 450, 0)

	a := BuildPayload(sig, PhaseEnroute, now)
	b := BuildPayload(sig, PhaseEnroute, now)

	assert.Equal(t, a, b)
}

// TestBuildPayloadZeroSnapshot verifies a zero snapshot produces a valid
// payload rather than garbage: status present, timestamp present, all
// numerics zero.
func TestBuildPayloadZeroSnapshot(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	p := BuildPayload(SignalSnapshot{}, PhaseBoarding, now)

	assert.Equal(t, "BST", p.Status)
	assert.Equal(t, "2025-06-15T12:00:00Z", p.Position.SimTime)
	assert.Zero(t, p.Position.AltitudeMSL)
	assert.Zero(t, p.Position.GS)
	assert.Zero(t, p.Fuel)
	assert.Zero(t, p.FlightTime)
}

func TestFormatWireTime(t *testing.T) {
	t.Run("UTC passes through", func(t *testing.T) {
		ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		assert.Equal(t, "2025-01-02T03:04:05Z", formatWireTime(ts))
	})

	t.Run("other zones convert to UTC", func(t *testing.T) {
		loc := time.FixedZone("CEST", 2*3600)
		ts := time.Date(2025, 6, 15, 14, 0, 0, 0, loc)
		assert.Equal(t, "2025-06-15T12:00:00Z", formatWireTime(ts))
	})

	t.Run("sub-second precision is dropped", func(t *testing.T) {
		ts := time.Date(2025, 6, 15, 12, 0, 0, 999_000_000, time.UTC)
		assert.Equal(t, "2025-06-15T12:00:00Z", formatWireTime(ts))
	})
}

func TestRoundCoord(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{51.4775004, 51.4775},
		{-0.4614496, -0.46145},
		{0, 0},
		{-89.9999996, -90},
		{179.1234567, 179.123457},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, roundCoord(tt.in), 1e-9, "roundCoord(%v)", tt.in)
	}
}
