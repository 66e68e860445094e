package main

import (
	"math"
	"time"
)

// TelemetryPayload is the datagram body the ground bridge consumes. Field
// names and nesting are fixed by the receiving side; Events is optional
// and ignored by receivers that predate it.
type TelemetryPayload struct {
	Status     string          `json:"status" msgpack:"status"`
	Position   PayloadPosition `json:"position" msgpack:"position"`
	Fuel       int             `json:"fuel" msgpack:"fuel"`
	FlightTime int             `json:"flight_time" msgpack:"flight_time"`
	Events     []PayloadEvent  `json:"events,omitempty" msgpack:"events,omitempty"`
}

type PayloadPosition struct {
	Lat         float64 `json:"lat" msgpack:"lat"`
	Lon         float64 `json:"lon" msgpack:"lon"`
	AltitudeMSL int     `json:"altitude_msl" msgpack:"altitude_msl"`
	AltitudeAGL int     `json:"altitude_agl" msgpack:"altitude_agl"`
	GS          int     `json:"gs" msgpack:"gs"`
	IAS         int     `json:"ias" msgpack:"ias"`
	VS          int     `json:"vs" msgpack:"vs"`
	Heading     int     `json:"heading" msgpack:"heading"`
	Distance    int     `json:"distance" msgpack:"distance"`
	SimTime     string  `json:"sim_time" msgpack:"sim_time"`
}

// PayloadEvent is a free-text log line pinned to a sim timestamp.
type PayloadEvent struct {
	Log     string `json:"log" msgpack:"log"`
	SimTime string `json:"sim_time" msgpack:"sim_time"`
}

// wireTimeLayout is ISO-8601 UTC with a literal Z, independent of locale.
const wireTimeLayout = "2006-01-02T15:04:05Z"

func formatWireTime(t time.Time) string {
	return t.UTC().Format(wireTimeLayout)
}

// BuildPayload assembles the wire payload from one snapshot. Pure: the
// same snapshot, phase, and timestamp always produce the same payload.
//
// Rounding is direction-aware. Altitudes and distance go up and never
// below zero, so the wire never carries a below-ground altitude or a
// negative distance. Speeds, heading, fuel, and flight time truncate
// toward zero; vertical speed keeps its sign.
func BuildPayload(sig SignalSnapshot, phase FlightPhase, now time.Time) TelemetryPayload {
	return TelemetryPayload{
		Status: phase.Code(),
		Position: PayloadPosition{
			Lat:         roundCoord(sig.Latitude),
			Lon:         roundCoord(sig.Longitude),
			AltitudeMSL: ceilNonNegative(sig.AltitudeMSLFeet()),
			AltitudeAGL: ceilNonNegative(sig.AltitudeAGLFeet()),
			GS:          truncToward0(sig.GroundSpeedKnots()),
			IAS:         truncToward0(sig.AirspeedKnots()),
			VS:          truncToward0(sig.VerticalSpeedFpm()),
			Heading:     truncToward0(sig.Heading),
			Distance:    ceilNonNegative(sig.DistanceNM()),
			SimTime:     formatWireTime(now),
		},
		Fuel:       truncToward0(sig.FuelTotal),
		FlightTime: truncToward0(sig.FlightTimeMinutes()),
	}
}

// roundCoord trims coordinates to six decimal places (about 11 cm),
// matching what the ground side stores.
func roundCoord(deg float64) float64 {
	return math.Round(deg*1e6) / 1e6
}
