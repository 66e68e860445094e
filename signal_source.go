package main

import (
	"math"
	"time"
)

// SignalSnapshot holds one tick's worth of simulator readouts in the raw
// metric units the simulators deliver. Speeds are m/s, lengths are meters,
// flight time is seconds, fuel is kilograms with all tanks summed.
type SignalSnapshot struct {
	OnGround      bool    `json:"onGround"`
	EngineRunning bool    `json:"engineRunning"`
	Paused        bool    `json:"paused"`
	GroundSpeed   float64 `json:"groundSpeed"`
	Airspeed      float64 `json:"airspeed"`
	VerticalSpeed float64 `json:"verticalSpeed"`
	RadioAltitude float64 `json:"radioAltitude"`
	AltitudeAGL   float64 `json:"altitudeAgl"`
	Elevation     float64 `json:"elevation"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Heading       float64 `json:"heading"`
	FlightTime    float64 `json:"flightTime"`
	Distance      float64 `json:"distance"`
	FuelTotal     float64 `json:"fuelTotal"`
}

// Converted accessors used by the phase rules and the payload builder.

func (s SignalSnapshot) GroundSpeedKnots() float64 { return knotsFromMPS(s.GroundSpeed) }

func (s SignalSnapshot) AirspeedKnots() float64 { return knotsFromMPS(s.Airspeed) }

func (s SignalSnapshot) VerticalSpeedFpm() float64 { return fpmFromMPS(s.VerticalSpeed) }

func (s SignalSnapshot) AltitudeAGLFeet() float64 { return feetFromMeters(s.AltitudeAGL) }

func (s SignalSnapshot) AltitudeMSLFeet() float64 { return feetFromMeters(s.Elevation) }

func (s SignalSnapshot) DistanceNM() float64 { return nauticalMilesFromMeters(s.Distance) }

func (s SignalSnapshot) FlightTimeMinutes() float64 { return minutesFromSeconds(s.FlightTime) }

// sanitized replaces NaN and infinite values with zero so a flaky signal
// can never leak past the source boundary as anything but its default.
func (s SignalSnapshot) sanitized() SignalSnapshot {
	clean := func(v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	}
	s.GroundSpeed = clean(s.GroundSpeed)
	s.Airspeed = clean(s.Airspeed)
	s.VerticalSpeed = clean(s.VerticalSpeed)
	s.RadioAltitude = clean(s.RadioAltitude)
	s.AltitudeAGL = clean(s.AltitudeAGL)
	s.Elevation = clean(s.Elevation)
	s.Latitude = clean(s.Latitude)
	s.Longitude = clean(s.Longitude)
	s.Heading = clean(s.Heading)
	s.FlightTime = clean(s.FlightTime)
	s.Distance = clean(s.Distance)
	s.FuelTotal = clean(s.FuelTotal)
	return s
}

// SignalSource abstracts simulator connections (SimConnect, X-Plane UDP,
// X-Plane 12 Web API). Snapshot never blocks and never fails: it returns
// the last-known values, or zero values when nothing has been received.
type SignalSource interface {
	Connect() error
	Disconnect() error
	Snapshot() SignalSnapshot
	Name() string
}

// staleAfter is how long a source may go without fresh data before the
// bridge logs it as stale.
const staleAfter = 10 * time.Second
