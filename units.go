package main

import "math"

// Conversion factors from the simulator's metric signal bases to the
// units used by the phase rules and the wire payload.
const (
	metersToFeet     = 3.28084
	mpsToKnots       = 1.94384
	mpsToFpm         = 196.85
	metersPerNautMi  = 1852.0
	secondsPerMinute = 60.0
	kgPerPound       = 0.45359237
)

func feetFromMeters(m float64) float64 { return m * metersToFeet }

func knotsFromMPS(mps float64) float64 { return mps * mpsToKnots }

func fpmFromMPS(mps float64) float64 { return mps * mpsToFpm }

func nauticalMilesFromMeters(m float64) float64 { return m / metersPerNautMi }

func minutesFromSeconds(s float64) float64 { return s / secondsPerMinute }

// ceilNonNegative rounds up and clamps at zero. Altitudes and distances
// use it so the wire never carries a negative or below-ground figure.
func ceilNonNegative(v float64) int {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int(math.Ceil(v))
}

// truncToward0 drops the fractional part, keeping the sign. Speeds,
// heading, fuel, and elapsed time use it.
func truncToward0(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Trunc(v))
}
