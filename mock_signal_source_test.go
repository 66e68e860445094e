package main

import (
	"sync"
	"time"
)

// MockSignalSource implements SignalSource for use in tests. Set swaps
// the snapshot the next Snapshot call returns; connect errors and call
// counters support reconnection scenarios.
type MockSignalSource struct {
	mu              sync.Mutex
	sig             SignalSnapshot
	connectErr      error
	name            string
	lastReceived    time.Time
	connectCalls    int
	disconnectCalls int
}

func (m *MockSignalSource) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	return m.connectErr
}

func (m *MockSignalSource) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectCalls++
	return nil
}

func (m *MockSignalSource) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *MockSignalSource) Snapshot() SignalSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sig.sanitized()
}

func (m *MockSignalSource) LastReceived() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReceived
}

func (m *MockSignalSource) Set(sig SignalSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sig = sig
}

func (m *MockSignalSource) SetLastReceived(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReceived = t
}

func (m *MockSignalSource) ConnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalls
}

// snapAtGate returns a snapshot parked at the gate with engines off:
// Heathrow stand coordinates, full tanks, nothing moving.
func snapAtGate() SignalSnapshot {
	return SignalSnapshot{
		OnGround:  true,
		Latitude:  51.4775,
		Longitude: -0.4614,
		Elevation: 25.3,
		Heading:   270,
		FuelTotal: 8500,
	}
}

// snapTaxi returns a snapshot taxiing at the given ground speed in
// knots, engines running.
func snapTaxi(gsKt float64) SignalSnapshot {
	s := snapAtGate()
	s.EngineRunning = true
	s.GroundSpeed = gsKt / mpsToKnots
	return s
}

// snapAirborne returns a snapshot in flight at the given AGL altitude
// in feet, ground speed in knots, and vertical speed in fpm.
func snapAirborne(aglFt, gsKt, vsFpm float64) SignalSnapshot {
	s := snapAtGate()
	s.OnGround = false
	s.EngineRunning = true
	s.AltitudeAGL = aglFt / metersToFeet
	s.Elevation = s.AltitudeAGL + 25.3
	s.GroundSpeed = gsKt / mpsToKnots
	s.Airspeed = s.GroundSpeed
	s.VerticalSpeed = vsFpm / mpsToFpm
	return s
}
