package main

import (
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestXPlaneDatarefIndexesAligned guards the subscription index consts
// against drifting out of step with the dataref list.
func TestXPlaneDatarefIndexesAligned(t *testing.T) {
	assert.Equal(t, drRadioAltitude+1, len(xplaneDatarefs))
	assert.Equal(t, "sim/flightmodel/position/latitude", xplaneDatarefs[drLatitude])
	assert.Equal(t, "sim/flightmodel/position/groundspeed", xplaneDatarefs[drGroundSpeed])
	assert.Equal(t, "sim/time/paused", xplaneDatarefs[drPaused])
}

// TestApplyDatarefValue verifies unit normalization from X-Plane's
// native units to the snapshot's metric bases.
func TestApplyDatarefValue(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	var sig SignalSnapshot
	var lastGSAt time.Time

	applyDatarefValue(&sig, &lastGSAt, drLatitude, 51.4775, now)
	assert.Equal(t, 51.4775, sig.Latitude)

	applyDatarefValue(&sig, &lastGSAt, drElevation, 152.4, now)
	assert.Equal(t, 152.4, sig.Elevation, "elevation arrives in meters already")

	applyDatarefValue(&sig, &lastGSAt, drIndicatedAirspeed, 140, now)
	assert.InDelta(t, 140/mpsToKnots, sig.Airspeed, 1e-9, "kias should be stored as m/s")

	applyDatarefValue(&sig, &lastGSAt, drRadioAltitude, 328.084, now)
	assert.InDelta(t, 100.0, sig.RadioAltitude, 1e-6, "radio altimeter feet should be stored as meters")

	applyDatarefValue(&sig, &lastGSAt, drOnGround, 1, now)
	assert.True(t, sig.OnGround)
	applyDatarefValue(&sig, &lastGSAt, drOnGround, 0, now)
	assert.False(t, sig.OnGround)

	applyDatarefValue(&sig, &lastGSAt, drPaused, 1, now)
	assert.True(t, sig.Paused)

	applyDatarefValue(&sig, &lastGSAt, drFuelTotal, 8500, now)
	assert.Equal(t, 8500.0, sig.FuelTotal)
}

// TestApplyDatarefValueIntegratesDistance verifies ground speed samples
// accumulate distance, and implausible gaps between samples are
// discarded instead of integrated.
func TestApplyDatarefValueIntegratesDistance(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	var sig SignalSnapshot
	var lastGSAt time.Time

	applyDatarefValue(&sig, &lastGSAt, drGroundSpeed, 100, base)
	assert.Equal(t, 0.0, sig.Distance, "the first sample only arms the clock")

	applyDatarefValue(&sig, &lastGSAt, drGroundSpeed, 100, base.Add(2*time.Second))
	assert.InDelta(t, 200.0, sig.Distance, 1e-9)

	applyDatarefValue(&sig, &lastGSAt, drGroundSpeed, 100, base.Add(5*time.Minute))
	assert.InDelta(t, 200.0, sig.Distance, 1e-9, "a long gap should not be integrated")

	applyDatarefValue(&sig, &lastGSAt, drGroundSpeed, 50, base.Add(5*time.Minute+time.Second))
	assert.InDelta(t, 250.0, sig.Distance, 1e-9)
}

// TestSubscribeRREFPacket verifies the subscription datagram layout:
// magic, frequency, index, then the null-padded dataref path.
func TestSubscribeRREFPacket(t *testing.T) {
	recv, port := newTestReceiver(t)

	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	defer conn.Close()

	x := &XPlaneSource{conn: conn}
	dataref := "sim/flightmodel/position/y_agl"
	require.NoError(t, x.subscribeRREF(3, 2, dataref))

	pkt := receiveOne(t, recv)
	require.Len(t, pkt, 413)
	assert.Equal(t, "RREF", string(pkt[0:4]))
	assert.EqualValues(t, 0, pkt[4])
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(pkt[5:9]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(pkt[9:13]))
	assert.Equal(t, dataref, string(pkt[13:13+len(dataref)]))
	assert.EqualValues(t, 0, pkt[13+len(dataref)], "dataref should be null padded")
}

// TestXPlaneSourceReceivesUpdates drives a full round trip against a
// fake simulator socket: subscribe, push a response datagram, observe
// the snapshot.
func TestXPlaneSourceReceivesUpdates(t *testing.T) {
	recv, port := newTestReceiver(t)

	src := NewXPlaneSource("127.0.0.1", port)
	require.NoError(t, src.Connect())
	defer src.Disconnect()

	assert.Equal(t, "X-Plane", src.Name())

	// Drain the subscription packets to learn the source's address.
	var from *net.UDPAddr
	buf := make([]byte, 1024)
	for range xplaneDatarefs {
		require.NoError(t, recv.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, addr, err := recv.ReadFromUDP(buf)
		require.NoError(t, err)
		from = addr
	}

	resp := make([]byte, 5+2*8)
	copy(resp, "RREF")
	binary.LittleEndian.PutUint32(resp[5:9], uint32(drLatitude))
	binary.LittleEndian.PutUint32(resp[9:13], math.Float32bits(51.5))
	binary.LittleEndian.PutUint32(resp[13:17], uint32(drOnGround))
	binary.LittleEndian.PutUint32(resp[17:21], math.Float32bits(1))
	_, err := recv.WriteToUDP(resp, from)
	require.NoError(t, err)

	xp := src.(*XPlaneSource)
	require.Eventually(t, func() bool {
		return !xp.LastReceived().IsZero()
	}, 2*time.Second, 10*time.Millisecond, "the response should be folded in")

	sig := src.Snapshot()
	assert.InDelta(t, 51.5, sig.Latitude, 1e-6)
	assert.True(t, sig.OnGround)
}
