package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"net"
	"sync"
	"time"
)

// XPlaneSource reads the signal set over X-Plane's RREF UDP protocol.
// X-Plane pushes subscribed dataref values to the socket that asked for
// them; a background loop folds those into the latest snapshot.
type XPlaneSource struct {
	host string
	port int

	mu           sync.Mutex
	conn         *net.UDPConn
	sig          SignalSnapshot
	lastReceived time.Time
	lastGSAt     time.Time
	stop         chan struct{}
}

// Subscribed datarefs, in index order. Values arrive as float32 keyed by
// the index used at subscription time.
const (
	drLatitude = iota
	drLongitude
	drElevation
	drAltitudeAGL
	drGroundSpeed
	drIndicatedAirspeed
	drVerticalSpeed
	drHeading
	drOnGround
	drEngineRunning
	drPaused
	drFlightTime
	drFuelTotal
	drRadioAltitude
)

var xplaneDatarefs = []string{
	"sim/flightmodel/position/latitude",
	"sim/flightmodel/position/longitude",
	"sim/flightmodel/position/elevation",   // meters MSL
	"sim/flightmodel/position/y_agl",       // meters AGL
	"sim/flightmodel/position/groundspeed", // m/s
	"sim/flightmodel/position/indicated_airspeed", // kias
	"sim/flightmodel/position/vh_ind",      // m/s
	"sim/flightmodel/position/psi",         // degrees true
	"sim/flightmodel/failures/onground_any",
	"sim/flightmodel/engine/ENGN_running[0]",
	"sim/time/paused",
	"sim/time/total_flight_time_sec",
	"sim/flightmodel/weight/m_fuel_total", // kg
	"sim/cockpit2/gauges/indicators/radio_altimeter_height_ft_pilot", // feet
}

// rrefFreq is how many updates per second X-Plane is asked to push.
const rrefFreq = 2

func NewXPlaneSource(host string, port int) SignalSource {
	return &XPlaneSource{
		host: host,
		port: port,
	}
}

func (x *XPlaneSource) Name() string {
	return "X-Plane"
}

func (x *XPlaneSource) Connect() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", x.host, x.port))
	if err != nil {
		return fmt.Errorf("resolve addr: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("dial udp: %w", err)
	}
	x.conn = conn

	for i, dref := range xplaneDatarefs {
		if err := x.subscribeRREF(i, rrefFreq, dref); err != nil {
			conn.Close()
			x.conn = nil
			return fmt.Errorf("subscribe %s: %w", dref, err)
		}
	}

	x.stop = make(chan struct{})
	go x.listenLoop(conn, x.stop)

	slog.Info("x-plane udp connected", "addr", addr.String())
	return nil
}

func (x *XPlaneSource) Disconnect() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.stop != nil {
		close(x.stop)
		x.stop = nil
	}

	if x.conn != nil {
		// Unsubscribe by resubscribing at frequency 0.
		for i, dref := range xplaneDatarefs {
			x.subscribeRREF(i, 0, dref)
		}
		x.conn.Close()
		x.conn = nil
	}
	return nil
}

// Snapshot returns the last-known signal values. It never blocks: before
// anything has been received it returns zero values, per the source
// contract.
func (x *XPlaneSource) Snapshot() SignalSnapshot {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.sig.sanitized()
}

// LastReceived reports when the last dataref packet arrived.
func (x *XPlaneSource) LastReceived() time.Time {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lastReceived
}

func (x *XPlaneSource) subscribeRREF(index, freq int, dataref string) error {
	// RREF packet: "RREF\0" + freq(4 bytes) + index(4 bytes) + dataref(400 bytes null-padded)
	buf := make([]byte, 413)
	copy(buf[0:4], "RREF")
	buf[4] = 0
	binary.LittleEndian.PutUint32(buf[5:9], uint32(freq))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(index))
	copy(buf[13:], dataref)

	_, err := x.conn.Write(buf)
	return err
}

func (x *XPlaneSource) listenLoop(conn *net.UDPConn, stop chan struct{}) {
	buf := make([]byte, 4096)

	for {
		select {
		case <-stop:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			continue
		}

		if n < 5 || string(buf[0:4]) != "RREF" {
			continue
		}

		now := time.Now()

		// RREF response: header(5) + entries of (index:4 + value:4)
		offset := 5
		x.mu.Lock()
		for offset+8 <= n {
			idx := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
			val := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[offset+4 : offset+8])))
			offset += 8
			applyDatarefValue(&x.sig, &x.lastGSAt, idx, val, now)
		}
		x.lastReceived = now
		x.mu.Unlock()
	}
}

// applyDatarefValue folds one dataref value into the snapshot, keyed by
// the subscription index, normalizing to the metric bases the snapshot
// promises. Shared by the RREF and Web API sources; callers hold their
// source's mutex.
func applyDatarefValue(sig *SignalSnapshot, lastGSAt *time.Time, idx int, val float64, now time.Time) {
	switch idx {
	case drLatitude:
		sig.Latitude = val
	case drLongitude:
		sig.Longitude = val
	case drElevation:
		sig.Elevation = val
	case drAltitudeAGL:
		sig.AltitudeAGL = val
	case drGroundSpeed:
		sig.GroundSpeed = val
		// Cumulative distance is not a dataref; integrate ground
		// speed between updates.
		if !lastGSAt.IsZero() {
			dt := now.Sub(*lastGSAt).Seconds()
			if dt > 0 && dt < 30 {
				sig.Distance += val * dt
			}
		}
		*lastGSAt = now
	case drIndicatedAirspeed:
		sig.Airspeed = val / mpsToKnots // X-Plane reports kias
	case drVerticalSpeed:
		sig.VerticalSpeed = val
	case drHeading:
		sig.Heading = val
	case drOnGround:
		sig.OnGround = val > 0.5
	case drEngineRunning:
		sig.EngineRunning = val > 0.5
	case drPaused:
		sig.Paused = val > 0.5
	case drFlightTime:
		sig.FlightTime = val
	case drFuelTotal:
		sig.FuelTotal = val
	case drRadioAltitude:
		sig.RadioAltitude = val / metersToFeet // dataref is feet
	}
}
