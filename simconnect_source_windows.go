//go:build windows

package main

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	sim "github.com/lian/msfs2020-go/simconnect"
)

// simReport is the SimConnect data definition. Field tags name the
// simulation variables and the units to request them in.
type simReport struct {
	sim.RecvSimobjectDataByType

	Latitude    float64 `name:"PLANE LATITUDE" unit:"degrees"`
	Longitude   float64 `name:"PLANE LONGITUDE" unit:"degrees"`
	Altitude    float64 `name:"PLANE ALTITUDE" unit:"feet"`
	AltitudeAGL float64 `name:"PLANE ALT ABOVE GROUND" unit:"feet"`
	RadioHeight float64 `name:"RADIO HEIGHT" unit:"feet"`
	Heading     float64 `name:"PLANE HEADING DEGREES MAGNETIC" unit:"degrees"`
	VS          float64 `name:"VERTICAL SPEED" unit:"feet per second"`
	IAS         float64 `name:"AIRSPEED INDICATED" unit:"knots"`
	GS          float64 `name:"GROUND VELOCITY" unit:"knots"`
	Eng1Running float64 `name:"GENERAL ENG COMBUSTION:1" unit:"Bool"`
	OnGround    float64 `name:"SIM ON GROUND" unit:"Bool"`
	FuelWeight  float64 `name:"FUEL TOTAL QUANTITY WEIGHT" unit:"pounds"`
	ZuluTime    float64 `name:"ZULU TIME" unit:"seconds"`
}

// pauseAfter is how long the zulu clock may stand still before the
// simulator is considered paused. SimConnect has no pause variable, but
// zulu time only stops advancing when the sim is frozen.
const pauseAfter = 3 * time.Second

// SimConnectSource reads the signal set from MSFS through SimConnect.
type SimConnectSource struct {
	mu  sync.RWMutex
	sc  *sim.SimConnect
	sig SignalSnapshot

	lastReceived   time.Time
	lastGSAt       time.Time
	lastZulu       float64
	lastZuluChange time.Time

	stopCh  chan struct{}
	stopped chan struct{}
}

func NewSimConnectSource() SignalSource {
	return &SimConnectSource{}
}

func (s *SimConnectSource) Name() string {
	return "simconnect"
}

func (s *SimConnectSource) Connect() error {
	s.stopCh = make(chan struct{})
	s.stopped = make(chan struct{})
	errCh := make(chan error, 1)

	go s.run(errCh)

	return <-errCh
}

func (s *SimConnectSource) Disconnect() error {
	s.mu.RLock()
	sc := s.sc
	s.mu.RUnlock()

	if sc != nil {
		close(s.stopCh)
		<-s.stopped
	}
	return nil
}

func (s *SimConnectSource) Snapshot() SignalSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sig.sanitized()
}

func (s *SimConnectSource) LastReceived() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReceived
}

// run performs ALL SimConnect operations on a single locked OS thread.
func (s *SimConnectSource) run(errCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.stopped)

	sc, err := sim.New("phpVMS Bridge")
	if err != nil {
		errCh <- fmt.Errorf("simconnect open: %w", err)
		return
	}

	report := &simReport{}
	if err := sc.RegisterDataDefinition(report); err != nil {
		sc.Close()
		errCh <- fmt.Errorf("register data definition: %w", err)
		return
	}

	s.mu.Lock()
	s.sc = sc
	s.sig = SignalSnapshot{}
	s.lastGSAt = time.Time{}
	s.lastZuluChange = time.Time{}
	s.mu.Unlock()

	slog.Info("SimConnect connected")
	errCh <- nil // signal success to Connect()

	defineID := sc.GetDefineID(report)

	requestTicker := time.NewTicker(time.Second)
	defer requestTicker.Stop()

	// Initial data request
	sc.RequestDataOnSimObjectType(0, defineID, 0, sim.SIMOBJECT_TYPE_USER)

	defer func() {
		sc.Close()
		s.mu.Lock()
		s.sc = nil
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.stopCh:
			return
		case <-requestTicker.C:
			sc.RequestDataOnSimObjectType(0, defineID, 0, sim.SIMOBJECT_TYPE_USER)
		default:
			ppData, r1, _ := sc.GetNextDispatch()
			if r1 < 0 {
				time.Sleep(5 * time.Millisecond)
				continue
			}

			recvInfo := *(*sim.Recv)(ppData)

			switch recvInfo.ID {
			case sim.RECV_ID_SIMOBJECT_DATA_BYTYPE:
				r := (*simReport)(ppData)
				s.fold(r, time.Now())
			case sim.RECV_ID_EXCEPTION:
				slog.Warn("SimConnect exception received")
			}
		}
	}
}

// fold converts one report into the snapshot, normalizing to the metric
// bases the snapshot promises and deriving the signals MSFS does not
// expose directly: pause state and flight time from the zulu clock,
// distance from integrated ground speed.
func (s *SimConnectSource) fold(r *simReport, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sig.Latitude = r.Latitude
	s.sig.Longitude = r.Longitude
	s.sig.Elevation = r.Altitude / metersToFeet
	s.sig.AltitudeAGL = r.AltitudeAGL / metersToFeet
	s.sig.RadioAltitude = r.RadioHeight / metersToFeet
	s.sig.Heading = r.Heading
	s.sig.VerticalSpeed = r.VS * 60 / mpsToFpm // fps to fpm to m/s
	s.sig.Airspeed = r.IAS / mpsToKnots
	s.sig.GroundSpeed = r.GS / mpsToKnots
	s.sig.EngineRunning = r.Eng1Running != 0
	s.sig.OnGround = r.OnGround != 0
	s.sig.FuelTotal = r.FuelWeight * kgPerPound

	if !s.lastGSAt.IsZero() {
		dt := now.Sub(s.lastGSAt).Seconds()
		if dt > 0 && dt < 30 {
			s.sig.Distance += s.sig.GroundSpeed * dt
		}
	}
	s.lastGSAt = now

	zuluDelta := r.ZuluTime - s.lastZulu
	if s.lastZuluChange.IsZero() || math.Abs(zuluDelta) > 0.01 {
		// Clock moved (or first report). Wraps at midnight show up as a
		// large negative delta and are skipped by the range check.
		if zuluDelta > 0 && zuluDelta < 30 {
			s.sig.FlightTime += zuluDelta
		}
		s.lastZulu = r.ZuluTime
		s.lastZuluChange = now
		s.sig.Paused = false
	} else if now.Sub(s.lastZuluChange) > pauseAfter {
		s.sig.Paused = true
	}

	s.lastReceived = now
}
