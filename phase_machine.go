package main

import (
	"log/slog"
	"sync"
	"time"
)

// FlightPhase is the discrete stage of a flight. The internal phases are
// finer-grained than the wire vocabulary: several of them collapse onto a
// shared phpVMS PIREP status code.
type FlightPhase int

const (
	PhaseBoarding FlightPhase = iota
	PhaseReadyToStart
	PhasePushbackTaxiOut
	PhaseTaxi
	PhaseTakeoff
	PhaseAirborne
	PhaseEnroute
	PhaseApproach
	PhaseLanding
	PhaseLanded
	PhaseOnBlock
	PhaseArrived
	// PhasePaused is an overlay: it is reported while the sim is paused
	// but never stored as the machine's current phase.
	PhasePaused
)

var phaseNames = [...]string{
	"boarding",
	"ready_to_start",
	"pushback_taxi_out",
	"taxi",
	"takeoff",
	"airborne",
	"enroute",
	"approach",
	"landing",
	"landed",
	"on_block",
	"arrived",
	"paused",
}

// phpVMS PIREP status codes. Pushback and taxi share TXI, airborne and
// enroute share ENR, and everything from touchdown stop onward is ARR.
var phaseCodes = [...]string{
	"BST",
	"OFB",
	"TXI",
	"TXI",
	"TOF",
	"ENR",
	"ENR",
	"TEN",
	"LDG",
	"ARR",
	"ARR",
	"ARR",
	"PSD",
}

func (p FlightPhase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Code returns the wire status code reported for this phase.
func (p FlightPhase) Code() string {
	if p < 0 || int(p) >= len(phaseCodes) {
		return "INI"
	}
	return phaseCodes[p]
}

// PhaseThresholds holds the signal thresholds and dwell times the guard
// table evaluates against. All speeds are knots, altitudes feet, vertical
// speeds feet per minute.
type PhaseThresholds struct {
	TaxiSpeedKt   float64
	TaxiConfirmKt float64
	TakeoffIASKt  float64
	TakeoffVSFpm  float64
	ClimboutAGLFt float64
	CruiseAGLFt   float64
	CruiseSpeedKt float64
	ApproachAGLFt float64
	ApproachVSFpm float64
	StopSpeedKt   float64
	BounceAGLFt   float64
	TaxiDwell     time.Duration
	StopDwell     time.Duration
}

func DefaultPhaseThresholds() PhaseThresholds {
	return PhaseThresholds{
		TaxiSpeedKt:   1.0,
		TaxiConfirmKt: 5.0,
		TakeoffIASKt:  50.0,
		TakeoffVSFpm:  5.0,
		ClimboutAGLFt: 300.0,
		CruiseAGLFt:   1000.0,
		CruiseSpeedKt: 50.0,
		ApproachAGLFt: 3000.0,
		ApproachVSFpm: -200.0,
		StopSpeedKt:   1.0,
		BounceAGLFt:   50.0,
		TaxiDwell:     2 * time.Second,
		StopDwell:     5 * time.Second,
	}
}

// PhaseMachineState is the machine's mutable state: the current phase and
// the start timestamp of the single dwell timer. The timer is zeroed every
// time a guarded transition fires.
type PhaseMachineState struct {
	Phase      FlightPhase
	TimerStart time.Time
}

// PhaseMachine derives the reported flight phase from signal snapshots.
// Each instance owns its state, so independent machines (one per bridge,
// many in tests) never interfere.
type PhaseMachine struct {
	mu         sync.Mutex
	state      PhaseMachineState
	thresholds PhaseThresholds
	table      []phaseGuard
}

// phaseGuard is one row of the ordered transition table: while the machine
// is in from, the first row whose predicate matches decides the next phase
// and the reported code. Rows with to == from hold the phase.
type phaseGuard struct {
	from FlightPhase
	to   FlightPhase
	when func(*stepContext) bool
}

// stepContext carries one tick's inputs plus the dwell helpers, which read
// and write the machine's single timer field.
type stepContext struct {
	m   *PhaseMachine
	sig SignalSnapshot
	now time.Time

	gsKt  float64
	iasKt float64
	vsFpm float64
	aglFt float64
}

// held reports whether cond has held continuously for dwell. The timer is
// armed the first tick cond is observed and cleared the moment it lapses,
// so a single spike can never satisfy the dwell.
func (c *stepContext) held(cond bool, dwell time.Duration) bool {
	if !cond {
		c.m.state.TimerStart = time.Time{}
		return false
	}
	if c.m.state.TimerStart.IsZero() {
		c.m.state.TimerStart = c.now
		return dwell <= 0
	}
	return c.now.Sub(c.m.state.TimerStart) >= dwell
}

// heldOrUnset is the lenient variant used by the landed→on-block→arrived
// chain: an unset timer counts as satisfied, since the dwell was already
// served at the head of the chain and firing reset the timer. Without the
// leniency the tail of the chain would wait forever on a timer nothing
// re-arms.
func (c *stepContext) heldOrUnset(cond bool, dwell time.Duration) bool {
	if !cond {
		c.m.state.TimerStart = time.Time{}
		return false
	}
	if c.m.state.TimerStart.IsZero() {
		return true
	}
	return c.now.Sub(c.m.state.TimerStart) >= dwell
}

func NewPhaseMachine(t PhaseThresholds) *PhaseMachine {
	m := &PhaseMachine{
		state:      PhaseMachineState{Phase: PhaseBoarding},
		thresholds: t,
	}
	m.table = m.buildTable()
	return m
}

func (m *PhaseMachine) buildTable() []phaseGuard {
	t := m.thresholds
	return []phaseGuard{
		{PhaseBoarding, PhaseReadyToStart, func(c *stepContext) bool {
			return c.sig.OnGround && c.sig.EngineRunning
		}},
		{PhaseBoarding, PhaseBoarding, func(c *stepContext) bool {
			return c.sig.OnGround
		}},

		{PhaseReadyToStart, PhasePushbackTaxiOut, func(c *stepContext) bool {
			return c.held(c.sig.OnGround && c.sig.EngineRunning && c.gsKt >= t.TaxiSpeedKt, t.TaxiDwell)
		}},
		{PhaseReadyToStart, PhaseReadyToStart, func(c *stepContext) bool {
			// Holds both below the taxi threshold and while the taxi
			// dwell is still counting.
			return c.sig.OnGround && c.sig.EngineRunning
		}},

		{PhasePushbackTaxiOut, PhaseTakeoff, func(c *stepContext) bool {
			return c.iasKt > t.TakeoffIASKt && c.vsFpm > t.TakeoffVSFpm
		}},
		{PhasePushbackTaxiOut, PhaseTaxi, func(c *stepContext) bool {
			return c.sig.OnGround && c.gsKt >= t.TaxiConfirmKt
		}},
		{PhasePushbackTaxiOut, PhasePushbackTaxiOut, func(c *stepContext) bool {
			return c.sig.OnGround && c.sig.EngineRunning
		}},

		{PhaseTaxi, PhaseTakeoff, func(c *stepContext) bool {
			return c.iasKt > t.TakeoffIASKt && c.vsFpm > t.TakeoffVSFpm
		}},
		{PhaseTaxi, PhaseTaxi, func(c *stepContext) bool {
			return c.sig.OnGround && c.sig.EngineRunning
		}},

		// Leaving takeoff branches: cruise-like signals skip the
		// intermediate airborne phase entirely. Both paths report ENR.
		{PhaseTakeoff, PhaseEnroute, func(c *stepContext) bool {
			return !c.sig.OnGround && c.aglFt > t.CruiseAGLFt && c.gsKt > t.CruiseSpeedKt
		}},
		{PhaseTakeoff, PhaseAirborne, func(c *stepContext) bool {
			return !c.sig.OnGround && c.aglFt > t.ClimboutAGLFt
		}},
		{PhaseTakeoff, PhaseTakeoff, func(c *stepContext) bool {
			return !c.sig.OnGround
		}},
		{PhaseTakeoff, PhaseTakeoff, func(c *stepContext) bool {
			return c.sig.OnGround && c.iasKt >= t.TakeoffIASKt
		}},

		{PhaseAirborne, PhaseEnroute, func(c *stepContext) bool {
			return c.aglFt > t.CruiseAGLFt && c.gsKt > t.CruiseSpeedKt
		}},
		{PhaseAirborne, PhaseApproach, func(c *stepContext) bool {
			return c.aglFt < t.ApproachAGLFt && c.vsFpm < t.ApproachVSFpm
		}},
		{PhaseAirborne, PhaseAirborne, func(c *stepContext) bool {
			return !c.sig.OnGround
		}},

		{PhaseEnroute, PhaseApproach, func(c *stepContext) bool {
			return !c.sig.OnGround && c.aglFt < t.ApproachAGLFt && c.vsFpm < t.ApproachVSFpm
		}},
		{PhaseEnroute, PhaseEnroute, func(c *stepContext) bool {
			return !c.sig.OnGround
		}},

		{PhaseApproach, PhaseLanding, func(c *stepContext) bool {
			return c.sig.OnGround
		}},
		{PhaseApproach, PhaseApproach, func(c *stepContext) bool {
			// A go-around stays in approach rather than regressing.
			return !c.sig.OnGround
		}},

		{PhaseLanding, PhaseLanded, func(c *stepContext) bool {
			return c.held(c.sig.OnGround && c.gsKt < t.StopSpeedKt, t.StopDwell)
		}},
		{PhaseLanding, PhaseLanding, func(c *stepContext) bool {
			return c.sig.OnGround
		}},
		{PhaseLanding, PhaseLanding, func(c *stepContext) bool {
			// Bounced touchdown.
			return !c.sig.OnGround && c.aglFt < t.BounceAGLFt
		}},

		{PhaseLanded, PhaseOnBlock, func(c *stepContext) bool {
			return c.heldOrUnset(c.sig.OnGround && c.gsKt < t.StopSpeedKt, t.StopDwell)
		}},
		{PhaseLanded, PhaseLanded, func(c *stepContext) bool {
			return c.sig.OnGround
		}},

		{PhaseOnBlock, PhaseArrived, func(c *stepContext) bool {
			return c.heldOrUnset(c.sig.OnGround && c.gsKt < t.StopSpeedKt, t.StopDwell)
		}},
		{PhaseOnBlock, PhaseOnBlock, func(c *stepContext) bool {
			return c.sig.OnGround
		}},

		// Arrived is terminal until an explicit Reset.
		{PhaseArrived, PhaseArrived, func(c *stepContext) bool {
			return true
		}},
	}
}

// Step consumes one signal snapshot and returns the phase to report. The
// stored phase advances only when a guard row fires; a paused sim reports
// PSD without touching phase or timer, and a tick where no guard matches
// falls back to a classification derived from the signals alone.
func (m *PhaseMachine) Step(sig SignalSnapshot, now time.Time) FlightPhase {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sig.Paused {
		return PhasePaused
	}

	c := &stepContext{
		m:     m,
		sig:   sig,
		now:   now,
		gsKt:  sig.GroundSpeedKnots(),
		iasKt: sig.AirspeedKnots(),
		vsFpm: sig.VerticalSpeedFpm(),
		aglFt: sig.AltitudeAGLFeet(),
	}

	for i := range m.table {
		g := &m.table[i]
		if g.from != m.state.Phase {
			continue
		}
		if !g.when(c) {
			continue
		}
		if g.to != g.from {
			slog.Info("flight phase changed",
				"from", m.state.Phase,
				"to", g.to,
				"code", g.to.Code(),
			)
			m.state.Phase = g.to
			m.state.TimerStart = time.Time{}
		}
		return g.to
	}

	// Signals are inconsistent with the stored phase. Classify a
	// best-effort phase from ground contact and thresholds alone and
	// report it; the stored phase stays put so a transient glitch heals
	// on the next tick. This can report a code earlier than the last
	// one, which existing consumers expect.
	fb := classifyBySignals(c, m.thresholds)
	slog.Warn("no phase guard matched, reporting fallback",
		"phase", m.state.Phase,
		"fallback", fb,
		"code", fb.Code(),
		"on_ground", sig.OnGround,
		"engine_running", sig.EngineRunning,
		"gs_kt", c.gsKt,
		"ias_kt", c.iasKt,
		"vs_fpm", c.vsFpm,
		"agl_ft", c.aglFt,
	)
	return fb
}

// classifyBySignals derives a phase from ground contact and speed/altitude
// thresholds only, ignoring the stored phase.
func classifyBySignals(c *stepContext, t PhaseThresholds) FlightPhase {
	switch {
	case c.sig.OnGround && c.gsKt >= t.TaxiSpeedKt:
		return PhaseTaxi
	case c.sig.OnGround:
		return PhaseBoarding
	case c.aglFt > t.CruiseAGLFt && c.gsKt > t.CruiseSpeedKt:
		return PhaseEnroute
	case c.aglFt < t.ApproachAGLFt && c.vsFpm < t.ApproachVSFpm:
		return PhaseApproach
	default:
		return PhaseAirborne
	}
}

// State returns a copy of the machine's current state.
func (m *PhaseMachine) State() PhaseMachineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Phase returns the stored (not necessarily last reported) phase.
func (m *PhaseMachine) Phase() FlightPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Phase
}

// SetPhase jumps the machine to a phase, clearing any dwell in progress.
// Used when resuming tracking of a flight already underway.
func (m *PhaseMachine) SetPhase(p FlightPhase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Phase = p
	m.state.TimerStart = time.Time{}
}

// Reset returns the machine to boarding for the next flight. Arrival does
// not reset implicitly; starting a new flight is the caller's decision.
func (m *PhaseMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	slog.Info("phase machine reset", "from", m.state.Phase)
	m.state = PhaseMachineState{Phase: PhaseBoarding}
}
