package main

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// statusEvery is how many ticks pass between periodic status log lines.
const statusEvery = 60

// BridgeService ties the pipeline together: each tick it samples the
// signal source, derives the flight phase, and when the transport is
// due builds and encodes the wire payload and hands it off. Recording
// piggybacks on the same tick so there is a single clock.
type BridgeService struct {
	source    SignalSource
	machine   *PhaseMachine
	encoder   PayloadEncoder
	transport *Transport
	recorder  *TrackRecorder // nil when recording is off

	tickInterval time.Duration

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	startedAt    time.Time
	ticks        uint64
	staleTicks   uint64
	encodeErrors uint64
	lastReported FlightPhase
	reportedOnce bool
	pending      []PayloadEvent
}

func NewBridgeService(source SignalSource, machine *PhaseMachine, encoder PayloadEncoder, transport *Transport, recorder *TrackRecorder, tickInterval time.Duration) *BridgeService {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &BridgeService{
		source:       source,
		machine:      machine,
		encoder:      encoder,
		transport:    transport,
		recorder:     recorder,
		tickInterval: tickInterval,
	}
}

func (b *BridgeService) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("bridge already running")
	}

	b.running = true
	b.stopCh = make(chan struct{})
	b.startedAt = time.Now()
	go b.tickLoop(b.stopCh)

	slog.Info("bridge started",
		"source", b.source.Name(), "encoder", b.encoder.Name(), "tick_interval", b.tickInterval)
	return nil
}

func (b *BridgeService) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	slog.Info("bridge stopped")
}

func (b *BridgeService) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *BridgeService) tickLoop(stopCh chan struct{}) {
	ticker := time.NewTicker(b.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			b.Tick(time.Now())
		}
	}
}

// Tick runs one pipeline pass. Exposed so tests can drive the bridge
// with a synthetic clock instead of the ticker.
func (b *BridgeService) Tick(now time.Time) {
	if src, ok := b.source.(interface{ LastReceived() time.Time }); ok {
		if last := src.LastReceived(); !last.IsZero() && now.Sub(last) > staleAfter {
			// Signals have gone quiet. Hold everything rather than feed
			// the phase rules frozen values.
			b.mu.Lock()
			b.ticks++
			b.staleTicks++
			stale := b.staleTicks
			b.mu.Unlock()
			if stale == 1 {
				slog.Warn("signal source went stale", "source", b.source.Name(), "last_received", last)
			}
			return
		}
	}

	sig := b.source.Snapshot()
	phase := b.machine.Step(sig, now)

	b.mu.Lock()
	b.ticks++
	b.staleTicks = 0
	if b.reportedOnce && phase != b.lastReported {
		b.pending = append(b.pending, PayloadEvent{
			Log:     phaseEventText(b.lastReported, phase),
			SimTime: formatWireTime(now),
		})
	}
	b.lastReported = phase
	b.reportedOnce = true
	ticks := b.ticks
	events := make([]PayloadEvent, len(b.pending))
	copy(events, b.pending)
	b.mu.Unlock()

	if b.transport.Due(now) {
		payload := BuildPayload(sig, phase, now)
		payload.Events = events

		data, err := b.encoder.Encode(payload)
		if err != nil {
			b.mu.Lock()
			b.encodeErrors++
			b.mu.Unlock()
			slog.Error("payload encode failed", "encoder", b.encoder.Name(), "error", err)
		} else if b.transport.MaybeSend(data, now) {
			// Events ride along until a send goes out, then drop.
			b.mu.Lock()
			b.pending = b.pending[:0]
			b.mu.Unlock()
		}
	}

	if b.recorder != nil {
		b.recorder.Record(sig, phase)
	}

	if ticks%statusEvery == 0 {
		sent, skipped := b.transport.Stats()
		slog.Info("bridge status",
			"ticks", ticks, "sent", sent, "skipped", skipped,
			"phase", phase.String(), "status", phase.Code())
	}
}

// phaseEventText renders a phase change as an ACARS log line.
func phaseEventText(from, to FlightPhase) string {
	switch {
	case to == PhasePaused:
		return "Simulator paused"
	case from == PhasePaused:
		return fmt.Sprintf("Simulator resumed, phase %s", to)
	default:
		return fmt.Sprintf("Flight phase changed to %s", to)
	}
}

// Status reports bridge counters for the status command and tests.
func (b *BridgeService) Status() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	sent, skipped := b.transport.Stats()
	status := map[string]interface{}{
		"running":       b.running,
		"source":        b.source.Name(),
		"encoder":       b.encoder.Name(),
		"ticks":         b.ticks,
		"stale_ticks":   b.staleTicks,
		"sent":          sent,
		"skipped":       skipped,
		"encode_errors": b.encodeErrors,
	}
	if b.reportedOnce {
		status["phase"] = b.lastReported.String()
		status["status"] = b.lastReported.Code()
	}
	return status
}
