package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const discordClientID = "1409773523918520362"

var preflightPhrases = []string{
	"Boarding passengers",
	"Running the pre-flight checks",
	"Reviewing the flight plan",
	"Waiting at the gate",
	"Loading cargo",
}

// PresenceService mirrors the current flight phase into Discord rich
// presence over the local IPC socket. Everything is best-effort: no
// Discord, no presence, no errors surfaced.
type PresenceService struct {
	settings *SettingsService
	bridge   *BridgeService

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	nudge     chan struct{}
	stopCh    chan struct{}

	// idle phrase rotation
	phraseIdx  int
	phraseTime time.Time

	// rate-limit connect attempts
	lastConnectAttempt time.Time
}

func NewPresenceService(settings *SettingsService, bridge *BridgeService) *PresenceService {
	return &PresenceService{
		settings:   settings,
		bridge:     bridge,
		nudge:      make(chan struct{}, 1),
		phraseIdx:  rand.Intn(len(preflightPhrases)),
		phraseTime: time.Now(),
	}
}

// Start begins the background presence loop.
func (p *PresenceService) Start() {
	p.stopCh = make(chan struct{})
	go p.runLoop(p.stopCh)
}

func (p *PresenceService) Stop() {
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	p.disconnect()
	p.mu.Unlock()
}

// Nudge triggers an immediate presence update.
func (p *PresenceService) Nudge() {
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

func (p *PresenceService) runLoop(stopCh chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	// small delay to let the bridge come up
	time.Sleep(2 * time.Second)
	p.tick()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.tick()
		case <-p.nudge:
			p.tick()
		}
	}
}

func (p *PresenceService) tick() {
	if !p.settings.Config().Presence.Enabled {
		p.mu.Lock()
		p.disconnect()
		p.mu.Unlock()
		return
	}

	// ensure connected
	p.mu.Lock()
	if !p.connected {
		if time.Since(p.lastConnectAttempt) < 30*time.Second {
			p.mu.Unlock()
			return
		}
		p.lastConnectAttempt = time.Now()
		if err := p.connect(); err != nil {
			p.mu.Unlock()
			slog.Debug("discord: not available", "error", err)
			return
		}
	}
	p.mu.Unlock()

	activity := p.buildActivity()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return
	}
	if err := p.setActivity(activity); err != nil {
		slog.Debug("discord: activity update failed", "error", err)
		p.disconnect()
	}
}

// --- IPC protocol ---

// socketCandidates lists the unix socket paths Discord may listen on,
// including the sandboxed install layouts.
func socketCandidates() []string {
	var dirs []string
	if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" {
		dirs = append(dirs,
			d,
			filepath.Join(d, "snap.discord"),
			filepath.Join(d, "app", "com.discordapp.Discord"),
		)
	}
	if d := os.Getenv("TMPDIR"); d != "" {
		dirs = append(dirs, d)
	}
	dirs = append(dirs, "/tmp")

	var paths []string
	for _, dir := range dirs {
		for i := 0; i < 10; i++ {
			paths = append(paths, filepath.Join(dir, fmt.Sprintf("discord-ipc-%d", i)))
		}
	}
	return paths
}

func (p *PresenceService) connect() error {
	for _, path := range socketCandidates() {
		conn, err := net.DialTimeout("unix", path, time.Second)
		if err != nil {
			continue
		}
		p.conn = conn

		hs, _ := json.Marshal(map[string]interface{}{
			"v":         1,
			"client_id": discordClientID,
		})
		if err := p.writeFrame(0, hs); err != nil {
			conn.Close()
			p.conn = nil
			continue
		}
		if _, err := p.readFrame(); err != nil {
			conn.Close()
			p.conn = nil
			continue
		}

		p.connected = true
		slog.Info("discord: connected", "socket", path)
		return nil
	}
	return fmt.Errorf("no discord socket found")
}

func (p *PresenceService) disconnect() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.connected = false
}

func (p *PresenceService) writeFrame(opcode uint32, payload []byte) error {
	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint32(hdr[0:4], opcode)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if _, err := p.conn.Write(hdr); err != nil {
		return err
	}
	_, err := p.conn.Write(payload)
	return err
}

func (p *PresenceService) readFrame() (json.RawMessage, error) {
	hdr := make([]byte, 8)
	if _, err := io.ReadFull(p.conn, hdr); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(hdr[4:8])
	buf := make([]byte, length)
	if _, err := io.ReadFull(p.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *PresenceService) setActivity(activity map[string]interface{}) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"cmd":   "SET_ACTIVITY",
		"nonce": fmt.Sprintf("%d", time.Now().UnixNano()),
		"args": map[string]interface{}{
			"pid":      os.Getpid(),
			"activity": activity,
		},
	})
	if err := p.writeFrame(1, payload); err != nil {
		return err
	}
	_, err := p.readFrame()
	return err
}

// --- State helpers ---

func (p *PresenceService) buildActivity() map[string]interface{} {
	p.bridge.mu.Lock()
	phase := p.bridge.lastReported
	seen := p.bridge.reportedOnce
	startedAt := p.bridge.startedAt
	p.bridge.mu.Unlock()

	activity := map[string]interface{}{
		"details": "phpVMS ACARS",
	}

	if !seen {
		activity["state"] = "Waiting for simulator"
		return activity
	}

	sig := p.bridge.source.Snapshot()
	activity["state"] = p.stateText(phase, sig)
	if !startedAt.IsZero() {
		activity["timestamps"] = map[string]interface{}{
			"start": startedAt.Unix(),
		}
	}
	return activity
}

func (p *PresenceService) stateText(phase FlightPhase, sig SignalSnapshot) string {
	switch phase {
	case PhasePaused:
		return "Simulation paused"
	case PhaseBoarding, PhaseReadyToStart:
		return p.preflightPhrase()
	case PhasePushbackTaxiOut, PhaseTaxi:
		return "Taxiing out"
	case PhaseTakeoff:
		return "Taking off"
	case PhaseAirborne:
		return "Climbing out"
	case PhaseEnroute:
		alt := (truncToward0(sig.AltitudeMSLFeet()) + 50) / 100 * 100
		return fmt.Sprintf("Enroute at %d ft", alt)
	case PhaseApproach:
		return "On approach"
	case PhaseLanding:
		return "Landing"
	case PhaseLanded:
		return "Taxiing in"
	case PhaseOnBlock:
		return "At the gate"
	case PhaseArrived:
		return "Arrived"
	default:
		return "In the simulator"
	}
}

func (p *PresenceService) preflightPhrase() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Since(p.phraseTime) > 2*time.Minute {
		p.phraseIdx = (p.phraseIdx + 1) % len(preflightPhrases)
		p.phraseTime = time.Now()
	}
	return preflightPhrases[p.phraseIdx%len(preflightPhrases)]
}
