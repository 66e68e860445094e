package main

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ListenerService is the debug receiver: it binds the bridge port,
// decodes whatever arrives with the configured encoder and logs one
// line per payload. Stands in for the ground side when eyeballing what
// the bridge emits.
type ListenerService struct {
	port    int
	encoder PayloadEncoder

	mu         sync.Mutex
	conn       *net.UDPConn
	packetsOK  uint64
	packetsErr uint64
	lastStatus string
	lastAt     time.Time
	stopCh     chan struct{}
}

func NewListenerService(port int, encoder PayloadEncoder) *ListenerService {
	return &ListenerService{port: port, encoder: encoder}
}

func (l *ListenerService) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return fmt.Errorf("listener already running")
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: l.port})
	if err != nil {
		return fmt.Errorf("bind udp port %d: %w", l.port, err)
	}

	l.conn = conn
	l.stopCh = make(chan struct{})
	go l.readLoop(conn, l.stopCh)

	slog.Info("listening for telemetry", "port", l.port, "encoder", l.encoder.Name())
	return nil
}

func (l *ListenerService) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return
	}
	close(l.stopCh)
	l.conn.Close()
	l.conn = nil
}

func (l *ListenerService) readLoop(conn *net.UDPConn, stopCh chan struct{}) {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-stopCh:
			default:
				slog.Warn("listener read failed", "error", err)
			}
			return
		}

		payload, err := l.encoder.Decode(buf[:n])
		if err != nil {
			l.mu.Lock()
			l.packetsErr++
			l.mu.Unlock()
			slog.Warn("undecodable payload", "from", addr, "bytes", n, "error", err)
			continue
		}

		l.mu.Lock()
		l.packetsOK++
		l.lastStatus = payload.Status
		l.lastAt = time.Now()
		ok, bad := l.packetsOK, l.packetsErr
		l.mu.Unlock()

		slog.Info("payload",
			"status", payload.Status,
			"lat", payload.Position.Lat,
			"lon", payload.Position.Lon,
			"alt_msl", payload.Position.AltitudeMSL,
			"gs", payload.Position.GS,
			"dist_nm", payload.Position.Distance,
			"fuel_kg", payload.Fuel,
			"flight_time", payload.FlightTime,
			"ok", ok, "err", bad)

		for _, ev := range payload.Events {
			slog.Info("event", "log", ev.Log, "sim_time", ev.SimTime)
		}
	}
}

// Addr returns the bound address, which differs from the configured
// port when listening on port zero.
func (l *ListenerService) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Stats reports receive counters and the last decoded status code.
func (l *ListenerService) Stats() (ok, bad uint64, lastStatus string, lastAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.packetsOK, l.packetsErr, l.lastStatus, l.lastAt
}
