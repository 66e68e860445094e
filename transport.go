package main

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultSendInterval = 500 * time.Millisecond

// Transport pushes encoded payloads to the ground bridge over a UDP
// socket connected to one fixed peer. Sends are rate limited to one per
// interval and fire-and-forget: a write error is logged once per distinct
// cause, then swallowed, so a dead peer can never stall the tick loop.
type Transport struct {
	mu       sync.Mutex
	conn     net.Conn
	peer     string
	interval time.Duration
	lastSent time.Time
	sent     uint64
	skipped  uint64
	errOnce  *lru.Cache[string, time.Time]
}

func NewTransport(host string, port int, interval time.Duration) (*Transport, error) {
	if interval <= 0 {
		interval = defaultSendInterval
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	errOnce, err := lru.New[string, time.Time](16)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error cache: %w", err)
	}
	slog.Info("telemetry transport ready", "peer", addr, "interval", interval)
	return &Transport{
		conn:     conn,
		peer:     addr,
		interval: interval,
		errOnce:  errOnce,
	}, nil
}

// Due reports whether a send at now would pass the rate limiter. It lets
// the caller skip encoding entirely on throttled ticks.
func (t *Transport) Due(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.lastSent) >= t.interval
}

// MaybeSend writes the datagram if at least one interval has passed since
// the previous send, otherwise it is a no-op. lastSent advances before
// the write: a slow or failing write must not earn a burst of retries on
// the next eligible tick.
func (t *Transport) MaybeSend(data []byte, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSent) < t.interval {
		t.skipped++
		return false
	}
	t.lastSent = now

	if _, err := t.conn.Write(data); err != nil {
		t.logOnce(err, now)
		return true
	}
	t.sent++
	return true
}

// logOnce surfaces a send error the first time its cause shows up; later
// repeats of the same cause stay quiet until the cache forgets it.
func (t *Transport) logOnce(err error, now time.Time) {
	key := err.Error()
	if _, seen := t.errOnce.Get(key); seen {
		return
	}
	t.errOnce.Add(key, now)
	slog.Warn("telemetry send failed", "peer", t.peer, "error", err)
}

// Stats returns the datagram counters for status reporting.
func (t *Transport) Stats() (sent, skipped uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent, t.skipped
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close()
}
