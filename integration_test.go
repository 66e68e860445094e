package main

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBridgeToListenerEndToEnd runs the whole pipeline on loopback for
// every encoder strategy: mock source, phase machine, bridge tick loop,
// UDP transport, listener decode.
func TestBridgeToListenerEndToEnd(t *testing.T) {
	for _, encName := range []string{"json", "minimal", "msgpack"} {
		t.Run(encName, func(t *testing.T) {
			enc, err := NewPayloadEncoder(encName)
			require.NoError(t, err)

			l := NewListenerService(0, enc)
			require.NoError(t, l.Start())
			t.Cleanup(l.Stop)
			port := l.Addr().(*net.UDPAddr).Port

			tr, err := NewTransport("127.0.0.1", port, 50*time.Millisecond)
			require.NoError(t, err)
			t.Cleanup(func() { tr.Close() })

			mock := &MockSignalSource{}
			mock.Set(snapAtGate())

			b := NewBridgeService(mock, NewPhaseMachine(DefaultPhaseThresholds()), enc, tr, nil, 50*time.Millisecond)
			require.NoError(t, b.Start())
			t.Cleanup(b.Stop)

			require.Eventually(t, func() bool {
				ok, _, lastStatus, _ := l.Stats()
				return ok >= 1 && lastStatus == "BST"
			}, 3*time.Second, 10*time.Millisecond, "the boarding payload should arrive")

			// Start the engines; the phase change should reach the wire.
			engines := snapAtGate()
			engines.EngineRunning = true
			mock.Set(engines)

			require.Eventually(t, func() bool {
				_, _, lastStatus, _ := l.Stats()
				return lastStatus == "OFB"
			}, 3*time.Second, 10*time.Millisecond, "the phase change should reach the listener")

			_, bad, _, _ := l.Stats()
			assert.Equal(t, uint64(0), bad, "every payload should decode")
		})
	}
}

// TestBridgeRecordsTrackPoints verifies recording piggybacks on the
// bridge tick when a recorder is wired in.
func TestBridgeRecordsTrackPoints(t *testing.T) {
	_, port := newTestReceiver(t)
	tr, err := NewTransport("127.0.0.1", port, 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })

	rec := newTestRecorder(t)

	mock := &MockSignalSource{}
	mock.Set(snapAtGate())
	enc, err := NewPayloadEncoder("json")
	require.NoError(t, err)

	b := NewBridgeService(mock, NewPhaseMachine(DefaultPhaseThresholds()), enc, tr, rec, time.Second)

	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	b.Tick(base)
	b.Tick(base.Add(time.Second))

	assert.Equal(t, 2, rec.Count())
}
