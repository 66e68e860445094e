//go:build !windows

package main

import (
	"errors"
	"time"
)

// SimConnectSource is a stub on platforms without SimConnect. Connect
// always fails, which lets automatic source selection fall through to
// the X-Plane sources.
type SimConnectSource struct{}

func NewSimConnectSource() SignalSource {
	return &SimConnectSource{}
}

func (s *SimConnectSource) Name() string {
	return "simconnect"
}

func (s *SimConnectSource) Connect() error {
	return errors.New("SimConnect is only available on Windows")
}

func (s *SimConnectSource) Disconnect() error {
	return nil
}

func (s *SimConnectSource) Snapshot() SignalSnapshot {
	return SignalSnapshot{}
}

func (s *SimConnectSource) LastReceived() time.Time {
	return time.Time{}
}
