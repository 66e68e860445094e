package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSettingsDefaults verifies a missing config file yields the full
// default configuration.
func TestSettingsDefaults(t *testing.T) {
	s := NewSettingsService(filepath.Join(t.TempDir(), "config.yaml"))
	cfg := s.Config()

	assert.Equal(t, "127.0.0.1", cfg.Bridge.Host)
	assert.Equal(t, 47777, cfg.Bridge.Port)
	assert.Equal(t, "json", cfg.Bridge.Encoder)
	assert.Equal(t, 500*time.Millisecond, cfg.Bridge.SendInterval())
	assert.Equal(t, time.Second, cfg.Bridge.TickInterval())
	assert.Equal(t, "auto", cfg.Source.Type)
	assert.Equal(t, 49000, cfg.Source.XPlanePort)
	assert.Equal(t, 8086, cfg.Source.XPlane12Port)
	assert.Equal(t, 50.0, cfg.Phases.TakeoffIASKt)
	assert.False(t, cfg.Recording.Enabled)
	assert.False(t, cfg.Presence.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

// TestSettingsPartialFile verifies keys absent from the file keep their
// defaults while present keys override them.
func TestSettingsPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := "bridge:\n  port: 9999\n  encoder: msgpack\nphases:\n  takeoff_ias_kt: 60\n"
	require.NoError(t, os.WriteFile(path, []byte(partial), 0o644))

	cfg := NewSettingsService(path).Config()

	assert.Equal(t, 9999, cfg.Bridge.Port)
	assert.Equal(t, "msgpack", cfg.Bridge.Encoder)
	assert.Equal(t, 60.0, cfg.Phases.TakeoffIASKt)
	assert.Equal(t, "127.0.0.1", cfg.Bridge.Host, "keys missing from the file should keep defaults")
	assert.Equal(t, 0.5, cfg.Bridge.SendIntervalSeconds)
	assert.Equal(t, 5.0, cfg.Phases.StopDwellSeconds)
}

// TestSettingsSaveRoundTrip verifies Update persists the config and a
// fresh service reads the same values back.
func TestSettingsSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	s := NewSettingsService(path)
	cfg := s.Config()
	cfg.Bridge.Port = 50123
	cfg.Bridge.Encoder = "minimal"
	cfg.Recording.Enabled = true
	assert.Equal(t, 47777, s.Config().Bridge.Port, "Config should return a copy")
	require.NoError(t, s.Update(cfg))

	_, err := os.Stat(path)
	require.NoError(t, err, "config file should exist after save")

	reloaded := NewSettingsService(path).Config()
	assert.Equal(t, 50123, reloaded.Bridge.Port)
	assert.Equal(t, "minimal", reloaded.Bridge.Encoder)
	assert.True(t, reloaded.Recording.Enabled)
}

func TestPhaseConfigThresholds(t *testing.T) {
	p := PhaseConfig{
		TaxiSpeedKt:      2.0,
		TakeoffIASKt:     55.0,
		TaxiDwellSeconds: 2.5,
		StopDwellSeconds: 4.0,
	}

	th := p.Thresholds()
	assert.Equal(t, 2.0, th.TaxiSpeedKt)
	assert.Equal(t, 55.0, th.TakeoffIASKt)
	assert.Equal(t, 2500*time.Millisecond, th.TaxiDwell)
	assert.Equal(t, 4*time.Second, th.StopDwell)
}
