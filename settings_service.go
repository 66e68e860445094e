package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const configDirName = "phpvms-linux-client"

type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Source    SourceConfig    `yaml:"source"`
	Phases    PhaseConfig     `yaml:"phases"`
	Recording RecordingConfig `yaml:"recording"`
	Presence  PresenceConfig  `yaml:"presence"`
	Log       LogConfig       `yaml:"log"`
}

type BridgeConfig struct {
	Host                string  `yaml:"host"`
	Port                int     `yaml:"port"`
	SendIntervalSeconds float64 `yaml:"send_interval_seconds"`
	TickIntervalSeconds float64 `yaml:"tick_interval_seconds"`
	Encoder             string  `yaml:"encoder"`
}

func (b BridgeConfig) SendInterval() time.Duration {
	return time.Duration(b.SendIntervalSeconds * float64(time.Second))
}

func (b BridgeConfig) TickInterval() time.Duration {
	return time.Duration(b.TickIntervalSeconds * float64(time.Second))
}

type SourceConfig struct {
	Type         string `yaml:"type"` // auto, xplane, xplane12, simconnect
	XPlaneHost   string `yaml:"xplane_host"`
	XPlanePort   int    `yaml:"xplane_port"`
	XPlane12Host string `yaml:"xplane12_host"`
	XPlane12Port int    `yaml:"xplane12_port"`
}

type PhaseConfig struct {
	TaxiSpeedKt      float64 `yaml:"taxi_speed_kt"`
	TaxiConfirmKt    float64 `yaml:"taxi_confirm_kt"`
	TakeoffIASKt     float64 `yaml:"takeoff_ias_kt"`
	TakeoffVSFpm     float64 `yaml:"takeoff_vs_fpm"`
	ClimboutAGLFt    float64 `yaml:"climbout_agl_ft"`
	CruiseAGLFt      float64 `yaml:"cruise_agl_ft"`
	CruiseSpeedKt    float64 `yaml:"cruise_speed_kt"`
	ApproachAGLFt    float64 `yaml:"approach_agl_ft"`
	ApproachVSFpm    float64 `yaml:"approach_vs_fpm"`
	StopSpeedKt      float64 `yaml:"stop_speed_kt"`
	BounceAGLFt      float64 `yaml:"bounce_agl_ft"`
	TaxiDwellSeconds float64 `yaml:"taxi_dwell_seconds"`
	StopDwellSeconds float64 `yaml:"stop_dwell_seconds"`
}

func (p PhaseConfig) Thresholds() PhaseThresholds {
	return PhaseThresholds{
		TaxiSpeedKt:   p.TaxiSpeedKt,
		TaxiConfirmKt: p.TaxiConfirmKt,
		TakeoffIASKt:  p.TakeoffIASKt,
		TakeoffVSFpm:  p.TakeoffVSFpm,
		ClimboutAGLFt: p.ClimboutAGLFt,
		CruiseAGLFt:   p.CruiseAGLFt,
		CruiseSpeedKt: p.CruiseSpeedKt,
		ApproachAGLFt: p.ApproachAGLFt,
		ApproachVSFpm: p.ApproachVSFpm,
		StopSpeedKt:   p.StopSpeedKt,
		BounceAGLFt:   p.BounceAGLFt,
		TaxiDwell:     time.Duration(p.TaxiDwellSeconds * float64(time.Second)),
		StopDwell:     time.Duration(p.StopDwellSeconds * float64(time.Second)),
	}
}

type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // empty means the default under the config dir
}

type PresenceConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

func DefaultConfig() Config {
	t := DefaultPhaseThresholds()
	return Config{
		Bridge: BridgeConfig{
			Host:                "127.0.0.1",
			Port:                47777,
			SendIntervalSeconds: 0.5,
			TickIntervalSeconds: 1.0,
			Encoder:             "json",
		},
		Source: SourceConfig{
			Type:         "auto",
			XPlaneHost:   "127.0.0.1",
			XPlanePort:   49000,
			XPlane12Host: "127.0.0.1",
			XPlane12Port: 8086,
		},
		Phases: PhaseConfig{
			TaxiSpeedKt:      t.TaxiSpeedKt,
			TaxiConfirmKt:    t.TaxiConfirmKt,
			TakeoffIASKt:     t.TakeoffIASKt,
			TakeoffVSFpm:     t.TakeoffVSFpm,
			ClimboutAGLFt:    t.ClimboutAGLFt,
			CruiseAGLFt:      t.CruiseAGLFt,
			CruiseSpeedKt:    t.CruiseSpeedKt,
			ApproachAGLFt:    t.ApproachAGLFt,
			ApproachVSFpm:    t.ApproachVSFpm,
			StopSpeedKt:      t.StopSpeedKt,
			BounceAGLFt:      t.BounceAGLFt,
			TaxiDwellSeconds: t.TaxiDwell.Seconds(),
			StopDwellSeconds: t.StopDwell.Seconds(),
		},
		Recording: RecordingConfig{Enabled: false},
		Presence:  PresenceConfig{Enabled: false},
		Log:       LogConfig{Level: "info"},
	}
}

// SettingsService owns the YAML config file. Missing keys keep their
// defaults, so a partial file is fine.
type SettingsService struct {
	mu       sync.RWMutex
	cfg      Config
	filePath string
}

// NewSettingsService loads the config at path, or the default location
// under the user config dir when path is empty.
func NewSettingsService(path string) *SettingsService {
	if path == "" {
		configDir, _ := os.UserConfigDir()
		path = filepath.Join(configDir, configDirName, "config.yaml")
	}
	s := &SettingsService{
		filePath: path,
		cfg:      DefaultConfig(),
	}
	s.load()
	return s
}

func (s *SettingsService) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *SettingsService) Update(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return s.save()
}

// Save writes the current config, creating the file with defaults on
// first run.
func (s *SettingsService) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func (s *SettingsService) load() {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return
	}
	yaml.Unmarshal(data, &s.cfg)
}

func (s *SettingsService) save() error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(s.filePath, data, 0o644)
}
