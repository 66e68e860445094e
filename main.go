package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const sourceRetryInterval = 5 * time.Second

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default: user config dir)")
		listenPort  = flag.Int("listen", 0, "run as a debug receiver on this UDP port instead of bridging")
		exportTrack = flag.String("export-track", "", "export the recorded track to this CSV file and exit")
		checkUpdate = flag.Bool("check-update", false, "check for a newer release and exit")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	settings := NewSettingsService(*configPath)
	cfg := settings.Config()
	setupLogging(cfg.Log)

	if *checkUpdate {
		runUpdateCheck()
		return
	}

	encoder, err := NewPayloadEncoder(cfg.Bridge.Encoder)
	if err != nil {
		log.Fatal("failed to create encoder: ", err)
	}

	if *listenPort > 0 {
		runListener(*listenPort, encoder)
		return
	}

	if *exportTrack != "" {
		runExportTrack(cfg.Recording.Path, *exportTrack)
		return
	}

	si, err := NewSingleInstance()
	if err != nil {
		log.Fatal(err)
	}
	defer si.Close()

	transport, err := NewTransport(cfg.Bridge.Host, cfg.Bridge.Port, cfg.Bridge.SendInterval())
	if err != nil {
		log.Fatal("failed to open transport: ", err)
	}
	defer transport.Close()

	var recorder *TrackRecorder
	if cfg.Recording.Enabled {
		db, err := initTrackDB(cfg.Recording.Path)
		if err != nil {
			log.Fatal("failed to open track db: ", err)
		}
		recorder = NewTrackRecorder(db)
		defer recorder.Close()
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	source := connectSource(cfg.Source, interrupt)
	if source == nil {
		return
	}
	defer source.Disconnect()

	machine := NewPhaseMachine(cfg.Phases.Thresholds())
	bridge := NewBridgeService(source, machine, encoder, transport, recorder, cfg.Bridge.TickInterval())
	if err := bridge.Start(); err != nil {
		log.Fatal(err)
	}
	defer bridge.Stop()

	presence := NewPresenceService(settings, bridge)
	presence.Start()
	defer presence.Stop()

	<-interrupt
	slog.Info("shutting down")
}

// buildSources returns the sources to try, in order. The RREF source
// goes last under auto selection: a UDP dial cannot fail without a
// simulator, so anything verifiable has to get its chance first.
func buildSources(cfg SourceConfig) []SignalSource {
	switch cfg.Type {
	case "xplane":
		return []SignalSource{NewXPlaneSource(cfg.XPlaneHost, cfg.XPlanePort)}
	case "xplane12":
		return []SignalSource{NewXPlane12Source(cfg.XPlane12Host, cfg.XPlane12Port)}
	case "simconnect":
		return []SignalSource{NewSimConnectSource()}
	default: // "auto"
		return []SignalSource{
			NewSimConnectSource(),
			NewXPlane12Source(cfg.XPlane12Host, cfg.XPlane12Port),
			NewXPlaneSource(cfg.XPlaneHost, cfg.XPlanePort),
		}
	}
}

// connectSource keeps trying the configured sources until one connects
// or the process is interrupted.
func connectSource(cfg SourceConfig, interrupt <-chan os.Signal) SignalSource {
	for {
		for _, src := range buildSources(cfg) {
			if err := src.Connect(); err != nil {
				slog.Debug("source unavailable", "source", src.Name(), "error", err)
				continue
			}
			return src
		}

		slog.Info("no simulator found, retrying", "interval", sourceRetryInterval)
		select {
		case <-interrupt:
			return nil
		case <-time.After(sourceRetryInterval):
		}
	}
}

func runListener(port int, encoder PayloadEncoder) {
	listener := NewListenerService(port, encoder)
	if err := listener.Start(); err != nil {
		log.Fatal(err)
	}
	defer listener.Stop()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
}

func runExportTrack(dbPath, outPath string) {
	db, err := initTrackDB(dbPath)
	if err != nil {
		log.Fatal("failed to open track db: ", err)
	}
	recorder := NewTrackRecorder(db)
	defer recorder.Close()

	if err := recorder.ExportCSV(outPath); err != nil {
		log.Fatal("failed to export track: ", err)
	}
	fmt.Println("track exported to", outPath)
}

func runUpdateCheck() {
	svc := &UpdateService{}
	info, err := svc.CheckForUpdate()
	if err != nil {
		log.Fatal("update check failed: ", err)
	}
	if info.UpdateAvailable {
		fmt.Printf("update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
	} else {
		fmt.Printf("up to date (%s)\n", info.CurrentVersion)
	}
}
