package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging configures the process-wide slog logger. When a log dir is
// configured, records go to a size-rotated file there as well as stderr.
func setupLogging(cfg LogConfig) {
	lvl := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "invalid log level %q, using info\n", cfg.Level)
	}

	var w io.Writer = os.Stderr
	if cfg.Dir != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, "bridge.log"),
			MaxSize:    32, // MB
			MaxBackups: 2,
		})
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}
