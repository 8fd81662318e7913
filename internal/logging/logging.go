// Package logging builds the slog loggers the client uses for connection
// diagnostics. The library never installs a global default; callers either
// pass their own logger or get one built from config here.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the level, format and sinks of the client diagnostics
// logger.
type Config struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`

	// Format is text or json. Default: text.
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`

	// File, when set, duplicates diagnostics into the given path (JSON
	// lines) in addition to the console sink.
	File string `yaml:"file" envconfig:"LOG_FILE"`
}

// Default returns the stock diagnostics configuration.
func Default() Config {
	return Config{Level: "info", Format: "text"}
}

// New builds a logger writing to w (os.Stderr when nil), plus the configured
// file sink when one is set.
func New(cfg Config, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var console slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		console = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case "json":
		console = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	sinks := []slog.Handler{console}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("logging: opening %s: %w", cfg.File, err)
		}
		sinks = append(sinks, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(NewDiagHandler(level, sinks...)), nil
}

// ParseLevel maps a config string onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", s)
	}
}
