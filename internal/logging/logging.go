// Package logging builds the process slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// File, when set, receives a copy of every record.
	File   string
	Stderr io.Writer
}

// New constructs a logger. The returned close func releases the log file.
func New(opts Options) (*slog.Logger, func() error, error) {
	closeFn := func() error { return nil }

	var w io.Writer = opts.Stderr
	if w == nil {
		w = os.Stderr
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("ensure log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(w, f)
		closeFn = f.Close
	}

	level := ParseLevel(opts.Level)
	hopts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		handler = slog.NewJSONHandler(w, hopts)
	case "console", "text", "":
		handler = slog.NewTextHandler(w, hopts)
	default:
		_ = closeFn()
		return nil, nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return slog.New(handler), closeFn, nil
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
