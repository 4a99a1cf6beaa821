// Package logging configures the process logger. Diagnostics always go to
// stderr — stdout carries the JSON-RPC stream and a single stray log line
// would corrupt it — with an optional file copy for post-mortem reading.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Config selects level, format, and the optional log file.
type Config struct {
	Level      slog.Level
	OutputFile string // empty = stderr only
	JSONFormat bool   // text for interactive use, JSON for production
}

// Logger owns the slog handler plus the file it may be copying to.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

// NewLogger builds a Logger from cfg.
func NewLogger(cfg Config) (*Logger, error) {
	l := &Logger{}

	var out io.Writer = os.Stderr
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", cfg.OutputFile, err)
		}
		l.file = file
		out = io.MultiWriter(os.Stderr, file)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	l.slog = slog.New(handler)
	return l, nil
}

// Slog exposes the underlying slog.Logger; every engine takes one of
// these rather than a package-global, so tests can inject a discard
// logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// With returns a derived slog.Logger carrying extra context.
func (l *Logger) With(args ...any) *slog.Logger {
	return l.slog.With(args...)
}

// Close releases the log file, if one is open.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ParseLevel maps a config string onto a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch s {
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
