// Package logger builds the process-wide slog logger from configuration.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"oncocentre/internal/platform/config"
)

// Logger is a slog.Logger whose level can be changed after construction.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	out   io.Closer
}

// New returns a text or JSON logger writing to stdout, stderr or a file.
func New(cfg config.LoggingConfig) (*Logger, error) {
	var (
		w      io.Writer
		closer io.Closer
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		w, closer = f, f
	}
	return NewWithWriter(w, closer, cfg.Level, cfg.Format), nil
}

// NewWithWriter is New for an already opened writer. closer may be nil.
func NewWithWriter(w io.Writer, closer io.Closer, level, format string) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(ParseLevel(level))
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h), level: lv, out: closer}
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR to slog levels. Unknown values are INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the minimum level for every logger derived from l.
func (l *Logger) SetLevel(level string) {
	l.level.Set(ParseLevel(level))
}

func (l *Logger) Close() error {
	if l.out == nil {
		return nil
	}
	return l.out.Close()
}
