package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects level, encoding and destination.
type Config struct {
	Level     string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format    string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	Output    string `mapstructure:"output"` // "stdout", "stderr" or a file path
	Component string `mapstructure:"component"`
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: "stdout"}
}

// Logger wraps slog.Logger with component scoping.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

func New(cfg Config) *Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer
	var closer io.Closer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out, closer = f, f
		} else {
			out = os.Stdout
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}

	l := slog.New(h)
	if cfg.Component != "" {
		l = l.With("component", cfg.Component)
	}
	return &Logger{Logger: l, closer: closer}
}

// Nop discards everything. Used by tests and tools.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithComponent returns a child logger tagged with component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// With returns a child logger carrying extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
