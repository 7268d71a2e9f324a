package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logging levels accepted from config
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Environments: text output for humans in dev, JSON in prod
const (
	EnvDevelopment = "dev"
	EnvProduction  = "prod"
)

// Logger interface defines the logging contract
// Every component receives it through its constructor
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

// New creates logger that fits the environment: text for dev, JSON otherwise
// Log records are written to stderr, so stdout stays free for command output
func New(env string, level string) (Logger, error) {
	return NewWithWriter(os.Stderr, env, level)
}

// NewWithWriter is the same as New but writes to w
func NewWithWriter(w io.Writer, env string, level string) (Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   true,
		ReplaceAttr: replace,
	}

	var handler slog.Handler
	switch strings.ToLower(env) {
	case EnvDevelopment, "development":
		handler = slog.NewTextHandler(w, opts)
	case EnvProduction, "production", "":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown environment %q", env)
	}

	return &slogLogger{logger: slog.New(handler)}, nil
}

// NewTextLogger creates a new text logger with the specified level
func NewTextLogger(level string) (Logger, error) {
	return New(EnvDevelopment, level)
}

// NewJSONLogger creates a new JSON logger with the specified level
func NewJSONLogger(level string) (Logger, error) {
	return New(EnvProduction, level)
}

// NewNoOpLogger creates a logger that discards all log messages
func NewNoOpLogger() Logger {
	return &slogLogger{logger: slog.New(slog.DiscardHandler)}
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelInfo:
		return slog.LevelInfo, nil
	case LevelWarn:
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
