// Package telemetry builds the logging, tracing and metrics plumbing shared by
// the pass manager and the CLI.
package telemetry

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger at level. Development loggers use the console
// encoder with caller and stack information.
func NewLogger(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// MustLogger is NewLogger with a nop fallback.
func MustLogger(level string, development bool) *zap.Logger {
	logger, err := NewLogger(level, development)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
