// Package telemetrylog adapts log/slog to the runtime's telemetry.Logger
// interface, mirroring the way runtime/agent/telemetry/clue.go adapts
// goa.design/clue/log: a small struct implementing the four level methods by
// delegating to a single underlying backend.
package telemetrylog

import (
	"context"
	"log/slog"

	"github.com/orchestrax/workflow-orchestrator/runtime/agent/telemetry"
)

// SlogLogger implements telemetry.Logger over a *slog.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// New constructs a telemetry.Logger backed by the given slog logger. Pass
// nil to use slog.Default().
func New(logger *slog.Logger) telemetry.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// Debug logs at debug level with structured key-value pairs.
func (l *SlogLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	l.logger.DebugContext(ctx, msg, keyvals...)
}

// Info logs at info level with structured key-value pairs.
func (l *SlogLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	l.logger.InfoContext(ctx, msg, keyvals...)
}

// Warn logs at warn level with structured key-value pairs.
func (l *SlogLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	l.logger.WarnContext(ctx, msg, keyvals...)
}

// Error logs at error level with structured key-value pairs.
func (l *SlogLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	l.logger.ErrorContext(ctx, msg, keyvals...)
}
