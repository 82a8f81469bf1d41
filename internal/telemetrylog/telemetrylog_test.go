package telemetrylog

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestLoggerLevels(t *testing.T) {
	h := &recordingHandler{}
	logger := New(slog.New(h))
	ctx := context.Background()

	logger.Debug(ctx, "debug msg", "k", "v")
	logger.Info(ctx, "info msg")
	logger.Warn(ctx, "warn msg")
	logger.Error(ctx, "error msg", "err", "boom")

	require.Len(t, h.records, 4)
	require.Equal(t, slog.LevelDebug, h.records[0].Level)
	require.Equal(t, "debug msg", h.records[0].Message)
	require.Equal(t, slog.LevelInfo, h.records[1].Level)
	require.Equal(t, slog.LevelWarn, h.records[2].Level)
	require.Equal(t, slog.LevelError, h.records[3].Level)
}

func TestNewDefaultsToStdLogger(t *testing.T) {
	logger := New(nil)
	require.NotNil(t, logger)
	logger.Info(context.Background(), "no panic expected")
}
