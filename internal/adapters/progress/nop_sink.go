package progress

import (
	"context"
	"log/slog"

	"github.com/chainsmith/chasm/internal/usecase"
)

// NopSink is a no-op implementation of ProgressSink
type NopSink struct{}

// NewNopSink creates a new no-op progress sink
func NewNopSink() usecase.ProgressSink {
	return &NopSink{}
}

func (n *NopSink) OnProgress(ctx context.Context, event usecase.ProgressEvent) {}
func (n *NopSink) Info(message string)                                         {}
func (n *NopSink) Error(message string)                                        {}

// LogSink forwards progress to a logger. Used by the backend service, where
// nobody watches a terminal.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a log-backed progress sink. A nil logger resolves to
// slog.Default() on each call, so the sink follows later SetDefault calls.
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		return &LogSink{}
	}
	return &LogSink{log: log.With("component", "progress")}
}

func (s *LogSink) logger() *slog.Logger {
	if s.log == nil {
		return slog.Default().With("component", "progress")
	}
	return s.log
}

func (s *LogSink) OnProgress(ctx context.Context, event usecase.ProgressEvent) {
	if event.Message != "" {
		s.logger().DebugContext(ctx, event.Message, "stage", event.Stage)
	}
}

func (s *LogSink) Info(message string)  { s.logger().Info(message) }
func (s *LogSink) Error(message string) { s.logger().Error(message) }

var (
	_ usecase.ProgressSink = (*NopSink)(nil)
	_ usecase.ProgressSink = (*LogSink)(nil)
)
