package lineage

import (
	"context"
	"log/slog"
)

// LogSink writes lineage events to the structured log. It is the default sink
// when no kafka brokers are configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, event Event) error {
	s.logger.Info("lineage event",
		"action", event.Action,
		"registry", event.Registry,
		"new_registry", event.NewRegistry,
		"funds_used", event.FundsUsed,
		"transferred", event.Transferred,
		"cell_count", event.CellCount)
	return nil
}
