package lineage

import (
	"context"
	"log/slog"

	"protocell/pkg/requestcontext"
)

// Buffer is a channel-backed Publisher. Emit enqueues without blocking; when
// the buffer is full the event is dropped with a warning, which is acceptable
// for a notification side channel.
type Buffer struct {
	events chan Event
	logger *slog.Logger
}

func NewBuffer(size int, logger *slog.Logger) *Buffer {
	return &Buffer{events: make(chan Event, size), logger: logger}
}

func (b *Buffer) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		// Request-scoped time when the middleware stamped one, wall clock
		// otherwise.
		event.Timestamp = requestcontext.Now(ctx)
	}
	select {
	case b.events <- event:
	default:
		b.logger.Warn("lineage buffer full, dropping event", "action", event.Action)
	}
}

// Events exposes the inbox for the draining worker.
func (b *Buffer) Events() <-chan Event {
	return b.events
}

// Worker drains a buffer into a sink. It keeps background processing
// testable without wiring queue implementations into domain logic.
type Worker struct {
	inbox  <-chan Event
	sink   Sink
	logger *slog.Logger
}

func NewWorker(inbox <-chan Event, sink Sink, logger *slog.Logger) *Worker {
	return &Worker{inbox: inbox, sink: sink, logger: logger}
}

// Run consumes events until the context is cancelled. Sink failures are
// logged and skipped; the lineage channel never escalates.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Publish(ctx, event); err != nil {
				w.logger.Error("lineage publish failed", "action", event.Action, "error", err)
			}
		}
	}
}
