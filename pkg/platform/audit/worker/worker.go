package worker

import (
	"context"

	audit "visitid/pkg/platform/audit"
)

// Worker drains audit events from an inbox channel into a sink publisher.
// It keeps background delivery testable without wiring broker clients into
// services.
type Worker struct {
	sink  audit.Publisher
	inbox <-chan audit.Event
}

func New(sink audit.Publisher, inbox <-chan audit.Event) *Worker {
	return &Worker{sink: sink, inbox: inbox}
}

// Run consumes until ctx is cancelled. Sink failures abort the worker so the
// supervising errgroup can surface them.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Publish(ctx, event); err != nil {
				return err
			}
		}
	}
}
