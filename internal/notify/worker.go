package notify

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// Outbox is the drain surface the worker needs.
type Outbox interface {
	Drain(ctx context.Context, limit int, publish func(context.Context, OutboxEvent) error) (int, error)
}

// Publisher delivers one event to the status stream.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// Worker polls the outbox and publishes pending status events. Run it under
// an errgroup next to the HTTP server; it exits when the context does.
type Worker struct {
	outbox    Outbox
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewWorker(outbox Outbox, publisher Publisher, logger *slog.Logger) *Worker {
	return &Worker{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := w.outbox.Drain(ctx, w.batchSize, w.publisher.Publish)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
				continue
			}
			if n > 0 {
				w.logger.DebugContext(ctx, "published status events", "count", n)
			}
		}
	}
}
