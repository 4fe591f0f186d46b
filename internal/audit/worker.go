package audit

import (
	"context"
	"log/slog"
	"time"
)

// BatchWriter delivers a batch of events to a durable destination.
type BatchWriter interface {
	WriteBatch(ctx context.Context, events []Event) error
}

// Worker drains a RingBuffer into a BatchWriter until its context ends,
// then flushes what is left using a short grace period.
type Worker struct {
	buffer    *RingBuffer
	writer    BatchWriter
	logger    *slog.Logger
	batchSize int
	grace     time.Duration
}

func NewWorker(buffer *RingBuffer, writer BatchWriter, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{buffer: buffer, writer: writer, logger: logger, batchSize: 100, grace: 5 * time.Second}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.grace)
			w.drain(flushCtx)
			cancel()
			return nil
		case <-w.buffer.Ready():
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		batch := w.buffer.DequeueBatch(w.batchSize)
		if len(batch) == 0 {
			return
		}
		if err := w.writer.WriteBatch(ctx, batch); err != nil {
			w.logger.ErrorContext(ctx, "audit batch delivery failed",
				"events", len(batch),
				"error", err,
			)
			return
		}
	}
}
