package audit

import (
	"context"
	"log/slog"
	"time"

	"prodir/pkg/requestcontext"
)

// Sink persists or forwards audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher fans events out to every sink. Emission is best-effort: a
// failing sink is logged and never fails the workflow operation.
type Publisher struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewPublisher(logger *slog.Logger, sinks ...Sink) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{sinks: sinks, logger: logger}
}

func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx).UTC()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.UserID(ctx)
	}
	for _, sink := range p.sinks {
		if err := sink.Append(ctx, event); err != nil {
			p.logger.ErrorContext(ctx, "audit emission failed",
				"action", event.Action,
				"profile_id", event.ProfileID,
				"request_id", event.RequestID,
				"error", err,
			)
		}
	}
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, string(e.Action),
		"log_type", "audit",
		"profile_id", e.ProfileID.String(),
		"actor_id", e.ActorID,
		"role", e.Role,
		"from", e.From,
		"to", e.To,
		"request_id", e.RequestID,
		"timestamp", e.Timestamp.Format(time.RFC3339Nano),
	)
	return nil
}
