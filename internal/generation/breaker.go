package generation

import (
	"context"
	"log/slog"

	dErrors "prodir/pkg/domain-errors"
	"prodir/pkg/platform/circuit"
)

// Guarded fails fast while the provider keeps returning transient errors,
// instead of queueing every request behind a full backoff cycle.
type Guarded struct {
	next    Generator
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(next Generator, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Generate(ctx context.Context, prompt string) ([]Candidate, error) {
	if !g.breaker.Allow() {
		return nil, dErrors.New(dErrors.CodeUpstream, "generation provider unavailable")
	}
	out, err := g.next.Generate(ctx, prompt)
	switch {
	case err == nil:
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "generation circuit closed", "breaker", g.breaker.Name())
		}
	case IsTransient(err):
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "generation circuit opened", "breaker", g.breaker.Name(), "error", err)
		}
	}
	return out, err
}
