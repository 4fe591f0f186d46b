package generation

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	dErrors "prodir/pkg/domain-errors"
)

// BackoffPolicy bounds how often and how fast a transient generation
// failure is retried.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// Jitter is the proportional spread added on top of each delay, in [0,1].
	Jitter float64
}

// DefaultBackoffPolicy allows three attempts, 2s then 4s apart.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
		Jitter:      0.2,
	}
}

// Delay returns the wait before attempt n+1, after n failed attempts
// (n >= 1), without jitter.
func (p BackoffPolicy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	d := p.BaseDelay
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * mult)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// jittered spreads d by up to Jitter*d.
func (p BackoffPolicy) jittered(d time.Duration) time.Duration {
	factor := min(max(p.Jitter, 0), 1)
	if factor == 0 || d <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*factor*float64(d)) // #nosec G404 -- non-cryptographic jitter
}

// AttemptObserver is told about every finished attempt.
type AttemptObserver func(attempt int, err error)

// Retrying wraps a Generator with the backoff policy. Only transient
// provider errors are retried.
type Retrying struct {
	next     Generator
	policy   BackoffPolicy
	logger   *slog.Logger
	observer AttemptObserver
	sleep    func(ctx context.Context, d time.Duration) error
}

type RetryOption func(*Retrying)

func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(r *Retrying) { r.logger = logger }
}

func WithAttemptObserver(o AttemptObserver) RetryOption {
	return func(r *Retrying) { r.observer = o }
}

func NewRetrying(next Generator, policy BackoffPolicy, opts ...RetryOption) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	r := &Retrying{next: next, policy: policy, sleep: sleepCtx}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

func (r *Retrying) Generate(ctx context.Context, prompt string) ([]Candidate, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		out, err := r.next.Generate(ctx, prompt)
		if r.observer != nil {
			r.observer(attempt, err)
		}
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeUpstream, "generation cancelled")
		}
		if !IsTransient(err) {
			return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "generation failed")
		}
		if attempt == r.policy.MaxAttempts {
			break
		}
		delay := r.policy.jittered(r.policy.Delay(attempt))
		r.logger.WarnContext(ctx, "generation provider unavailable, retrying",
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"backoff", delay,
			"error", err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "generation cancelled")
		}
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeUpstream, "generation provider unavailable")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
