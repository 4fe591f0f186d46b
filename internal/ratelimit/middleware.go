package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	dErrors "prodir/pkg/domain-errors"
	"prodir/pkg/platform/httputil"
	"prodir/pkg/requestcontext"
)

// Middleware applies per-caller policies to routes. A failing store lets
// requests through rather than taking the route down with it.
type Middleware struct {
	store    Store
	logger   *slog.Logger
	disabled bool
	onReject func(scope string)
}

type Option func(*Middleware)

// WithDisabled turns every Limit into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) { m.disabled = disabled }
}

// WithRejectObserver is called with the scope of every rejected request.
func WithRejectObserver(fn func(scope string)) Option {
	return func(m *Middleware) { m.onReject = fn }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Middleware{store: store, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Limit throttles the wrapped handler under scope. Callers are keyed by
// their resolved user id, falling back to the client address.
func (m *Middleware) Limit(scope string, policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m.disabled || policy.Limit <= 0 || policy.Window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := scope + ":" + callerKey(r)

			result, err := m.store.Allow(ctx, key, policy)
			if err != nil {
				m.logger.ErrorContext(ctx, "rate limit check failed",
					"error", err,
					"scope", scope,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if !result.Allowed {
				if m.onReject != nil {
					m.onReject(scope)
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if id := requestcontext.UserID(r.Context()); id != "" {
		return "user:" + string(id)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

func addRateLimitHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
