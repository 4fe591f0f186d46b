package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodir/pkg/domain"
	"prodir/pkg/testutil"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, Policy) (*Result, error) {
	return nil, errors.New("redis down")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := Policy{Limit: 2, Window: time.Minute}

	t.Run("rejects the caller over the limit", func(t *testing.T) {
		var rejected []string
		m := New(NewMemoryStore(), logger, WithRejectObserver(func(scope string) { rejected = append(rejected, scope) }))
		h := m.Limit("reviews", policy)(okHandler())

		for range 2 {
			rr := testutil.DoRequest(h, testutil.WithCaller(testutil.NewRequest(t, http.MethodPost, "/"), "u1", domain.RoleUser))
			require.Equal(t, http.StatusOK, rr.Code)
		}
		rr := testutil.DoRequest(h, testutil.WithCaller(testutil.NewRequest(t, http.MethodPost, "/"), "u1", domain.RoleUser))
		testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limited")
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))
		assert.Equal(t, []string{"reviews"}, rejected)

		rr = testutil.DoRequest(h, testutil.WithCaller(testutil.NewRequest(t, http.MethodPost, "/"), "u2", domain.RoleUser))
		assert.Equal(t, http.StatusOK, rr.Code, "other callers keep their own budget")
	})

	t.Run("anonymous callers are keyed by address", func(t *testing.T) {
		h := New(NewMemoryStore(), logger).Limit("public", Policy{Limit: 1, Window: time.Minute})(okHandler())

		first := httptest.NewRequest(http.MethodGet, "/", nil)
		first.RemoteAddr = "10.0.0.1:5000"
		second := httptest.NewRequest(http.MethodGet, "/", nil)
		second.RemoteAddr = "10.0.0.1:6000"
		other := httptest.NewRequest(http.MethodGet, "/", nil)
		other.RemoteAddr = "10.0.0.2:5000"

		assert.Equal(t, http.StatusOK, testutil.DoRequest(h, first).Code)
		assert.Equal(t, http.StatusTooManyRequests, testutil.DoRequest(h, second).Code)
		assert.Equal(t, http.StatusOK, testutil.DoRequest(h, other).Code)
	})

	t.Run("store failure lets the request through", func(t *testing.T) {
		h := New(failingStore{}, logger).Limit("reviews", policy)(okHandler())
		rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodPost, "/"))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("disabled middleware is a pass-through", func(t *testing.T) {
		h := New(failingStore{}, logger, WithDisabled(true)).Limit("reviews", Policy{Limit: 1, Window: time.Minute})(okHandler())
		for range 3 {
			assert.Equal(t, http.StatusOK, testutil.DoRequest(h, testutil.NewRequest(t, http.MethodPost, "/")).Code)
		}
	})
}
