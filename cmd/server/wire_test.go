package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"prodir/internal/platform/config"
	"prodir/pkg/domain"
	"prodir/pkg/testutil"
)

func TestRouterWiring(t *testing.T) {
	cfg := config.New()
	cfg.Auth.HMACSecret = "wire-secret"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	testutil.Given(t, "a server wired against in-memory stores", func(t *testing.T) {
		app, err := wire(context.Background(), cfg, logger)
		require.NoError(t, err)
		t.Cleanup(app.close)
		require.Nil(t, app.auditWorker, "no brokers configured")

		testutil.When(t, "probing operational endpoints", func(t *testing.T) {
			testutil.Then(t, "health reports ok", func(t *testing.T) {
				rr := testutil.DoRequest(app.router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
				testutil.AssertStatusOK(t, rr)
				testutil.AssertJSONContains(t, rr, "status", "ok")
			})

			testutil.Then(t, "metrics are exposed", func(t *testing.T) {
				rr := testutil.DoRequest(app.router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
				testutil.AssertStatusOK(t, rr)
			})
		})

		testutil.When(t, "calling the API", func(t *testing.T) {
			testutil.Then(t, "published listings are public", func(t *testing.T) {
				rr := testutil.DoRequest(app.router, testutil.NewRequest(t, http.MethodGet, "/published"))
				testutil.AssertStatusOK(t, rr)
				require.NotEmpty(t, rr.Header().Get("X-Request-ID"))
			})

			testutil.Then(t, "profile listings need a token", func(t *testing.T) {
				rr := testutil.DoRequest(app.router, testutil.NewRequest(t, http.MethodGet, "/profiles"))
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
			})

			testutil.Then(t, "a signed token reaches the service", func(t *testing.T) {
				req := testutil.WithBearer(testutil.NewRequest(t, http.MethodGet, "/profiles"),
					testutil.SignToken(t, []byte("wire-secret"), "admin-1", domain.RoleAdmin, ""))
				rr := testutil.DoRequest(app.router, req)
				testutil.AssertStatusOK(t, rr)
			})

			testutil.Then(t, "generation reports it is not configured", func(t *testing.T) {
				req := testutil.WithBearer(testutil.NewJSONRequest(t, http.MethodPost, "/profiles/generate", map[string]any{"prompt": "p"}),
					testutil.SignToken(t, []byte("wire-secret"), "admin-1", domain.RoleAdmin, ""))
				rr := testutil.DoRequest(app.router, req)
				testutil.AssertStatusAndError(t, rr, http.StatusBadGateway, "upstream")
			})
		})
	})
}
