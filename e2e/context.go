// Package e2e drives the HTTP surface through godog feature files against an
// in-process server built on the in-memory stores.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"prodir/internal/audit"
	"prodir/internal/generation"
	"prodir/internal/identity"
	"prodir/internal/platform/middleware"
	"prodir/internal/workflow"
	"prodir/internal/workflow/handler"
)

var signingSecret = []byte("e2e-signing-secret")

// stubGenerator returns one candidate per configured country.
type stubGenerator struct {
	countries []string
}

func (g *stubGenerator) Generate(context.Context, string) ([]generation.Candidate, error) {
	out := make([]generation.Candidate, 0, len(g.countries))
	for _, c := range g.countries {
		out = append(out, generation.Candidate{
			Country: c,
			Fields:  map[string]any{"fullName": "Director of " + c, "bio": "Generated for e2e"},
		})
	}
	return out, nil
}

// TestContext holds one scenario's server and the last response.
type TestContext struct {
	server    *httptest.Server
	generator *stubGenerator
	audit     *audit.MemorySink

	lastStatus int
	lastBody   []byte
	profileID  string
}

// NewTestContext starts a fresh server; every scenario gets its own stores.
func NewTestContext() (*TestContext, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := &stubGenerator{countries: []string{"Japan"}}
	sink := audit.NewMemorySink()

	svc, err := workflow.Build(workflow.InMemoryStores(), gen, logger,
		workflow.WithAudit(audit.NewPublisher(logger, sink)),
	)
	if err != nil {
		return nil, err
	}
	resolver, err := identity.NewHMACResolver(signingSecret, "", 0)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestContext)
	handler.New(svc, resolver, logger).Register(r)

	return &TestContext{
		server:    httptest.NewServer(r),
		generator: gen,
		audit:     sink,
	}, nil
}

func (tc *TestContext) Close() {
	tc.server.Close()
}

// Request sends a JSON request. An empty role sends no token.
func (tc *TestContext) Request(method, path, role string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.server.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := signToken("e2e-"+role, role)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.server.Client().Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) LastStatus() int { return tc.lastStatus }

func (tc *TestContext) LastBody() []byte { return tc.lastBody }

// ResponseField reads a top-level field from the last JSON response.
func (tc *TestContext) ResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("decode response %q: %w", tc.lastBody, err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) ProfileID() string { return tc.profileID }

func (tc *TestContext) SetProfileID(id string) { tc.profileID = id }

func (tc *TestContext) SetGeneratedCountries(countries []string) {
	tc.generator.countries = countries
}

// AuditActions lists the recorded audit actions for the current profile.
func (tc *TestContext) AuditActions() []string {
	var out []string
	for _, e := range tc.audit.Events() {
		if e.ProfileID.String() == tc.profileID {
			out = append(out, string(e.Action))
		}
	}
	return out
}

func signToken(subject, role string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"name": "E2E " + role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingSecret)
}
