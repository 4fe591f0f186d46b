package identity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"prodir/pkg/platform/httputil"
	"prodir/pkg/requestcontext"
)

// bearerToken extracts the token from an Authorization header. ok is false
// when no bearer credential was presented at all.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(token), true
}

// RequireIdentity rejects requests without a valid bearer token and puts the
// resolved caller into the request context.
func RequireIdentity(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, _ := bearerToken(r)
			id, err := resolver.Resolve(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r, id)))
		})
	}
}

// OptionalIdentity resolves a token when one is presented and otherwise lets
// the request through anonymously. A presented but invalid token is still
// rejected.
func OptionalIdentity(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	require := RequireIdentity(resolver, logger)
	return func(next http.Handler) http.Handler {
		guarded := require(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, presented := bearerToken(r); !presented {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

func withIdentity(r *http.Request, id Identity) context.Context {
	ctx := requestcontext.WithCaller(r.Context(), id.UserID, id.Role)
	if id.Name != "" {
		ctx = requestcontext.WithCallerName(ctx, id.Name)
	}
	return ctx
}
