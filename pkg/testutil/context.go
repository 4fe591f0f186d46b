package testutil

import (
	"net/http"

	"prodir/pkg/domain"
	"prodir/pkg/requestcontext"
)

// WithCaller adds a resolved caller to the request context.
// This simulates what the identity middleware does for authenticated requests.
func WithCaller(req *http.Request, userID string, role domain.Role) *http.Request {
	ctx := requestcontext.WithCaller(req.Context(), domain.UserID(userID), role)
	return req.WithContext(ctx)
}
