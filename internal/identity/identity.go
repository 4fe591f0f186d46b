// Package identity resolves bearer tokens issued by an external identity
// provider into a caller identity. It verifies tokens; it never issues them.
package identity

import (
	"context"
	"time"

	"prodir/pkg/domain"
)

// Identity is who is calling and with which role.
type Identity struct {
	UserID    domain.UserID
	Role      domain.Role
	Name      string
	ExpiresAt time.Time
}

// Resolver turns a raw bearer token into an Identity. Invalid tokens fail
// with an unauthorized domain error.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}
