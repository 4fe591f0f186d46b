package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
)

// Claims is the token payload this service relies on.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

// JWTResolver validates signed JWTs, either with a shared HMAC secret or
// against a provider's JWKS.
type JWTResolver struct {
	keyfunc jwt.Keyfunc
	methods []string
	issuer  string
	leeway  time.Duration
}

// NewHMACResolver verifies HS256 tokens signed with secret.
func NewHMACResolver(secret []byte, issuer string, leeway time.Duration) (*JWTResolver, error) {
	if len(secret) == 0 {
		return nil, errors.New("hmac secret is required")
	}
	return &JWTResolver{
		keyfunc: func(*jwt.Token) (any, error) { return secret, nil },
		methods: []string{jwt.SigningMethodHS256.Alg()},
		issuer:  issuer,
		leeway:  leeway,
	}, nil
}

// JWKSOptions configures key discovery from a provider.
type JWKSOptions struct {
	URL             string
	Issuer          string
	Leeway          time.Duration
	RefreshInterval time.Duration
	ClientTimeout   time.Duration
	Logger          *slog.Logger
}

// NewJWKSResolver verifies RS256 tokens against keys fetched from a JWKS
// endpoint and refreshed in the background until ctx ends. Startup does not
// fail if the provider is briefly unreachable.
func NewJWKSResolver(ctx context.Context, opts JWKSOptions) (*JWTResolver, error) {
	if opts.URL == "" {
		return nil, errors.New("jwks url is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	storage, err := jwkset.NewStorageFromHTTP(opts.URL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: opts.ClientTimeout},
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           opts.RefreshInterval,
		RefreshErrorHandler: func(ctx context.Context, err error) {
			logger.ErrorContext(ctx, "jwks refresh failed", "error", err, "url", opts.URL)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create jwks storage: %w", err)
	}
	k, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("create keyfunc: %w", err)
	}
	return &JWTResolver{
		keyfunc: k.Keyfunc,
		methods: []string{jwt.SigningMethodRS256.Alg()},
		issuer:  opts.Issuer,
		leeway:  opts.Leeway,
	}, nil
}

// Resolve validates signature, expiry and issuer, then requires a subject
// and a role from the closed set.
func (r *JWTResolver) Resolve(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token")
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(r.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(r.leeway),
	}
	if r.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(r.issuer))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, r.keyfunc, parserOpts...)
	if err != nil {
		return Identity{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid or expired token")
	}
	if !parsed.Valid {
		return Identity{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if claims.Subject == "" {
		return Identity{}, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return Identity{}, dErrors.New(dErrors.CodeUnauthorized, "token carries an unknown role")
	}
	id := Identity{
		UserID: domain.UserID(claims.Subject),
		Role:   role,
		Name:   claims.Name,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}
