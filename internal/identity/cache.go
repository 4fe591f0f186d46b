package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachingResolver memoizes successful resolutions in an expiring LRU keyed
// by the token's SHA-256, so raw tokens are never held as map keys. Entries
// are not served past the token's own expiry.
type CachingResolver struct {
	next  Resolver
	cache *expirable.LRU[string, Identity]
	now   func() time.Time
}

func NewCachingResolver(next Resolver, size int, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		next:  next,
		cache: expirable.NewLRU[string, Identity](size, nil, ttl),
		now:   time.Now,
	}
}

func (c *CachingResolver) Resolve(ctx context.Context, token string) (Identity, error) {
	key := tokenKey(token)
	if id, ok := c.cache.Get(key); ok {
		if id.ExpiresAt.IsZero() || c.now().Before(id.ExpiresAt) {
			return id, nil
		}
		c.cache.Remove(key)
	}
	id, err := c.next.Resolve(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	c.cache.Add(key, id)
	return id, nil
}

// Len reports the number of cached identities.
func (c *CachingResolver) Len() int {
	return c.cache.Len()
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
