package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL is the default time-to-live for cached authorization results.
const DefaultCacheTTL = 10 * time.Second

// CachedAuthorizer wraps another Authorizer with a short-lived in-memory
// cache. Errors are never cached.
type CachedAuthorizer struct {
	inner Authorizer
	cache *gocache.Cache
}

// NewCachedAuthorizer creates a CachedAuthorizer that wraps inner with the given TTL.
func NewCachedAuthorizer(inner Authorizer, ttl time.Duration) *CachedAuthorizer {
	return &CachedAuthorizer{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Authorize checks the cache first and delegates to the inner Authorizer on miss.
func (c *CachedAuthorizer) Authorize(ctx context.Context, req Request) (bool, error) {
	key := cacheKey(req)
	if v, ok := c.cache.Get(key); ok {
		return v.(bool), nil
	}
	allowed, err := c.inner.Authorize(ctx, req)
	if err != nil {
		return false, err
	}
	c.cache.SetDefault(key, allowed)
	return allowed, nil
}

func cacheKey(req Request) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		req.User,
		strings.Join(req.Groups, ","),
		req.Resource,
		req.Verb,
		req.Community,
	)
}
