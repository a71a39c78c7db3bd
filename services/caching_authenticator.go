package services

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/headerauth/internal/observability"
	"github.com/upb/headerauth/middleware"
	"golang.org/x/sync/singleflight"
)

type lookupResult[A any] struct {
	principal A
	found     bool
}

// ExpiringAuthenticatable is a HeaderAuthenticatable whose credentials carry
// their own expiry. A zero expiresAt means the credential does not expire.
type ExpiringAuthenticatable[A any] interface {
	middleware.HeaderAuthenticatable[A]
	AuthenticateUntil(ctx context.Context, token middleware.AuthorizationValue, r *http.Request) (principal A, found bool, expiresAt time.Time, err error)
}

// CachingAuthenticator caches the lookups of another HeaderAuthenticatable.
// Concurrent lookups of the same credential share one call to the wrapped
// authenticator. Errors are never cached, and a result is never served past
// the expiry reported by an ExpiringAuthenticatable.
type CachingAuthenticator[A any] struct {
	next    middleware.HeaderAuthenticatable[A]
	cache   *PrincipalCache[A]
	group   singleflight.Group
	metrics *observability.AuthMetrics
	name    string
}

// NewCachingAuthenticator wraps next with cache. metrics may be nil.
func NewCachingAuthenticator[A any](next middleware.HeaderAuthenticatable[A], cache *PrincipalCache[A], metrics *observability.AuthMetrics) *CachingAuthenticator[A] {
	return &CachingAuthenticator[A]{
		next:    next,
		cache:   cache,
		metrics: metrics,
		name:    middleware.PrincipalName[A](),
	}
}

// Authorization implements middleware.HeaderAuthenticatable
func (c *CachingAuthenticator[A]) Authorization(h http.Header) (middleware.AuthorizationValue, bool) {
	return c.next.Authorization(h)
}

// Authenticate implements middleware.HeaderAuthenticatable
func (c *CachingAuthenticator[A]) Authenticate(ctx context.Context, token middleware.AuthorizationValue, r *http.Request) (A, bool, error) {
	key := HashAPIKey(token.Token)

	if principal, found, ok := c.cache.Get(key); ok {
		c.metrics.RecordCacheHit(c.name)
		return principal, found, nil
	}
	c.metrics.RecordCacheMiss(c.name)

	generation := c.cache.Generation()
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		principal, found, expiresAt, err := c.lookup(ctx, token, r)
		if err != nil {
			return nil, err
		}
		c.cache.SetUntil(key, principal, found, expiresAt, generation)
		return lookupResult[A]{principal: principal, found: found}, nil
	})
	if err != nil {
		var zero A
		return zero, false, err
	}

	res := v.(lookupResult[A])
	return res.principal, res.found, nil
}

func (c *CachingAuthenticator[A]) lookup(ctx context.Context, token middleware.AuthorizationValue, r *http.Request) (A, bool, time.Time, error) {
	if e, ok := c.next.(ExpiringAuthenticatable[A]); ok {
		return e.AuthenticateUntil(ctx, token, r)
	}
	principal, found, err := c.next.Authenticate(ctx, token, r)
	return principal, found, time.Time{}, err
}

// Invalidate drops any cached result for the raw credential token. A lookup
// still in flight when Invalidate is called does not repopulate the cache,
// and later calls do not join it.
func (c *CachingAuthenticator[A]) Invalidate(token string) {
	key := HashAPIKey(token)
	c.group.Forget(key)
	c.cache.Invalidate(key)
}
