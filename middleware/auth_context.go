package middleware

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	// ErrNoAuthContext is returned when a request carries no auth context
	ErrNoAuthContext = errors.New("no auth context on request")

	// ErrAlreadyAuthenticated is returned when a principal of the same type is already attached
	ErrAlreadyAuthenticated = errors.New("principal already authenticated")

	// ErrNotAuthenticated is returned when no principal of the requested type is attached
	ErrNotAuthenticated = errors.New("not authenticated")
)

// AuthContext holds at most one resolved principal per principal type for
// the lifetime of a single request.
type AuthContext struct {
	mu         sync.RWMutex
	principals map[reflect.Type]any
}

// NewAuthContext creates an empty AuthContext
func NewAuthContext() *AuthContext {
	return &AuthContext{
		principals: make(map[reflect.Type]any),
	}
}

func (c *AuthContext) get(t reflect.Type) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.principals[t]
	return v, ok
}

func (c *AuthContext) set(t reflect.Type, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.principals[t]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyAuthenticated, t)
	}
	c.principals[t] = v
	return nil
}

func (c *AuthContext) remove(t reflect.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.principals, t)
}

// Len returns the number of attached principals
func (c *AuthContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.principals)
}

// PrincipalName returns the name used for principal type A in logs and metrics
func PrincipalName[A any]() string {
	return reflect.TypeOf((*A)(nil)).Elem().String()
}

// IsAuthenticated reports whether a principal of type A is attached to the
// request's auth context.
func IsAuthenticated[A any](ctx context.Context) bool {
	_, ok := Authenticated[A](ctx)
	return ok
}

// Authenticated returns the principal of type A attached to the request, if any
func Authenticated[A any](ctx context.Context) (A, bool) {
	var zero A
	ac := GetAuthContext(ctx)
	if ac == nil {
		return zero, false
	}
	v, ok := ac.get(reflect.TypeOf((*A)(nil)).Elem())
	if !ok {
		return zero, false
	}
	a, ok := v.(A)
	return a, ok
}

// RequireAuthenticated returns the principal of type A or ErrNotAuthenticated
func RequireAuthenticated[A any](ctx context.Context) (A, error) {
	a, ok := Authenticated[A](ctx)
	if !ok {
		return a, fmt.Errorf("%w: %s", ErrNotAuthenticated, PrincipalName[A]())
	}
	return a, nil
}

// SetAuthenticated attaches a principal of type A to the request's auth
// context. An already attached principal of the same type is never replaced.
func SetAuthenticated[A any](ctx context.Context, a A) error {
	ac := GetAuthContext(ctx)
	if ac == nil {
		return ErrNoAuthContext
	}
	return ac.set(reflect.TypeOf((*A)(nil)).Elem(), a)
}

// Unauthenticate removes the principal of type A, if any
func Unauthenticate[A any](ctx context.Context) {
	if ac := GetAuthContext(ctx); ac != nil {
		ac.remove(reflect.TypeOf((*A)(nil)).Elem())
	}
}
