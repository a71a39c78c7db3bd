package middleware

import (
	"context"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// AuthContextKey is the context key for the per-request auth context
	AuthContextKey contextKey = "auth_context"
)

// GetRequestIDFromContext retrieves the request ID from context.
// Falls back to the ID assigned by chi's RequestID middleware.
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimiddleware.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetAuthContext retrieves the per-request auth context, or nil if the host
// did not install one.
func GetAuthContext(ctx context.Context) *AuthContext {
	if val := ctx.Value(AuthContextKey); val != nil {
		if ac, ok := val.(*AuthContext); ok {
			return ac
		}
	}
	return nil
}

// WithAuthContextValue adds an auth context to the context
func WithAuthContextValue(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, ac)
}

// WithAuthContext creates a fresh auth context for every request passing
// through. Install it once at the root of a route group, before any header
// auth middleware.
func WithAuthContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithAuthContextValue(r.Context(), NewAuthContext())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
