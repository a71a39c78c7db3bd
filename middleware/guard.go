package middleware

import (
	"net/http"

	"github.com/upb/headerauth/utils"
	"go.uber.org/zap"
)

// RequireAuthenticatedMiddleware rejects requests that carry no principal of
// type A. Install it after the header auth middleware for A.
func RequireAuthenticatedMiddleware[A any](logger *zap.Logger) func(http.Handler) http.Handler {
	name := PrincipalName[A]()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAuthenticated[A](r.Context()) {
				logger.Warn("authentication required",
					zap.String("request_id", GetRequestIDFromContext(r.Context())),
					zap.String("principal", name),
					zap.String("path", r.URL.Path))
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
