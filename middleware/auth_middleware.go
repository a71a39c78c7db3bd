package middleware

import (
	"context"
	"net/http"

	"github.com/upb/headerauth/internal/observability"
	"github.com/upb/headerauth/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// HeaderAuthenticatable is implemented per principal type A. It knows how to
// pull a credential out of request headers and how to resolve that credential
// into a principal.
type HeaderAuthenticatable[A any] interface {
	// Authorization extracts the credential from headers. It reports false
	// when the header is absent or malformed.
	Authorization(h http.Header) (AuthorizationValue, bool)

	// Authenticate resolves the credential. It reports false when no
	// principal matches, and returns an error only when the lookup itself
	// failed.
	Authenticate(ctx context.Context, token AuthorizationValue, r *http.Request) (A, bool, error)
}

// ErrorHandler writes the response for a request whose authentication failed
// with an error (credential store unavailable, auth context misconfigured).
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// HeaderAuthOption configures a HeaderAuthMiddleware
type HeaderAuthOption func(*headerAuthOptions)

type headerAuthOptions struct {
	errorHandler ErrorHandler
	metrics      *observability.AuthMetrics
	name         string
}

// WithErrorHandler overrides the default JSON 500 error response
func WithErrorHandler(h ErrorHandler) HeaderAuthOption {
	return func(o *headerAuthOptions) {
		o.errorHandler = h
	}
}

// WithMetrics records authentication outcomes on m
func WithMetrics(m *observability.AuthMetrics) HeaderAuthOption {
	return func(o *headerAuthOptions) {
		o.metrics = m
	}
}

// WithPrincipalName overrides the principal label used in logs and metrics
func WithPrincipalName(name string) HeaderAuthOption {
	return func(o *headerAuthOptions) {
		o.name = name
	}
}

// HeaderAuthMiddleware attaches a principal of type A to the request's auth
// context when the request headers carry a credential that resolves to one.
// It never rejects a request: a missing or unknown credential leaves the
// request anonymous. Use RequireAuthenticatedMiddleware to enforce.
type HeaderAuthMiddleware[A any] struct {
	authenticatable HeaderAuthenticatable[A]
	logger          *zap.Logger
	opts            headerAuthOptions
}

// NewHeaderAuthMiddleware creates a HeaderAuthMiddleware for principal type A
func NewHeaderAuthMiddleware[A any](authenticatable HeaderAuthenticatable[A], logger *zap.Logger, opts ...HeaderAuthOption) *HeaderAuthMiddleware[A] {
	m := &HeaderAuthMiddleware[A]{
		authenticatable: authenticatable,
		logger:          logger,
		opts: headerAuthOptions{
			name: PrincipalName[A](),
		},
	}
	for _, opt := range opts {
		opt(&m.opts)
	}
	if m.opts.errorHandler == nil {
		m.opts.errorHandler = m.defaultErrorHandler
	}
	return m
}

// Handler wraps next with header authentication for principal type A
func (m *HeaderAuthMiddleware[A]) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		// Authenticated by a previous middleware in the chain
		if IsAuthenticated[A](ctx) {
			m.record(requestID, observability.OutcomeAlreadyAuthenticated)
			next.ServeHTTP(w, r)
			return
		}

		token, ok := m.authenticatable.Authorization(r.Header)
		if !ok {
			m.record(requestID, observability.OutcomeAnonymous)
			next.ServeHTTP(w, r)
			return
		}

		principal, found, err := m.authenticate(ctx, token, r)
		if err != nil {
			m.logger.Error("principal lookup failed",
				zap.String("request_id", requestID),
				zap.String("principal", m.opts.name),
				zap.Error(err))
			m.opts.metrics.RecordOutcome(m.opts.name, observability.OutcomeError)
			m.opts.errorHandler(w, r, err)
			return
		}

		if !found {
			m.record(requestID, observability.OutcomeNotFound)
			next.ServeHTTP(w, r)
			return
		}

		if err := SetAuthenticated(ctx, principal); err != nil {
			m.logger.Error("failed to attach principal",
				zap.String("request_id", requestID),
				zap.String("principal", m.opts.name),
				zap.Error(err))
			m.opts.metrics.RecordOutcome(m.opts.name, observability.OutcomeError)
			m.opts.errorHandler(w, r, err)
			return
		}

		m.record(requestID, observability.OutcomeAuthenticated)
		next.ServeHTTP(w, r)
	})
}

// authenticate runs the credential lookup inside a span
func (m *HeaderAuthMiddleware[A]) authenticate(ctx context.Context, token AuthorizationValue, r *http.Request) (A, bool, error) {
	ctx, span := observability.Tracer().Start(ctx, "headerauth.authenticate")
	defer span.End()
	span.SetAttributes(attribute.String("headerauth.principal", m.opts.name))

	principal, found, err := m.authenticatable.Authenticate(ctx, token, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return principal, false, err
	}
	span.SetAttributes(attribute.Bool("headerauth.found", found))
	return principal, found, nil
}

func (m *HeaderAuthMiddleware[A]) record(requestID, outcome string) {
	m.logger.Debug("header authentication",
		zap.String("request_id", requestID),
		zap.String("principal", m.opts.name),
		zap.String("outcome", outcome))
	m.opts.metrics.RecordOutcome(m.opts.name, outcome)
}

func (m *HeaderAuthMiddleware[A]) defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if writeErr := utils.WriteInternalServerError(w, "Authentication failed"); writeErr != nil {
		m.logger.Error("failed to write error response",
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.Error(writeErr))
	}
}

// HeaderAuthFunc adapts a pair of functions to HeaderAuthenticatable
type HeaderAuthFunc[A any] struct {
	AuthorizationFunc AuthorizationFunc
	AuthenticateFunc  func(ctx context.Context, token AuthorizationValue, r *http.Request) (A, bool, error)
}

// Authorization implements HeaderAuthenticatable
func (f HeaderAuthFunc[A]) Authorization(h http.Header) (AuthorizationValue, bool) {
	return f.AuthorizationFunc(h)
}

// Authenticate implements HeaderAuthenticatable
func (f HeaderAuthFunc[A]) Authenticate(ctx context.Context, token AuthorizationValue, r *http.Request) (A, bool, error) {
	return f.AuthenticateFunc(ctx, token, r)
}
