package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/upb/headerauth/middleware"
	"github.com/upb/headerauth/models"
	"github.com/upb/headerauth/repositories"
	"github.com/upb/headerauth/tokens"
	"go.uber.org/zap"
)

// UserAuthenticator resolves "Authorization: Bearer" tokens to users.
// The token is verified first, then its subject is looked up in the store.
type UserAuthenticator struct {
	verifier tokens.Verifier
	users    repositories.UserRepository
	logger   *zap.Logger
}

// NewUserAuthenticator creates a new UserAuthenticator
func NewUserAuthenticator(verifier tokens.Verifier, users repositories.UserRepository, logger *zap.Logger) *UserAuthenticator {
	return &UserAuthenticator{
		verifier: verifier,
		users:    users,
		logger:   logger,
	}
}

// Authorization implements middleware.HeaderAuthenticatable
func (a *UserAuthenticator) Authorization(h http.Header) (middleware.AuthorizationValue, bool) {
	return middleware.BearerAuthorization(h)
}

// Authenticate implements middleware.HeaderAuthenticatable. A token that
// fails verification, or whose subject has no user, is a miss.
func (a *UserAuthenticator) Authenticate(ctx context.Context, token middleware.AuthorizationValue, r *http.Request) (*models.User, bool, error) {
	user, found, _, err := a.AuthenticateUntil(ctx, token, r)
	return user, found, err
}

// AuthenticateUntil is Authenticate that also returns the token's exp claim
func (a *UserAuthenticator) AuthenticateUntil(ctx context.Context, token middleware.AuthorizationValue, _ *http.Request) (*models.User, bool, time.Time, error) {
	claims, err := a.verifier.Verify(ctx, token.Token)
	if err != nil {
		if tokens.IsRejected(err) {
			a.logger.Debug("bearer token rejected",
				zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
				zap.Error(err))
			return nil, false, time.Time{}, nil
		}
		return nil, false, time.Time{}, WrapExternal(ErrIdentityProviderUnavailable.Message, err)
	}

	user, err := a.users.GetBySubject(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			a.logger.Debug("no user for token subject",
				zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
				zap.String("subject", claims.Subject))
			return nil, false, claims.ExpiresAt, nil
		}
		return nil, false, time.Time{}, WrapInternal("user lookup failed", err)
	}

	return user, true, claims.ExpiresAt, nil
}
