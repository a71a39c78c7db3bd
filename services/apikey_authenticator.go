package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/upb/headerauth/middleware"
	"github.com/upb/headerauth/models"
	"github.com/upb/headerauth/repositories"
	"go.uber.org/zap"
)

// DefaultAPIKeyHeader is the header carrying service account keys
const DefaultAPIKeyHeader = "X-API-Key"

// HashAPIKey returns the hex SHA-256 digest under which a key is stored
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// APIKeyAuthenticator resolves API keys to service accounts. Keys are
// never stored, only their digest.
type APIKeyAuthenticator struct {
	accounts      repositories.ServiceAccountRepository
	authorization middleware.AuthorizationFunc
	logger        *zap.Logger
}

// NewAPIKeyAuthenticator creates an APIKeyAuthenticator reading keys from
// header. An empty header name means DefaultAPIKeyHeader.
func NewAPIKeyAuthenticator(accounts repositories.ServiceAccountRepository, header string, logger *zap.Logger) *APIKeyAuthenticator {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &APIKeyAuthenticator{
		accounts:      accounts,
		authorization: middleware.HeaderValueAuthorization(header),
		logger:        logger,
	}
}

// Authorization implements middleware.HeaderAuthenticatable
func (a *APIKeyAuthenticator) Authorization(h http.Header) (middleware.AuthorizationValue, bool) {
	return a.authorization(h)
}

// Authenticate implements middleware.HeaderAuthenticatable. Unknown and
// revoked keys are misses.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, token middleware.AuthorizationValue, r *http.Request) (*models.ServiceAccount, bool, error) {
	account, err := a.accounts.GetByTokenHash(ctx, HashAPIKey(token.Token))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, WrapInternal("service account lookup failed", err)
	}

	if account.IsRevoked() {
		a.logger.Info("revoked API key presented",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.String("service_account_id", account.ID.String()))
		return nil, false, nil
	}

	return account, true, nil
}
