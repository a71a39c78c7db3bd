package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/headerauth/middleware"
	"github.com/upb/headerauth/models"
	"github.com/upb/headerauth/repositories"
	"github.com/upb/headerauth/services"
	"github.com/upb/headerauth/utils"
	"go.uber.org/zap"
)

// WhoamiResponse lists the principals attached to the request
type WhoamiResponse struct {
	Authenticated  bool                   `json:"authenticated"`
	User           *models.User           `json:"user,omitempty"`
	ServiceAccount *models.ServiceAccount `json:"service_account,omitempty"`
}

// CredentialInvalidator drops cached lookups for a raw credential
type CredentialInvalidator interface {
	Invalidate(token string)
}

// PrincipalHandler serves the endpoints that report on the caller
type PrincipalHandler struct {
	accounts    repositories.ServiceAccountRepository
	apiKeys     middleware.AuthorizationFunc
	invalidator CredentialInvalidator
	logger      *zap.Logger
}

// NewPrincipalHandler creates a PrincipalHandler. apiKeys extracts the raw
// key on revocation so its cached lookup can be dropped; invalidator may be
// nil when lookups are not cached.
func NewPrincipalHandler(accounts repositories.ServiceAccountRepository, apiKeys middleware.AuthorizationFunc, invalidator CredentialInvalidator, logger *zap.Logger) *PrincipalHandler {
	return &PrincipalHandler{
		accounts:    accounts,
		apiKeys:     apiKeys,
		invalidator: invalidator,
		logger:      logger,
	}
}

// HandleWhoami handles GET /api/v1/whoami. Anonymous callers get 200 with
// authenticated=false.
func (h *PrincipalHandler) HandleWhoami(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var response WhoamiResponse

	if user, ok := middleware.Authenticated[*models.User](ctx); ok {
		response.User = user
		response.Authenticated = true
	}
	if account, ok := middleware.Authenticated[*models.ServiceAccount](ctx); ok {
		response.ServiceAccount = account
		response.Authenticated = true
	}

	_ = utils.WriteOK(w, response)
}

// HandleCurrentUser handles GET /api/v1/users/me
func (h *PrincipalHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireAuthenticated[*models.User](r.Context())
	if err != nil {
		HandleServiceError(w, services.WrapError(services.ErrorTypeUnauthorized, "user authentication required", err), h.logger)
		return
	}
	_ = utils.WriteOK(w, user)
}

// HandleCurrentServiceAccount handles GET /api/v1/service-accounts/me
func (h *PrincipalHandler) HandleCurrentServiceAccount(w http.ResponseWriter, r *http.Request) {
	account, err := middleware.RequireAuthenticated[*models.ServiceAccount](r.Context())
	if err != nil {
		HandleServiceError(w, services.WrapError(services.ErrorTypeUnauthorized, "service account authentication required", err), h.logger)
		return
	}
	_ = utils.WriteOK(w, account)
}

// HandleRevokeCurrentServiceAccount handles DELETE /api/v1/service-accounts/me.
// The presented key stops resolving immediately, including on this instance's cache.
func (h *PrincipalHandler) HandleRevokeCurrentServiceAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := middleware.RequireAuthenticated[*models.ServiceAccount](ctx)
	if err != nil {
		HandleServiceError(w, services.WrapError(services.ErrorTypeUnauthorized, "service account authentication required", err), h.logger)
		return
	}

	if err := h.accounts.Revoke(ctx, account.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			HandleServiceError(w, services.ErrServiceAccountNotFound, h.logger)
			return
		}
		HandleServiceError(w, services.WrapInternal("failed to revoke service account", err), h.logger)
		return
	}

	if h.invalidator != nil {
		if key, ok := h.apiKeys(r.Header); ok {
			h.invalidator.Invalidate(key.Token)
		}
	}
	middleware.Unauthenticate[*models.ServiceAccount](ctx)

	h.logger.Info("service account revoked",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("service_account_id", account.ID.String()))
	utils.WriteNoContent(w)
}
