package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/headerauth/middleware"
	"github.com/upb/headerauth/services"
	"github.com/upb/headerauth/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses. Clients only see
// the domain message, never the wrapped cause.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, services.GetErrorMessage(err))

	case services.IsUnauthorizedError(err):
		logger.Debug("unauthenticated request", zap.Error(err))
		writeErr = utils.WriteUnauthorized(w, services.GetErrorMessage(err))

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// AuthErrorHandler returns the error handler installed on header auth
// middleware. A failed lookup never reveals the cause to the client; the
// response carries the request ID so it can be matched with server logs.
func AuthErrorHandler(logger *zap.Logger) middleware.ErrorHandler {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		requestID := middleware.GetRequestIDFromContext(r.Context())

		status := http.StatusInternalServerError
		message := "Authentication failed"
		switch {
		case services.IsExternalError(err):
			status = http.StatusServiceUnavailable
			message = "Identity provider unavailable"
		case errors.Is(err, middleware.ErrNoAuthContext), errors.Is(err, middleware.ErrAlreadyAuthenticated):
			logger.Error("auth context misconfigured",
				zap.String("request_id", requestID),
				zap.Error(err))
		}

		if writeErr := utils.WriteErrorWithRequestID(w, status, message, requestID); writeErr != nil {
			logger.Error("failed to write error response",
				zap.String("request_id", requestID),
				zap.Error(writeErr))
		}
	}
}
