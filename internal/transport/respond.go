package transport

import (
	"errors"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"go.uber.org/zap"
)

// decodeRequest decodes and validates a JSON body, writing the 400 response
// itself when that fails.
func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}, logger *zap.Logger) bool {
	err := middleware.DecodeAndValidate(w, r, v)
	if err == nil {
		return true
	}

	logger.Debug("Request validation failed", zap.Error(err))
	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return false
	}

	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
	return false
}

// respondWithServiceError maps product errors onto HTTP responses.
func respondWithServiceError(w http.ResponseWriter, err error, logger *zap.Logger, action string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		fields := make([]middleware.ValidationError, len(verr.Fields))
		for i, f := range verr.Fields {
			fields[i] = middleware.ValidationError{Field: f.Field, Message: f.Message}
		}
		middleware.RespondWithValidationErrors(w, fields)
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, service.ErrNoExistingProduct):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("Failed to "+action, zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to "+action)
	}
}
