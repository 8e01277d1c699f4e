package handlers

import (
	"net/http"

	"github.com/upb/smart-retail-assistant/services"
	"github.com/upb/smart-retail-assistant/services/providers"
	"github.com/upb/smart-retail-assistant/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, err.Error(), details)

	case services.IsRetrievalFailure(err):
		logger.Warn("retrieval failed", zap.Error(err))
		writeErr = utils.WriteServiceUnavailable(w, "retrieval_failed", "The product catalog is temporarily unavailable")

	case services.IsGenerationFailure(err):
		logger.Warn("generation failed", zap.Error(err))
		switch {
		case providers.IsRateLimited(err):
			writeErr = utils.WriteTooManyRequests(w, "The language model is rate limited, try again shortly")
		case providers.IsContentFiltered(err):
			writeErr = utils.WriteError(w, http.StatusUnprocessableEntity, "The request was rejected by the content policy", nil)
		default:
			writeErr = utils.WriteError(w, http.StatusBadGateway, "The language model did not return an answer", nil)
		}

	case services.IsInternalError(err):
		// Log internal errors but return generic message
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

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
