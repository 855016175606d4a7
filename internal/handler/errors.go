package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/service"
	"github.com/prohmpiriya/pitch-booking/pkg/logger"
	"github.com/prohmpiriya/pitch-booking/pkg/middleware"
	"github.com/prohmpiriya/pitch-booking/pkg/response"
	"go.uber.org/zap"
)

// Retry-After hints for retryable failures
const (
	conflictRetryAfter = time.Second
	timeoutRetryAfter  = 2 * time.Second
)

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	var (
		verr *domain.ValidationError
		uerr *domain.UnavailableError
	)
	switch {
	case errors.As(err, &verr):
		response.ErrorWithPath(c, http.StatusBadRequest, "VALIDATION_ERROR", verr.Message, verr.Path)
	case domain.IsValidationError(err):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.As(err, &uerr):
		response.ErrorWithDetails(c, http.StatusConflict, "SLOT_UNAVAILABLE", domain.ErrSlotUnavailable.Error(), uerr.Slots)
	case domain.IsUnavailableError(err):
		response.Error(c, http.StatusConflict, "SLOT_UNAVAILABLE", err.Error())
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		response.Error(c, http.StatusConflict, "INVALID_STATUS_TRANSITION", err.Error())
	case errors.Is(err, domain.ErrRetryableConflict):
		response.RetryLater(c, http.StatusConflict, "RETRYABLE_CONFLICT", err.Error(), conflictRetryAfter)
	case errors.Is(err, domain.ErrTransactionTimeout):
		response.RetryLater(c, http.StatusServiceUnavailable, "TRANSACTION_TIMEOUT", err.Error(), timeoutRetryAfter)
	default:
		logger.Get().ErrorContext(c.Request.Context(), "request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.InternalError(c)
	}
}

// bindError reports a body or query that could not be decoded
func bindError(c *gin.Context, err error) {
	response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request: "+err.Error())
}

// callerFrom reads the gateway identity set by middleware.Identity
func callerFrom(c *gin.Context) service.Caller {
	id, _ := middleware.GetUserID(c)
	return service.Caller{UserID: id, Staff: middleware.IsStaff(c)}
}
