package utils

import (
	"context"
	"errors"
	"net/http"

	"museum-discovery/internal/errs"
	"museum-discovery/internal/logger"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details any) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithUnauthorized sends a 401 Unauthorized error
func RespondWithUnauthorized(c *gin.Context, message string) {
	RespondWithError(c, http.StatusUnauthorized, "unauthorized", message, nil)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details any) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithServiceError maps a service error onto the HTTP error taxonomy.
func RespondWithServiceError(c *gin.Context, err error) {
	var invalid *errs.ValidationError
	switch {
	case errors.As(err, &invalid):
		RespondWithError(c, http.StatusBadRequest, "validation_error", invalid.Error(), gin.H{"field": invalid.Field})
	case errors.Is(err, errs.ErrOutOfRange):
		RespondWithError(c, http.StatusBadRequest, "out_of_range", err.Error(), nil)
	case errors.Is(err, errs.ErrNotFound):
		RespondWithNotFound(c, "document not found")
	case errors.Is(err, errs.ErrUpstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		RespondWithError(c, http.StatusServiceUnavailable, "upstream_unavailable", "search backend unavailable", nil)
	default:
		logger.Error("request failed", "path", c.FullPath(), "error", err)
		RespondWithInternalError(c, "internal error", nil)
	}
}
