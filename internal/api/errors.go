// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/rosy-tax/reviewer/internal/extraction"
	"github.com/rosy-tax/reviewer/internal/review"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error
func NewValidationError(message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: message,
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewUpstreamError creates a 502 error for a failed extraction-server exchange
func NewUpstreamError(code, message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadGateway,
		Code:    code,
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// FromReviewError maps a controller error onto its API error.
func FromReviewError(err error) *APIError {
	var (
		apiErr *APIError
		valErr *review.ValidationError
		upErr  *extraction.UploadError
		finErr *extraction.FinalizeError
		netErr *extraction.NetworkError
		dlErr  *review.DownloadError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, review.ErrBusy):
		return NewConflictError(err.Error())
	case errors.As(err, &valErr):
		return NewValidationError(valErr.Message)
	case errors.As(err, &upErr):
		return NewUpstreamError("UPLOAD_FAILED", upErr.Message, nil)
	// checked before NetworkError: a finalize transport failure wraps one
	case errors.As(err, &finErr):
		return NewUpstreamError("FINALIZE_FAILED", "finalize failed", finErr)
	case errors.As(err, &netErr):
		return NewUpstreamError("NETWORK_ERROR", netErr.Message, nil)
	case errors.As(err, &dlErr):
		return NewUpstreamError("DOWNLOAD_FAILED", dlErr.Message, nil)
	default:
		return NewInternalError("An unexpected error occurred", err)
	}
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError

	if errors.As(err, &httpErr) {
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	} else {
		apiErr = FromReviewError(err)
	}

	if apiErr.Status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request().URL.Path).Str("code", apiErr.Code).Msg("request failed")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(apiErr.Status)
		return
	}
	_ = c.JSON(apiErr.Status, apiErr)
}
