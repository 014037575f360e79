package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
const (
	// Validation
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationRequest      ErrorCode = "validation_invalid_service_request"
	ErrCodeValidationRecurrence   ErrorCode = "validation_invalid_recurrence"
	ErrCodeValidationTransition   ErrorCode = "validation_invalid_status_transition"
	ErrCodeValidationInvalidJSON  ErrorCode = "validation_invalid_json"
	ErrCodeValidationQuery        ErrorCode = "validation_invalid_query"

	// Not Found
	ErrCodeNotFoundAsset   ErrorCode = "not_found_asset"
	ErrCodeNotFoundRequest ErrorCode = "not_found_service_request"
	ErrCodeNotFoundRule    ErrorCode = "not_found_schedule_rule"

	// Conflict
	ErrCodeConflictDuplicateRequest ErrorCode = "conflict_duplicate_request"
	ErrCodeConflictConcurrent       ErrorCode = "conflict_concurrent_modification"
	ErrCodeConflictNotCompleted     ErrorCode = "conflict_request_not_completed"

	// Auth
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"

	// Internal/Upstream
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeStoreUnavailable    ErrorCode = "internal_store_unavailable"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamAdvisory    ErrorCode = "upstream_advisory_unavailable"
	ErrCodeUpstreamNotifier    ErrorCode = "upstream_notifier_unavailable"
)

// AppError is the standard application error type used throughout fleetcare.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error code family to an HTTP status.
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case e.Code == ErrCodeUpstreamRateLimited:
		return http.StatusTooManyRequests
	case strings.HasPrefix(string(e.Code), "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(string(e.Code), "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(string(e.Code), "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(string(e.Code), "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(string(e.Code), "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the ErrorCode of the first AppError in err's chain, or ""
// if there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsFatalStoreError reports whether err means the store cannot be reached at
// all. Such errors abort a scheduler run; every other per-asset failure is
// skipped.
func IsFatalStoreError(err error) bool {
	return CodeOf(err) == ErrCodeStoreUnavailable
}
