package errors

import (
	"errors"
	"fmt"
)

// Error types for different failure domains
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeChecker    ErrorType = "checker"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeDialer     ErrorType = "dialer"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

// NewCheckerError marks an indeterminate upstream result. The checker could not
// produce evidence either way, so callers must not treat it as non-compliance.
func NewCheckerError(source, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeChecker,
		Code:       "CHECKER_INDETERMINATE",
		Message:    fmt.Sprintf("%s: %s", source, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"source": source},
	}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    message,
		Retryable:  true,
		StatusCode: 429,
	}
}

func NewAuthError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuth,
		Code:       "AUTH_FAILED",
		Message:    message,
		Retryable:  false,
		StatusCode: 401,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

// NewRoutingNotFoundError is fatal for any operation scoped to one list: without
// an active routing there is nothing correct to post or repair against.
func NewRoutingNotFoundError(listID string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "ROUTING_CONFIG_NOT_FOUND",
		Message:    fmt.Sprintf("no active routing configuration for list %s", listID),
		Retryable:  false,
		StatusCode: 404,
		Details:    map[string]interface{}{"list_id": listID},
	}
}

// NewDialerPostError is per-lead and never fatal to a batch.
func NewDialerPostError(destination, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeDialer,
		Code:       "DIALER_POST_FAILED",
		Message:    fmt.Sprintf("%s: %s", destination, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"destination": destination},
	}
}

func NewDatabaseError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeDatabase,
		Code:       "DATABASE_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

// Predefined common errors
var (
	ErrInvalidPhone    = NewValidationError("INVALID_PHONE", "Invalid phone number format")
	ErrLeadNotFound    = NewNotFoundError("lead")
	ErrJobNotFound     = NewNotFoundError("job")
	ErrEmptyAllocation = NewValidationError("EMPTY_ALLOCATION", "No routing allocations provided")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
