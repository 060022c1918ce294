// Package errors is the error taxonomy surfaced to clients. Every code maps
// to exactly one HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type ErrorCode string

const (
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"
	ErrCodeTooLarge        ErrorCode = "PAYLOAD_TOO_LARGE"

	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var statusByCode = map[ErrorCode]int{
	ErrCodeUnauthorized:      http.StatusUnauthorized,
	ErrCodeInvalidToken:      http.StatusUnauthorized,
	ErrCodeForbidden:         http.StatusForbidden,
	ErrCodeValidation:        http.StatusBadRequest,
	ErrCodeInvalidInput:      http.StatusBadRequest,
	ErrCodeMissingRequired:   http.StatusBadRequest,
	ErrCodeTooLarge:          http.StatusRequestEntityTooLarge,
	ErrCodeNotFound:          http.StatusNotFound,
	ErrCodeRateLimitExceeded: http.StatusTooManyRequests,
	ErrCodeStoreUnavailable:  http.StatusServiceUnavailable,
}

// Status returns the HTTP status for the code. Unknown codes are 500.
func (c ErrorCode) Status() int {
	if status, ok := statusByCode[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// AppError is safe to show to clients. The cause is kept for logs only.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, cause: cause}
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

// TooLarge reports a request body over limit bytes.
func TooLarge(limit int64) *AppError {
	return New(ErrCodeTooLarge, "Request body too large").
		WithDetails(map[string]any{"limit": limit})
}

// RateLimited carries the window reset time so clients can back off.
func RateLimited(resetAt time.Time) *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded").
		WithDetails(map[string]any{"resetAt": resetAt.UnixMilli()})
}

func StoreUnavailable(cause error) *AppError {
	return Wrap(ErrCodeStoreUnavailable, "Store temporarily unavailable", cause)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the code of an AppError anywhere in err's chain, or
// ErrCodeInternal.
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
