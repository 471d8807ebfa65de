// Package errors defines structured error types for the guardrail service.
// Errors carry a stable code and an HTTP status so interface layers can map
// them without inspecting message text.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeInternal          = "internal_error"
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeAbuseBlocked      = "abuse_blocked"
	CodePlanLimitExceeded = "plan_limit_exceeded"
	CodeCache             = "cache_error"
	CodeUnavailable       = "service_unavailable"
)

// AppError is a structured application error.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	cause      error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap supports errors.Is and errors.As over the cause chain.
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithError returns a copy of the error with the given cause attached.
func (e *AppError) WithError(cause error) *AppError {
	clone := *e
	clone.cause = cause
	return &clone
}

// WithMessage returns a copy of the error with a more specific message.
func (e *AppError) WithMessage(format string, args ...interface{}) *AppError {
	clone := *e
	clone.Message = fmt.Sprintf(format, args...)
	return &clone
}

// Is matches AppErrors by code so sentinel comparisons survive WithError copies.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if errors.As(target, &appErr) {
		return e.Code == appErr.Code
	}
	return false
}

// New creates an AppError with an explicit code, status, and message.
func New(code string, httpStatus int, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Predefined sentinel errors.
var (
	ErrInternal          = New(CodeInternal, http.StatusInternalServerError, "internal error")
	ErrInvalidRequest    = New(CodeInvalidRequest, http.StatusBadRequest, "invalid request")
	ErrNotFound          = New(CodeNotFound, http.StatusNotFound, "not found")
	ErrRateLimitExceeded = New(CodeRateLimitExceeded, http.StatusTooManyRequests, "rate limit exceeded")
	ErrAbuseBlocked      = New(CodeAbuseBlocked, http.StatusForbidden, "blocked due to abuse")
	ErrPlanLimitExceeded = New(CodePlanLimitExceeded, http.StatusForbidden, "plan limit exceeded")
	ErrCache             = New(CodeCache, http.StatusInternalServerError, "cache operation failed")
	ErrUnavailable       = New(CodeUnavailable, http.StatusServiceUnavailable, "service unavailable")
)

// ErrInvalidParam reports a programmer error such as a non-positive limit.
func ErrInvalidParam(format string, args ...interface{}) *AppError {
	return ErrInvalidRequest.WithMessage(format, args...)
}
