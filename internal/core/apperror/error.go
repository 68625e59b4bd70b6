// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All grid and API errors should use AppError for consistent reporting.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes grouped by failure class.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Configuration errors: missing identity at construction time. Fatal.
	CodeConfiguration = "CONFIGURATION_ERROR"

	// Transport errors: network failure, timeout or non-2xx on a round-trip.
	CodeTransport = "TRANSPORT_ERROR"

	// Structural errors: the page is missing an expected mount point.
	CodeRenderTargetMissing = "RENDER_TARGET_MISSING"

	// Consistency warnings: requested column unknown to the query metadata.
	CodeUnknownColumn = "UNKNOWN_COLUMN"

	// A before-change listener vetoed a mutation.
	CodeCanceled = "CANCELED"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict = "CONFLICT"
)

// AppError is the standard error type for the module.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field, region, status code...)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewConfiguration reports a fatal construction-time error.
func NewConfiguration(message string) *AppError {
	return &AppError{
		Code:       CodeConfiguration,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewTransport wraps a failed round-trip to a remote collaborator.
func NewTransport(op string, err error) *AppError {
	return &AppError{
		Code:       CodeTransport,
		Message:    fmt.Sprintf("%s failed", op),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"operation": op},
		Err:        err,
	}
}

// NewRenderTargetMissing reports that a named mount element is absent from the page.
func NewRenderTargetMissing(target string) *AppError {
	return &AppError{
		Code:       CodeRenderTargetMissing,
		Message:    fmt.Sprintf("render target %q not found", target),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"target": target},
	}
}

// NewUnknownColumn reports a column absent from the query metadata.
func NewUnknownColumn(schema, query, column string) *AppError {
	return &AppError{
		Code:       CodeUnknownColumn,
		Message:    fmt.Sprintf("column %q not found in %s.%s", column, schema, query),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"schema": schema, "query": query, "column": column},
	}
}

// NewCanceled reports that a before-change listener vetoed a mutation.
func NewCanceled(event string) *AppError {
	return &AppError{
		Code:       CodeCanceled,
		Message:    fmt.Sprintf("%s canceled by listener", event),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"event": event},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries the given AppError code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsCanceled checks if a mutation was vetoed by a before-change listener.
func IsCanceled(err error) bool {
	return HasCode(err, CodeCanceled)
}
