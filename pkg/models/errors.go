package models

import (
	"fmt"
	"net/http"
)

// Error codes surfaced in API error envelopes.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeWorkflowNotFound     = "WORKFLOW_NOT_FOUND"
	CodeWorkflowFileNotFound = "WORKFLOW_FILE_NOT_FOUND"
	CodeFavoriteNotFound     = "FAVORITE_NOT_FOUND"
	CodeProjectNotFound      = "PROJECT_NOT_FOUND"
	CodeDuplicateName        = "DUPLICATE_WORKFLOW_NAME"
	CodeDuplicateProject     = "DUPLICATE_PROJECT_NAME"
	CodeInternal             = "INTERNAL_ERROR"
)

// AppError is a typed application error carrying an HTTP status and a stable
// error code. Handlers map it directly onto the {error, message} envelope.
type AppError struct {
	Code    string
	Status  int
	Message string
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.cause }

// WithCause attaches an underlying error and returns the receiver.
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// NewValidationError reports malformed input (HTTP 400).
func NewValidationError(msg string) *AppError {
	return &AppError{Code: CodeValidation, Status: http.StatusBadRequest, Message: msg}
}

// NewUnauthorizedError reports a missing or invalid session (HTTP 401).
func NewUnauthorizedError(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Message: msg}
}

// NewForbiddenError reports an ownership/visibility violation (HTTP 403).
func NewForbiddenError(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Status: http.StatusForbidden, Message: msg}
}

// NewNotFoundError reports a missing entity with the given code (HTTP 404).
func NewNotFoundError(code, msg string) *AppError {
	return &AppError{Code: code, Status: http.StatusNotFound, Message: msg}
}

// NewConflictError reports a duplicate-name conflict with the given code
// (HTTP 409).
func NewConflictError(code, msg string) *AppError {
	return &AppError{Code: code, Status: http.StatusConflict, Message: msg}
}

// NewInternalError wraps an unexpected failure (HTTP 500). The cause is kept
// for logs; the message is what clients see.
func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "Internal server error", cause: err}
}
