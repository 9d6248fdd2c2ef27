package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound           = errors.New("resource not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrValidation         = errors.New("validation error")
	ErrConflictBlocking   = errors.New("blocking conflict")
	ErrStaleState         = errors.New("stale state")
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrInternal           = errors.New("internal server error")
)

// AppError represents an application error with context
type AppError struct {
	Err           error             `json:"-"`
	Message       string            `json:"message"`
	Code          string            `json:"code"`
	StatusCode    int               `json:"status_code"`
	Details       map[string]string `json:"details,omitempty"`
	Operation     string            `json:"operation,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds field-level details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithOperation tags the error with the operation name for audit joinability
func (e *AppError) WithOperation(op string) *AppError {
	e.Operation = op
	return e
}

// WithCorrelationID tags the error with the request correlation id
func (e *AppError) WithCorrelationID(id string) *AppError {
	e.CorrelationID = id
	return e
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// PermissionDenied is returned when the actor lacks the permission key
// guarding a state-changing operation. Never retried.
func PermissionDenied(permission string) *AppError {
	return &AppError{
		Err:        ErrPermissionDenied,
		Code:       "PERMISSION_DENIED",
		Message:    fmt.Sprintf("missing permission %q", permission),
		StatusCode: http.StatusForbidden,
	}
}

// Unauthorized is returned when no valid identity accompanies a request.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrPermissionDenied,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_FAILURE",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_FAILURE",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// ConflictBlocking is returned when an operation would violate an invariant
// (double booking, personal leave overlap, chain-level ordering, exceeded
// swap cap). Callers may retry after remediation.
func ConflictBlocking(message string) *AppError {
	return &AppError{
		Err:        ErrConflictBlocking,
		Code:       "CONFLICT_BLOCKING",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// StaleState is returned on optimistic-concurrency loss; the caller must
// re-read and retry.
func StaleState(resource string) *AppError {
	return &AppError{
		Err:        ErrStaleState,
		Code:       "STALE_STATE",
		Message:    fmt.Sprintf("%s was modified concurrently", resource),
		StatusCode: http.StatusConflict,
	}
}

// TransactionAborted is returned when a multi-write operation failed in the
// store; no partial effects were persisted.
func TransactionAborted(err error) *AppError {
	return &AppError{
		Err:        err,
		Code:       "TRANSACTION_ABORTED",
		Message:    "operation aborted, no changes were made",
		StatusCode: http.StatusInternalServerError,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
