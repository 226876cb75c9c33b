package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so cloned errors still compare
// against their predefined origin.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrTooManyRequests    = New("TOO_MANY_REQUESTS", http.StatusTooManyRequests, "too many requests")

	ErrAlreadySubmitted     = New("APPLICATION_ALREADY_SUBMITTED", http.StatusBadRequest, "application has already been submitted")
	ErrPrereqsIncomplete    = New("PREREQUISITES_INCOMPLETE", http.StatusBadRequest, "prerequisite courses and written application must be completed before submitting")
	ErrStepUnavailable      = New("STEP_UNAVAILABLE", http.StatusBadRequest, "application step is not available")
	ErrWebinarCancelled     = New("WEBINAR_CANCELLED", http.StatusBadRequest, "webinar has been cancelled")
	ErrWebinarDelivered     = New("WEBINAR_DELIVERED", http.StatusBadRequest, "webinar has already been delivered")
	ErrNoPrerequisiteGroups = New("NO_PREREQUISITE_GROUPS", http.StatusPreconditionFailed, "no prerequisite course groups are configured")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithFields returns a copy of the error carrying per-field messages.
func WithFields(err *Error, fields map[string]string) *Error {
	clone := Clone(err, "")
	if clone == nil {
		return nil
	}
	clone.Fields = fields
	return clone
}
