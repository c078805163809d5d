package model

import (
	"fmt"
	"strings"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation    ErrorCode = "VALIDATION_ERROR"
	ErrStateConflict ErrorCode = "STATE_CONFLICT"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrBackend       ErrorCode = "BACKEND_ERROR"
	ErrTransient     ErrorCode = "TRANSIENT_ERROR"
	ErrInternal      ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the tessera API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationAPIError creates an APIError with validation details.
func NewValidationAPIError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// NewInternalError creates an INTERNAL_ERROR APIError.
func NewInternalError(msg string) *APIError {
	return &APIError{Code: ErrInternal, Message: msg}
}

// ValidationError reports the arguments that block a submission. It is
// resolved locally: the request never reaches the backend.
type ValidationError struct {
	Unsatisfied []ArgumentRef
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Unsatisfied))
	for i, r := range e.Unsatisfied {
		names[i] = r.String()
	}
	return fmt.Sprintf("unsatisfied required arguments: %s", strings.Join(names, ", "))
}

// StateConflictError reports an operation attempted while the workflow root
// is in a state that does not permit it (e.g. resubmitting a RUNNING
// workflow, or any submission while TERMINATING/STOPPING). Resolved locally.
type StateConflictError struct {
	Op    string
	State State
}

func (e *StateConflictError) Error() string {
	if e.State.IsTransient() {
		return fmt.Sprintf("%s rejected: workflow busy (%s)", e.Op, e.State)
	}
	return fmt.Sprintf("%s rejected: not allowed while workflow is %s", e.Op, e.State)
}

// TransientBackendError wraps a network or timeout failure talking to the
// execution backend. The workflow tree is left unmodified; the caller may
// retry. This engine never retries automatically.
type TransientBackendError struct {
	Op  string
	Err error
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("%s: transient backend error: %v", e.Op, e.Err)
}

func (e *TransientBackendError) Unwrap() error { return e.Err }

// BackendRejectionError reports that the backend explicitly refused a
// well-formed request, e.g. a resource quota. The tree is left unmodified.
type BackendRejectionError struct {
	Op      string
	Code    int
	Message string
}

func (e *BackendRejectionError) Error() string {
	return fmt.Sprintf("%s: backend rejected request (%d): %s", e.Op, e.Code, e.Message)
}
