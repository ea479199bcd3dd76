package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrCodeInvalidCapability ErrorCode = "INVALID_CAPABILITY"
	ErrCodeInvalidState      ErrorCode = "INVALID_STATE"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. Any *APIError with the same code matches.
var (
	ErrInvalidCapability = &APIError{Code: ErrCodeInvalidCapability}
	ErrInvalidState      = &APIError{Code: ErrCodeInvalidState}
	ErrNotFound          = &APIError{Code: ErrCodeNotFound}
	ErrValidation        = &APIError{Code: ErrCodeValidation}
	ErrConflict          = &APIError{Code: ErrCodeConflict}
)

// APIError is a structured error returned by the scheduling service and its API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *APIError carrying the same code.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrCodeValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// NewInvalidCapabilityError reports a machine outside an operation's capable set.
func NewInvalidCapabilityError(machineID, operationID string) *APIError {
	return &APIError{
		Code:    ErrCodeInvalidCapability,
		Message: fmt.Sprintf("machine %s is not capable of operation %s", machineID, operationID),
	}
}

// NewInvalidStateError creates an INVALID_STATE APIError.
func NewInvalidStateError(format string, args ...any) *APIError {
	return &APIError{Code: ErrCodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// Is makes an InvalidTransitionError match ErrInvalidState.
func (e *InvalidTransitionError) Is(target error) bool {
	var t *APIError
	return errors.As(target, &t) && t.Code == ErrCodeInvalidState
}

// CodeOf classifies err into an ErrorCode. Unknown errors are INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var trErr *InvalidTransitionError
	if errors.As(err, &trErr) {
		return ErrCodeInvalidState
	}
	return ErrCodeInternal
}

// AsAPIError returns the *APIError in err's chain, or nil.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
