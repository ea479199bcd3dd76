package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: ErrCodeNotFound, Message: "order 'ORD0001' not found"}
	want := "NOT_FOUND: order 'ORD0001' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("operation", "ORD0001/OP01")
	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeNotFound)
	}
	if err.Message != "operation 'ORD0001/OP01' not found" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("invalid order",
		FieldError{Field: "capable_machines", Message: "empty capability set"},
		FieldError{Field: "processing_times", Message: "must be positive"},
	)
	if err.Code != ErrCodeValidation {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeValidation)
	}
	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
}

func TestAPIError_Is(t *testing.T) {
	wrapped := fmt.Errorf("start: %w", NewInvalidCapabilityError("M9", "OP01"))
	if !errors.Is(wrapped, ErrInvalidCapability) {
		t.Error("wrapped capability error should match ErrInvalidCapability")
	}
	if errors.Is(wrapped, ErrInvalidState) {
		t.Error("capability error must not match ErrInvalidState")
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{
		Entity: "operation",
		ID:     "ORD0001/OP01",
		From:   "COMPLETED",
		To:     "IN_PROGRESS",
	}
	want := "invalid operation state transition: COMPLETED → IN_PROGRESS (entity ORD0001/OP01)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("transition error should match ErrInvalidState")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{NewNotFoundError("order", "X"), ErrCodeNotFound},
		{fmt.Errorf("wrap: %w", &InvalidTransitionError{}), ErrCodeInvalidState},
		{NewInvalidStateError("order %s is not forced", "X"), ErrCodeInvalidState},
		{errors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("CodeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestAsAPIError(t *testing.T) {
	if got := AsAPIError(errors.New("disk full")); got != nil {
		t.Errorf("plain error: got %v, want nil", got)
	}
	if got := AsAPIError(nil); got != nil {
		t.Errorf("nil error: got %v, want nil", got)
	}
	inner := NewNotFoundError("order", "ORD0001")
	wrapped := fmt.Errorf("get order: %w", inner)
	if got := AsAPIError(wrapped); got != inner {
		t.Errorf("wrapped: got %p, want %p", got, inner)
	}
}

