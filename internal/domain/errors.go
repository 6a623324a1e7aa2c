package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyAccepted   = errors.New("ticket already accepted")
	ErrServiceUnknown    = errors.New("service unknown")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrValidation        = errors.New("validation failed")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrConcurrentUpdate  = errors.New("concurrent update")
	// ErrVersionConflict is returned by stores when a conditional write lost;
	// services translate it before it reaches callers.
	ErrVersionConflict = errors.New("version conflict")
)

// TransitionError names the state and operation of a rejected transition.
type TransitionError struct {
	From TicketStatus
	Op   Operation
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s a ticket in status %s", e.Op, e.From)
}

// Is lets callers match with errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Code returns the stable machine-readable code for err, or INTERNAL_ERROR.
func Code(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrAlreadyAccepted):
		return "ALREADY_ACCEPTED"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrServiceUnknown):
		return "SERVICE_UNKNOWN"
	case errors.Is(err, ErrInvalidPriority):
		return "INVALID_PRIORITY"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_FAILED"
	case errors.Is(err, ErrTicketNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConcurrentUpdate), errors.Is(err, ErrVersionConflict):
		return "CONCURRENT_UPDATE"
	case errors.Is(err, ErrStoreUnavailable):
		return "STORE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
