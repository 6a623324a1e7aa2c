package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/desk-ticket-service/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

var statusByCode = map[string]int{
	"INVALID_TRANSITION": http.StatusConflict,
	"ALREADY_ACCEPTED":   http.StatusConflict,
	"SERVICE_UNKNOWN":    http.StatusUnprocessableEntity,
	"INVALID_PRIORITY":   http.StatusBadRequest,
	"VALIDATION_FAILED":  http.StatusBadRequest,
	"NOT_FOUND":          http.StatusNotFound,
	"CONCURRENT_UPDATE":  http.StatusConflict,
	"STORE_UNAVAILABLE":  http.StatusServiceUnavailable,
}

// ToDomainError converts service errors to a DomainError carrying the
// stable code and HTTP status.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	code := domain.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		return NewInternalError(err).(*DomainError)
	}

	de := &DomainError{Code: code, Message: err.Error(), HTTPStatus: status, Err: err}
	var validationErr *domain.ValidationError
	var transitionErr *domain.TransitionError
	switch {
	case errors.As(err, &validationErr):
		de.Message = "validation failed"
		de.Details = map[string]any{"field": validationErr.Field, "reason": validationErr.Reason}
	case errors.As(err, &transitionErr):
		de.Details = map[string]any{"status": transitionErr.From, "operation": transitionErr.Op}
	case code == "STORE_UNAVAILABLE":
		de.Message = "store unavailable"
	}
	return de
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
