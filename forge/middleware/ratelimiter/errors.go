package ratelimiter

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfiguration = errors.New("invalid rate limit configuration")
	ErrInvalidIdentifier    = errors.New("invalid identifier")
	ErrBackendUnavailable   = errors.New("rate limit backend unavailable")
)

// ValidationError reports which policy field is wrong.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfiguration, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func backendError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, err)
}
