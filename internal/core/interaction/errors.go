package interaction

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest  = errors.New("invalid interaction request")
	ErrHandlerPanic    = errors.New("interaction handler panicked")
	ErrInvalidObserver = errors.New("interaction observer must be a non-nil pointer")
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidRequest, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }
