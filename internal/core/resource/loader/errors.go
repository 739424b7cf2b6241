package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zeusync/harmonia/internal/core/resource/registry"
)

var (
	ErrNotFound   = errors.New("resource key not registered")
	ErrLoadFailed = errors.New("resource load failed")
)

// NotFoundError is returned for keys absent from the registry.
type NotFoundError struct {
	Key registry.Key
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource %q: %s", e.Key, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// LoadError reports a locator that failed to resolve or materialize.
type LoadError struct {
	Key     registry.Key
	Locator registry.Locator
	Reason  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load resource %q from %q: %v", e.Key, e.Locator, e.Reason)
}

func (e *LoadError) Unwrap() []error { return []error{ErrLoadFailed, e.Reason} }

// BatchError collects the per-key failures of PreloadAll.
type BatchError struct {
	Errors []error
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("preload: %d resource(s) failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error { return e.Errors }
