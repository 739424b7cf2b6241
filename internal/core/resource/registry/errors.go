package registry

import "errors"

var (
	ErrEmptyKey     = errors.New("resource key is empty")
	ErrEmptyLocator = errors.New("resource locator is empty")
	ErrDuplicateKey = errors.New("duplicate resource key")
)
