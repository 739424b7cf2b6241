package datatable

import "errors"

var (
	ErrInvalidLocator    = errors.New("invalid locator")
	ErrUnsupportedScheme = errors.New("unsupported locator scheme")
	ErrUnsupportedFormat = errors.New("unsupported table format")
	ErrSourceNotFound    = errors.New("table source not found")
	ErrDecode            = errors.New("table decode failed")
	ErrSchemaViolation   = errors.New("row violates schema")
)
