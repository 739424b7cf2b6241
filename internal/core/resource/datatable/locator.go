package datatable

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/zeusync/harmonia/internal/core/resource/registry"
)

const (
	SchemeFile   = "file"
	SchemeSQLite = "sqlite"
)

// source is a parsed locator: [scheme://]path[?params].
type source struct {
	scheme string
	path   string
	params url.Values
}

func parseLocator(loc registry.Locator) (source, error) {
	raw := strings.TrimSpace(string(loc))
	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		scheme, rest = SchemeFile, raw
	}
	path, rawQuery, _ := strings.Cut(rest, "?")
	if path == "" {
		return source{}, fmt.Errorf("%w: %q has no path", ErrInvalidLocator, loc)
	}
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return source{}, fmt.Errorf("%w: %q: %w", ErrInvalidLocator, loc, err)
	}
	return source{scheme: strings.ToLower(scheme), path: path, params: params}, nil
}
