// Package storage defines where instance records live between sessions.
package storage

import (
	"context"
	"errors"

	"github.com/zeusync/harmonia/internal/core/instance"
)

var (
	ErrClosed        = errors.New("storage: store closed")
	ErrUnknownDriver = errors.New("storage: unknown driver")
	ErrCorrupt       = errors.New("storage: corrupt data")
)

// RecordStore persists the full set of instance records. SaveRecords
// replaces whatever was stored before; LoadRecords on an empty store returns
// no records and no error.
type RecordStore interface {
	SaveRecords(ctx context.Context, records []instance.Record) error
	LoadRecords(ctx context.Context) ([]instance.Record, error)
	Close() error
}
