package instance

import (
	"context"

	"github.com/google/uuid"
)

// Disposition tells the manager what a destroy means for the record.
type Disposition uint8

const (
	// Keep leaves the record untouched, e.g. an actor streamed out of view.
	Keep Disposition = iota
	// Depleted sets the record quantity to zero.
	Depleted
	// Removed deletes the record.
	Removed
)

func (d Disposition) String() string {
	switch d {
	case Keep:
		return "keep"
	case Depleted:
		return "depleted"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Handle is a live actor bound to a record. It refers to the record by id
// and never owns it.
type Handle struct {
	ID       uuid.UUID
	RecordID uuid.UUID
	Type     ObjectType
	Actor    any
}

// Strategy creates and tears down live actors for one object type.
type Strategy interface {
	Spawn(ctx context.Context, rec Record, requestor string) (any, error)
	Destroy(ctx context.Context, h Handle) Disposition
}

// Funcs adapts a pair of functions to Strategy. A nil DestroyFunc keeps the record.
type Funcs struct {
	SpawnFunc   func(ctx context.Context, rec Record, requestor string) (any, error)
	DestroyFunc func(ctx context.Context, h Handle) Disposition
}

func (f Funcs) Spawn(ctx context.Context, rec Record, requestor string) (any, error) {
	return f.SpawnFunc(ctx, rec, requestor)
}

func (f Funcs) Destroy(ctx context.Context, h Handle) Disposition {
	if f.DestroyFunc == nil {
		return Keep
	}
	return f.DestroyFunc(ctx, h)
}
