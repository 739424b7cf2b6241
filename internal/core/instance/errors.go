package instance

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotAuthority   = errors.New("instance: not the authority")
	ErrInvalidRecord  = errors.New("instance: invalid record")
	ErrRecordNotFound = errors.New("instance: record not found")
	ErrNoStrategy     = errors.New("instance: no strategy for object type")
	ErrUnknownHandle  = errors.New("instance: unknown actor handle")
	ErrInvalidAmount  = errors.New("instance: amount must be positive")
	ErrDuplicateID    = errors.New("instance: duplicate id")
	ErrSpawnFailed    = errors.New("instance: spawn failed")
)

// DuplicateIDError is returned when a record id is already registered.
type DuplicateIDError struct {
	ID uuid.UUID
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateID, e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// SpawnError reports why a live actor could not be created for a record.
type SpawnError struct {
	RecordID uuid.UUID
	Type     ObjectType
	Reason   error
}

func (e *SpawnError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("spawn %s: %v", e.RecordID, e.Reason)
	}
	return fmt.Sprintf("spawn %s (%s): %v", e.RecordID, e.Type, e.Reason)
}

func (e *SpawnError) Unwrap() []error { return []error{ErrSpawnFailed, e.Reason} }
