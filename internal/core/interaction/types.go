// Package interaction routes interaction requests to capability-typed
// targets and reports a structured result to observers.
package interaction

import (
	"context"
	"time"
)

// Type is the verb of an interaction.
type Type uint8

const (
	None Type = iota
	Pickup
	Gather
	Chop
	Open
	Custom
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Pickup:
		return "pickup"
	case Gather:
		return "gather"
	case Chop:
		return "chop"
	case Open:
		return "open"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// Actor is anything that can take part in an interaction.
type Actor interface {
	ActorID() string
}

// Validator is implemented by actors that can become stale, for example a
// world object whose record has been removed.
type Validator interface {
	IsValid() bool
}

// Interactable is the capability a target exposes to accept interactions.
// The handler fills res in place.
type Interactable interface {
	Interact(ctx context.Context, req Request, res *Result)
}

// Gate lets a target refuse interactions before its handler runs.
type Gate interface {
	Available(now time.Time) bool
}

// Recorder is told about every successful interaction.
type Recorder interface {
	RecordInteraction(now time.Time)
}

type Request struct {
	Initiator Actor
	Target    Actor
	Type      Type
	Payload   any
}

type Result struct {
	Success bool
	Message string
	Payload any
	// Err carries the cause for failures the dispatcher itself produced.
	Err error
}

// Observer receives every (request, result) pair exactly once.
type Observer interface {
	OnInteraction(ctx context.Context, req Request, res Result)
}

const (
	MsgInvalidTarget   = "invalid target"
	MsgNotInteractable = "not interactable"
	MsgUnavailable     = "interaction unavailable"
	MsgSucceeded       = "interaction succeeded"
	MsgFailed          = "interaction failed"
)
