package interaction

import (
	"context"

	"github.com/zeusync/harmonia/internal/core/events/bus"
	"github.com/zeusync/harmonia/internal/core/observability/log"
)

const EventCompleted = "interaction.completed"

// CompletedEvent is the payload published for every dispatched interaction.
type CompletedEvent struct {
	Initiator string
	Target    string
	Type      Type
	Success   bool
	Message   string
	Payload   any
}

// BusObserver republishes interaction results on an event bus.
type BusObserver struct {
	bus    bus.EventBus
	source string
	logger log.Log
}

func NewBusObserver(b bus.EventBus, source string, logger log.Log) *BusObserver {
	if logger == nil {
		logger = log.NewNop()
	}
	return &BusObserver{bus: b, source: source, logger: logger}
}

func (o *BusObserver) OnInteraction(_ context.Context, req Request, res Result) {
	ev := CompletedEvent{
		Initiator: actorID(req.Initiator),
		Target:    actorID(req.Target),
		Type:      req.Type,
		Success:   res.Success,
		Message:   res.Message,
		Payload:   res.Payload,
	}
	if err := o.bus.Publish(bus.NewEvent(EventCompleted, o.source, ev)); err != nil {
		o.logger.Warn("Interaction event handler failed",
			log.String("target", ev.Target),
			log.Error(err))
	}
}

func actorID(a Actor) string {
	if a == nil {
		return ""
	}
	return a.ActorID()
}
