package interaction

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/zeusync/harmonia/internal/core/observability/log"
	"github.com/zeusync/harmonia/internal/core/observability/metrics"
)

const (
	outcomeSuccess         = "success"
	outcomeFailed          = "failed"
	outcomeInvalid         = "invalid"
	outcomeNotInteractable = "not_interactable"
	outcomeUnavailable     = "unavailable"
)

type Option func(*Dispatcher)

// WithClock overrides the time source passed to gates and recorders.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithLogger(l log.Log) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithMetrics(m *metrics.Interaction) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher holds no per-call state; only the observer list is shared.
// Observers are compared by identity, so register pointers.
type Dispatcher struct {
	now     func() time.Time
	logger  log.Log
	metrics *metrics.Interaction

	mu        sync.RWMutex
	observers []Observer
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.NewNop()
	}
	d.logger = d.logger.With(log.String("component", "interaction"))
	return d
}

// AddObserver registers o. Observers are compared by identity, so o must be
// a non-nil pointer. Adding the same observer twice is a no-op.
func (d *Dispatcher) AddObserver(o Observer) error {
	if !isPointer(o) {
		return ErrInvalidObserver
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.observers {
		if existing == o {
			return nil
		}
	}
	d.observers = append(d.observers, o)
	return nil
}

// RemoveObserver reports whether o was registered.
func (d *Dispatcher) RemoveObserver(o Observer) bool {
	if !isPointer(o) {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.observers {
		if existing == o {
			d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
			return true
		}
	}
	return false
}

func isPointer(o Observer) bool {
	if o == nil {
		return false
	}
	v := reflect.ValueOf(o)
	return v.Kind() == reflect.Pointer && !v.IsNil()
}

// TryInteract validates req, dispatches it to the target's handler and
// notifies every observer once with the outcome.
func (d *Dispatcher) TryInteract(ctx context.Context, req Request) Result {
	res, outcome := d.dispatch(ctx, req)
	if d.metrics != nil {
		d.metrics.Outcomes.WithLabelValues(outcome).Inc()
	}
	d.notify(ctx, req, res)
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (Result, string) {
	if err := validate(req); err != nil {
		return Result{Message: MsgInvalidTarget, Err: err}, outcomeInvalid
	}

	handler, ok := req.Target.(Interactable)
	if !ok {
		return Result{Message: MsgNotInteractable}, outcomeNotInteractable
	}

	now := d.now()
	if gate, ok := req.Target.(Gate); ok && !gate.Available(now) {
		return Result{Message: MsgUnavailable}, outcomeUnavailable
	}

	var res Result
	if err := d.invoke(ctx, handler, req, &res); err != nil {
		return Result{Message: MsgFailed, Err: err}, outcomeFailed
	}
	if res.Message == "" {
		if res.Success {
			res.Message = MsgSucceeded
		} else {
			res.Message = MsgFailed
		}
	}
	if !res.Success {
		return res, outcomeFailed
	}

	if rec, ok := req.Target.(Recorder); ok {
		rec.RecordInteraction(now)
	}
	return res, outcomeSuccess
}

func (d *Dispatcher) invoke(ctx context.Context, h Interactable, req Request, res *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Interaction handler panicked",
				log.String("target", req.Target.ActorID()),
				log.Stringer("type", req.Type),
				log.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	h.Interact(ctx, req, res)
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, req Request, res Result) {
	d.mu.RLock()
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.RUnlock()

	for _, o := range observers {
		d.deliver(ctx, o, req, res)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, o Observer, req Request, res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Interaction observer panicked", log.Any("panic", r))
		}
	}()
	o.OnInteraction(ctx, req, res)
}

func validate(req Request) error {
	if err := validateActor("initiator", req.Initiator); err != nil {
		return err
	}
	return validateActor("target", req.Target)
}

func validateActor(field string, a Actor) error {
	if a == nil {
		return &ValidationError{Field: field, Reason: "is nil"}
	}
	if v, ok := a.(Validator); ok && !v.IsValid() {
		return &ValidationError{Field: field, Reason: "is no longer valid"}
	}
	if a.ActorID() == "" {
		return &ValidationError{Field: field, Reason: "has no id"}
	}
	return nil
}
