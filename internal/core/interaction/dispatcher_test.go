package interaction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/harmonia/internal/core/events/bus"
	"github.com/zeusync/harmonia/internal/core/observability/metrics"
)

type player struct{ id string }

func (p *player) ActorID() string { return p.id }

type rock struct {
	id    string
	valid bool
}

func (r *rock) ActorID() string { return r.id }
func (r *rock) IsValid() bool   { return r.valid }

type chest struct {
	*SenseInteraction
	id      string
	calls   int
	succeed bool
	message string
	panics  bool
}

func (c *chest) ActorID() string { return c.id }

func (c *chest) Interact(_ context.Context, req Request, res *Result) {
	c.calls++
	if c.panics {
		panic("lid stuck")
	}
	res.Success = c.succeed
	res.Message = c.message
	res.Payload = req.Payload
}

type recordingObserver struct {
	mu      sync.Mutex
	results []Result
}

func (o *recordingObserver) OnInteraction(_ context.Context, _ Request, res Result) {
	o.mu.Lock()
	o.results = append(o.results, res)
	o.mu.Unlock()
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.results)
}

func newChest(succeed bool) *chest {
	return &chest{
		SenseInteraction: NewSenseInteraction(SenseConfig{Enabled: true, Mode: Continuous}),
		id:               "chest-1",
		succeed:          succeed,
	}
}

func TestTryInteractInvalidRequests(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{name: "nil target", req: Request{Initiator: &player{id: "p1"}}, field: "target"},
		{name: "nil initiator", req: Request{Target: newChest(true)}, field: "initiator"},
		{name: "stale target", req: Request{Initiator: &player{id: "p1"}, Target: &rock{id: "r1"}}, field: "target"},
		{name: "empty id", req: Request{Initiator: &player{}, Target: newChest(true)}, field: "initiator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher()
			obs := &recordingObserver{}
			require.NoError(t, d.AddObserver(obs))

			res := d.TryInteract(context.Background(), tt.req)

			assert.False(t, res.Success)
			assert.Equal(t, MsgInvalidTarget, res.Message)
			var ve *ValidationError
			require.ErrorAs(t, res.Err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, res.Err, ErrInvalidRequest)
			assert.Equal(t, 1, obs.count())
			if c, ok := tt.req.Target.(*chest); ok {
				assert.Zero(t, c.calls)
			}
		})
	}
}

func TestTryInteractNotInteractable(t *testing.T) {
	d := NewDispatcher()
	obs := &recordingObserver{}
	require.NoError(t, d.AddObserver(obs))

	res := d.TryInteract(context.Background(), Request{
		Initiator: &player{id: "p1"},
		Target:    &rock{id: "r1", valid: true},
		Type:      Chop,
	})

	assert.False(t, res.Success)
	assert.Equal(t, MsgNotInteractable, res.Message)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, obs.count())
}

func TestTryInteractDispatchesToHandler(t *testing.T) {
	d := NewDispatcher()
	obs := &recordingObserver{}
	require.NoError(t, d.AddObserver(obs))
	c := newChest(true)

	res := d.TryInteract(context.Background(), Request{
		Initiator: &player{id: "p1"},
		Target:    c,
		Type:      Open,
		Payload:   "gold",
	})

	assert.True(t, res.Success)
	assert.Equal(t, MsgSucceeded, res.Message)
	assert.Equal(t, "gold", res.Payload)
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, 1, c.Count())
	require.Equal(t, 1, obs.count())
	assert.Equal(t, res, obs.results[0])
}

func TestTryInteractKeepsHandlerMessage(t *testing.T) {
	d := NewDispatcher()
	c := newChest(false)
	c.message = "chest is locked"

	res := d.TryInteract(context.Background(), Request{Initiator: &player{id: "p1"}, Target: c})

	assert.False(t, res.Success)
	assert.Equal(t, "chest is locked", res.Message)
	assert.Zero(t, c.Count(), "failed interactions are not recorded")
}

func TestTryInteractRecoversHandlerPanic(t *testing.T) {
	d := NewDispatcher()
	obs := &recordingObserver{}
	require.NoError(t, d.AddObserver(obs))
	c := newChest(true)
	c.panics = true

	res := d.TryInteract(context.Background(), Request{Initiator: &player{id: "p1"}, Target: c})

	assert.False(t, res.Success)
	assert.Equal(t, MsgFailed, res.Message)
	assert.ErrorIs(t, res.Err, ErrHandlerPanic)
	assert.Equal(t, 1, obs.count())
}

func TestTryInteractHonoursGate(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDispatcher(WithClock(func() time.Time { return now }))
	c := newChest(true)
	c.Config.Mode = OneTime
	req := Request{Initiator: &player{id: "p1"}, Target: c, Type: Pickup}

	assert.True(t, d.TryInteract(context.Background(), req).Success)

	res := d.TryInteract(context.Background(), req)
	assert.False(t, res.Success)
	assert.Equal(t, MsgUnavailable, res.Message)
	assert.Equal(t, 1, c.calls)
}

func TestObserversAddRemove(t *testing.T) {
	d := NewDispatcher()
	obs := &recordingObserver{}
	require.NoError(t, d.AddObserver(obs))
	require.NoError(t, d.AddObserver(obs))
	req := Request{Initiator: &player{id: "p1"}, Target: newChest(true)}

	d.TryInteract(context.Background(), req)
	assert.Equal(t, 1, obs.count())

	assert.True(t, d.RemoveObserver(obs))
	assert.False(t, d.RemoveObserver(obs))
	d.TryInteract(context.Background(), req)
	assert.Equal(t, 1, obs.count())
}

func TestOutcomeMetrics(t *testing.T) {
	m, err := metrics.New()
	require.NoError(t, err)
	d := NewDispatcher(WithMetrics(m.Interaction))
	ctx := context.Background()

	d.TryInteract(ctx, Request{Initiator: &player{id: "p1"}, Target: newChest(true)})
	d.TryInteract(ctx, Request{Initiator: &player{id: "p1"}, Target: newChest(false)})
	d.TryInteract(ctx, Request{Initiator: &player{id: "p1"}})
	d.TryInteract(ctx, Request{Initiator: &player{id: "p1"}, Target: &rock{id: "r", valid: true}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Interaction.Outcomes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Interaction.Outcomes.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Interaction.Outcomes.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Interaction.Outcomes.WithLabelValues("not_interactable")))
}

func TestBusObserverPublishesCompletedEvent(t *testing.T) {
	b := bus.New()
	var got []CompletedEvent
	_, err := b.Subscribe(EventCompleted, func(ev bus.Event) error {
		got = append(got, ev.Data().(CompletedEvent))
		return nil
	})
	require.NoError(t, err)

	d := NewDispatcher()
	require.NoError(t, d.AddObserver(NewBusObserver(b, "test", nil)))
	d.TryInteract(context.Background(), Request{Initiator: &player{id: "p1"}, Target: newChest(true), Type: Gather})

	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].Initiator)
	assert.Equal(t, "chest-1", got[0].Target)
	assert.Equal(t, Gather, got[0].Type)
	assert.True(t, got[0].Success)
}

type valueObserver struct {
	seen []Result
}

func (o valueObserver) OnInteraction(context.Context, Request, Result) {}

func TestAddObserverRejectsNonPointers(t *testing.T) {
	d := NewDispatcher()

	assert.ErrorIs(t, d.AddObserver(nil), ErrInvalidObserver)
	assert.ErrorIs(t, d.AddObserver(valueObserver{}), ErrInvalidObserver)
	var nilPtr *recordingObserver
	assert.ErrorIs(t, d.AddObserver(nilPtr), ErrInvalidObserver)
	assert.False(t, d.RemoveObserver(valueObserver{}))

	assert.NotPanics(t, func() {
		d.TryInteract(context.Background(), Request{Initiator: &player{id: "p1"}, Target: newChest(true)})
	})
}
