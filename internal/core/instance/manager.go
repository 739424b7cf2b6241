package instance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/zeusync/harmonia/internal/core/events/bus"
	"github.com/zeusync/harmonia/internal/core/observability/log"
	"github.com/zeusync/harmonia/internal/core/observability/metrics"
)

// Role decides whether this process may mutate records.
type Role uint8

const (
	Authority Role = iota
	Proxy
)

func (r Role) String() string {
	if r == Proxy {
		return "proxy"
	}
	return "authority"
}

// ParseRole accepts "authority" and "proxy".
func ParseRole(s string) (Role, error) {
	switch s {
	case "authority", "":
		return Authority, nil
	case "proxy":
		return Proxy, nil
	}
	return Authority, fmt.Errorf("unknown role %q", s)
}

const (
	EventRegistered = "instance.registered"
	EventSpawned    = "instance.spawned"
	EventDestroyed  = "instance.destroyed"
	EventDepleted   = "instance.depleted"
	EventRemoved    = "instance.removed"
	EventRestored   = "instance.restored"
)

const eventSource = "instance.manager"

type Option func(*Manager)

func WithRole(r Role) Option {
	return func(m *Manager) { m.role = r }
}

func WithLogger(l log.Log) Option {
	return func(m *Manager) { m.logger = l }
}

// WithBus publishes lifecycle events on b.
func WithBus(b bus.EventBus) Option {
	return func(m *Manager) { m.bus = b }
}

func WithMetrics(mt *metrics.Instance) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager owns the instance records of one world.
type Manager struct {
	role    Role
	logger  log.Log
	bus     bus.EventBus
	metrics *metrics.Instance

	mu         sync.RWMutex
	records    map[uuid.UUID]Record
	strategies map[ObjectType]Strategy
	actors     map[uuid.UUID]Handle
	byRecord   map[uuid.UUID]map[uuid.UUID]struct{}

	version atomic.Uint64
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		records:    make(map[uuid.UUID]Record),
		strategies: make(map[ObjectType]Strategy),
		actors:     make(map[uuid.UUID]Handle),
		byRecord:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.NewNop()
	}
	m.logger = m.logger.With(log.String("component", "instance"), log.Stringer("role", m.role))
	return m
}

func (m *Manager) Role() Role { return m.role }

// Version changes whenever a record is added, changed or removed.
func (m *Manager) Version() uint64 { return m.version.Load() }

// Register adds rec. The first record registered under an id wins.
func (m *Manager) Register(rec Record) error {
	if m.role != Authority {
		return ErrNotAuthority
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.records[rec.ID]; exists {
		m.mu.Unlock()
		return &DuplicateIDError{ID: rec.ID}
	}
	m.records[rec.ID] = rec
	m.version.Add(1)
	m.mu.Unlock()

	m.observeSizes()
	m.logger.Debug("Instance registered",
		log.Stringer("id", rec.ID),
		log.String("type", string(rec.Type)),
		log.String("data_key", rec.DataKey))
	m.publish(EventRegistered, rec)
	return nil
}

// Place registers a new record under a freshly generated id.
func (m *Manager) Place(typ ObjectType, dataKey string, quantity int32, t Transform) (Record, error) {
	rec := Record{
		ID:        uuid.New(),
		Type:      typ,
		DataKey:   dataKey,
		Quantity:  quantity,
		Transform: t,
	}
	if err := m.Register(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (m *Manager) Get(id uuid.UUID) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Records returns every record in no particular order.
func (m *Manager) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out
}

// LiveActors returns the handles currently bound to a record.
func (m *Manager) LiveActors(id uuid.UUID) []Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Handle, 0, len(m.byRecord[id]))
	for hid := range m.byRecord[id] {
		out = append(out, m.actors[hid])
	}
	return out
}

func (m *Manager) RegisterStrategy(typ ObjectType, s Strategy) {
	m.mu.Lock()
	m.strategies[typ] = s
	m.mu.Unlock()
}

func (m *Manager) UnregisterStrategy(typ ObjectType) {
	m.mu.Lock()
	delete(m.strategies, typ)
	m.mu.Unlock()
}

// RequestSpawn creates a live actor for record id through the strategy
// registered for its type. Proxies may spawn to render records they observe.
func (m *Manager) RequestSpawn(ctx context.Context, id uuid.UUID, requestor string) (Handle, error) {
	m.mu.RLock()
	rec, ok := m.records[id]
	strategy := m.strategies[rec.Type]
	m.mu.RUnlock()

	if !ok {
		m.countSpawn("", "error")
		return Handle{}, &SpawnError{RecordID: id, Reason: ErrRecordNotFound}
	}
	if strategy == nil {
		m.countSpawn(rec.Type, "error")
		return Handle{}, &SpawnError{RecordID: id, Type: rec.Type, Reason: ErrNoStrategy}
	}

	actor, err := strategy.Spawn(ctx, rec, requestor)
	if err != nil {
		m.countSpawn(rec.Type, "error")
		m.logger.Warn("Instance spawn failed",
			log.Stringer("id", id),
			log.String("requestor", requestor),
			log.Error(err))
		return Handle{}, &SpawnError{RecordID: id, Type: rec.Type, Reason: err}
	}

	h := Handle{ID: uuid.New(), RecordID: id, Type: rec.Type, Actor: actor}

	m.mu.Lock()
	if _, still := m.records[id]; !still {
		m.mu.Unlock()
		strategy.Destroy(ctx, h)
		m.countSpawn(rec.Type, "error")
		return Handle{}, &SpawnError{RecordID: id, Type: rec.Type, Reason: ErrRecordNotFound}
	}
	m.actors[h.ID] = h
	if m.byRecord[id] == nil {
		m.byRecord[id] = make(map[uuid.UUID]struct{})
	}
	m.byRecord[id][h.ID] = struct{}{}
	m.mu.Unlock()

	m.countSpawn(rec.Type, "ok")
	m.observeSizes()
	m.logger.Debug("Instance spawned",
		log.Stringer("id", id),
		log.Stringer("handle", h.ID),
		log.String("requestor", requestor))
	m.publish(EventSpawned, h)
	return h, nil
}

// RequestDestroy tears down a live actor. The record changes only when the
// strategy reports it Depleted or Removed, and only on the authority.
func (m *Manager) RequestDestroy(ctx context.Context, h Handle) error {
	m.mu.Lock()
	h, ok := m.actors[h.ID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownHandle
	}
	m.unbindLocked(h)
	strategy := m.strategies[h.Type]
	m.mu.Unlock()

	m.observeSizes()
	if strategy == nil {
		m.publish(EventDestroyed, h)
		return fmt.Errorf("%w: %s", ErrNoStrategy, h.Type)
	}

	disposition := strategy.Destroy(ctx, h)
	m.publish(EventDestroyed, h)

	if m.role != Authority {
		return nil
	}
	switch disposition {
	case Depleted:
		m.mu.Lock()
		rec, exists := m.records[h.RecordID]
		if exists {
			rec.Quantity = 0
			m.records[rec.ID] = rec
			m.version.Add(1)
		}
		m.mu.Unlock()
		if exists {
			m.publish(EventDepleted, rec)
		}
	case Removed:
		if err := m.Remove(ctx, h.RecordID); err != nil && !errors.Is(err, ErrRecordNotFound) {
			return err
		}
	}
	return nil
}

// Deplete takes amount from the record's quantity, floored at zero, and
// returns what is left.
func (m *Manager) Deplete(id uuid.UUID, amount int32) (int32, error) {
	if m.role != Authority {
		return 0, ErrNotAuthority
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return 0, ErrRecordNotFound
	}
	rec.Quantity = max(rec.Quantity-amount, 0)
	m.records[id] = rec
	m.version.Add(1)
	m.mu.Unlock()

	if rec.Depleted() {
		m.publish(EventDepleted, rec)
	}
	return rec.Quantity, nil
}

// Remove deletes a record after destroying every live actor bound to it.
func (m *Manager) Remove(ctx context.Context, id uuid.UUID) error {
	if m.role != Authority {
		return ErrNotAuthority
	}

	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return ErrRecordNotFound
	}
	handles := m.detachLocked(id)
	delete(m.records, id)
	m.version.Add(1)
	strategies := m.strategySnapshotLocked()
	m.mu.Unlock()

	m.destroyAll(ctx, strategies, handles)
	m.observeSizes()
	m.logger.Debug("Instance removed", log.Stringer("id", id))
	m.publish(EventRemoved, rec)
	return nil
}

// Snapshot returns every record ordered by id.
func (m *Manager) Snapshot() []Record {
	out := m.Records()
	slices.SortFunc(out, func(a, b Record) int {
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return out
}

// Restore replaces all records with records. The batch is validated as a
// whole first so a bad record leaves the manager untouched. Live actors are
// destroyed since their records are being replaced.
func (m *Manager) Restore(ctx context.Context, records []Record) error {
	if m.role != Authority {
		return ErrNotAuthority
	}

	next := make(map[uuid.UUID]Record, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
		if _, dup := next[rec.ID]; dup {
			return &DuplicateIDError{ID: rec.ID}
		}
		next[rec.ID] = rec
	}

	m.mu.Lock()
	handles := make([]Handle, 0, len(m.actors))
	for _, h := range m.actors {
		handles = append(handles, h)
	}
	m.records = next
	m.actors = make(map[uuid.UUID]Handle)
	m.byRecord = make(map[uuid.UUID]map[uuid.UUID]struct{})
	m.version.Add(1)
	strategies := m.strategySnapshotLocked()
	m.mu.Unlock()

	m.destroyAll(ctx, strategies, handles)
	m.observeSizes()
	m.logger.Info("Instances restored", log.Int("records", len(next)))
	m.publish(EventRestored, len(next))
	return nil
}

func (m *Manager) unbindLocked(h Handle) {
	delete(m.actors, h.ID)
	if set := m.byRecord[h.RecordID]; set != nil {
		delete(set, h.ID)
		if len(set) == 0 {
			delete(m.byRecord, h.RecordID)
		}
	}
}

func (m *Manager) detachLocked(id uuid.UUID) []Handle {
	set := m.byRecord[id]
	handles := make([]Handle, 0, len(set))
	for hid := range set {
		handles = append(handles, m.actors[hid])
		delete(m.actors, hid)
	}
	delete(m.byRecord, id)
	return handles
}

func (m *Manager) strategySnapshotLocked() map[ObjectType]Strategy {
	out := make(map[ObjectType]Strategy, len(m.strategies))
	for k, v := range m.strategies {
		out[k] = v
	}
	return out
}

// destroyAll tears down actors whose records are going away; dispositions
// are ignored because the record outcome is already decided.
func (m *Manager) destroyAll(ctx context.Context, strategies map[ObjectType]Strategy, handles []Handle) {
	for _, h := range handles {
		if s := strategies[h.Type]; s != nil {
			s.Destroy(ctx, h)
		}
		m.publish(EventDestroyed, h)
	}
}

func (m *Manager) publish(typ string, data any) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(bus.NewEvent(typ, eventSource, data)); err != nil {
		m.logger.Warn("Instance event handler failed",
			log.String("event", typ),
			log.Error(err))
	}
}

func (m *Manager) countSpawn(typ ObjectType, result string) {
	if m.metrics != nil {
		m.metrics.Spawns.WithLabelValues(string(typ), result).Inc()
	}
}

func (m *Manager) observeSizes() {
	if m.metrics == nil {
		return
	}
	m.mu.RLock()
	records, actors := len(m.records), len(m.actors)
	m.mu.RUnlock()
	m.metrics.Records.Set(float64(records))
	m.metrics.LiveActors.Set(float64(actors))
}
