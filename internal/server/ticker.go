package server

import (
	"context"
	"sync"
	"time"

	"github.com/zeusync/harmonia/internal/core/instance"
	"github.com/zeusync/harmonia/internal/core/observability/log"
	"github.com/zeusync/harmonia/internal/core/storage"
)

// Ticker is driven once per host frame with the time since the last frame.
type Ticker interface {
	Tick(ctx context.Context, delta time.Duration) error
}

// TickerFunc adapts a function to Ticker.
type TickerFunc func(ctx context.Context, delta time.Duration) error

func (f TickerFunc) Tick(ctx context.Context, delta time.Duration) error {
	return f(ctx, delta)
}

// autosave writes the world to the store every interval, but only when a
// record changed since the last save. Tick and save may run concurrently,
// e.g. the tick loop and an explicit Server.Save.
type autosave struct {
	world    *instance.Manager
	store    storage.RecordStore
	interval time.Duration
	logger   log.Log

	mu        sync.Mutex
	elapsed   time.Duration
	saved     uint64
	savedOnce bool
}

func newAutosave(world *instance.Manager, store storage.RecordStore, interval time.Duration, logger log.Log) *autosave {
	return &autosave{
		world:    world,
		store:    store,
		interval: interval,
		logger:   logger.With(log.String("component", "autosave")),
	}
}

func (a *autosave) Tick(ctx context.Context, delta time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.elapsed += delta
	if a.elapsed < a.interval {
		return nil
	}
	a.elapsed = 0
	return a.saveLocked(ctx)
}

func (a *autosave) save(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saveLocked(ctx)
}

func (a *autosave) saveLocked(ctx context.Context) error {
	v := a.world.Version()
	if a.savedOnce && v == a.saved {
		return nil
	}
	records := a.world.Snapshot()
	if err := a.store.SaveRecords(ctx, records); err != nil {
		return err
	}
	a.saved, a.savedOnce = v, true
	a.logger.Debug("World saved",
		log.Int("records", len(records)),
		log.Uint64("version", v))
	return nil
}

// markSaved records v as persisted, e.g. right after a restore.
func (a *autosave) markSaved(v uint64) {
	a.mu.Lock()
	a.saved, a.savedOnce = v, true
	a.mu.Unlock()
}
