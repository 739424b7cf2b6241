// Package loader resolves registry keys to materialized resources on demand
// and caches them for the life of the process.
package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/zeusync/harmonia/internal/core/observability/log"
	"github.com/zeusync/harmonia/internal/core/observability/metrics"
	"github.com/zeusync/harmonia/internal/core/resource/registry"
)

// Materializer performs the blocking load of one locator.
type Materializer[T any] interface {
	Materialize(ctx context.Context, key registry.Key, loc registry.Locator) (T, error)
}

// MaterializerFunc adapts a function to Materializer.
type MaterializerFunc[T any] func(ctx context.Context, key registry.Key, loc registry.Locator) (T, error)

func (f MaterializerFunc[T]) Materialize(ctx context.Context, key registry.Key, loc registry.Locator) (T, error) {
	return f(ctx, key, loc)
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Loads    uint64
	Failures uint64
	Size     int
}

type Option func(*options)

type options struct {
	logger  log.Log
	metrics *metrics.Loader
	workers int
}

func WithLogger(l log.Log) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *metrics.Loader) Option {
	return func(o *options) { o.metrics = m }
}

// WithPreloadWorkers bounds PreloadAll parallelism. Values below 1 mean 1.
func WithPreloadWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Loader is a get-or-load cache in front of a Materializer.
type Loader[T any] struct {
	reg     *registry.Registry
	source  Materializer[T]
	logger  log.Log
	metrics *metrics.Loader
	workers int

	mu    sync.RWMutex
	cache map[registry.Key]T
	// generation is bumped per key on invalidation so a load that started
	// before the invalidation does not repopulate the cache with stale data.
	generation map[registry.Key]uint64
	epoch      uint64
	// inflight counts running loads per key so Purge can forget them.
	inflight map[registry.Key]int

	group singleflight.Group

	hits, misses, loads, failures atomic.Uint64
}

// New builds a loader over reg. The loader watches reg and drops cached
// entries for keys changed by a reload.
func New[T any](reg *registry.Registry, source Materializer[T], opts ...Option) *Loader[T] {
	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNop()
	}
	if o.workers < 1 {
		o.workers = 1
	}

	l := &Loader[T]{
		reg:        reg,
		source:     source,
		logger:     o.logger.With(log.String("component", "loader")),
		metrics:    o.metrics,
		workers:    o.workers,
		cache:      make(map[registry.Key]T),
		generation: make(map[registry.Key]uint64),
		inflight:   make(map[registry.Key]int),
	}
	reg.Watch(func(changed []registry.Key) {
		l.Invalidate(changed...)
	})
	return l
}

// Get returns the cached resource for key, loading it on first use.
func (l *Loader[T]) Get(ctx context.Context, key registry.Key) (T, error) {
	var zero T

	l.mu.RLock()
	v, ok := l.cache[key]
	gen, epoch := l.generation[key], l.epoch
	l.mu.RUnlock()
	if ok {
		l.hits.Add(1)
		if l.metrics != nil {
			l.metrics.Hits.Inc()
		}
		return v, nil
	}

	loc, registered := l.reg.Lookup(key)
	if !registered {
		return zero, &NotFoundError{Key: key}
	}

	l.misses.Add(1)
	if l.metrics != nil {
		l.metrics.Misses.Inc()
	}

	// The shared load runs detached from any one caller's cancellation;
	// abandoning Get does not abort a load other callers may be waiting on.
	ch := l.group.DoChan(string(key), func() (any, error) {
		return l.load(context.WithoutCancel(ctx), key, loc, gen, epoch)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// load materializes loc and caches the result only if key was not
// invalidated since gen and epoch were observed, which happens before the
// locator lookup.
func (l *Loader[T]) load(ctx context.Context, key registry.Key, loc registry.Locator, gen, epoch uint64) (T, error) {
	var zero T

	l.mu.Lock()
	if v, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return v, nil
	}
	l.inflight[key]++
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		if l.inflight[key]--; l.inflight[key] <= 0 {
			delete(l.inflight, key)
		}
		l.mu.Unlock()
	}()

	l.loads.Add(1)
	start := time.Now()
	v, err := l.source.Materialize(ctx, key, loc)
	elapsed := time.Since(start)
	if l.metrics != nil {
		l.metrics.Loads.Inc()
		l.metrics.LoadDuration.Observe(elapsed.Seconds())
	}
	if err != nil {
		l.failures.Add(1)
		if l.metrics != nil {
			l.metrics.Failures.Inc()
		}
		l.logger.Warn("Resource load failed",
			log.String("key", string(key)),
			log.String("locator", string(loc)),
			log.Error(err))
		return zero, &LoadError{Key: key, Locator: loc, Reason: err}
	}

	l.mu.Lock()
	if l.generation[key] == gen && l.epoch == epoch {
		l.cache[key] = v
	}
	size := len(l.cache)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.Size.Set(float64(size))
	}
	l.logger.Debug("Resource loaded",
		log.String("key", string(key)),
		log.Duration("elapsed", elapsed))
	return v, nil
}

// PreloadAll forces a Get for every registered key. Per-key failures do not
// abort the run; they are returned together as a *BatchError.
func (l *Loader[T]) PreloadAll(ctx context.Context) error {
	keys := l.reg.Keys()

	var (
		mu       sync.Mutex
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for _, key := range keys {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, err := l.Get(gctx, key); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.logger.Info("Resources preloaded",
		log.Int("keys", len(keys)),
		log.Int("failed", len(failures)))
	if len(failures) > 0 {
		return &BatchError{Errors: failures}
	}
	return nil
}

func (l *Loader[T]) Cached(key registry.Key) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.cache[key]
	return ok
}

// Invalidate evicts keys so the next Get reloads them.
func (l *Loader[T]) Invalidate(keys ...registry.Key) {
	if len(keys) == 0 {
		return
	}
	l.mu.Lock()
	for _, k := range keys {
		delete(l.cache, k)
		l.generation[k]++
		// Later Gets must not join a load of the old locator.
		l.group.Forget(string(k))
	}
	size := len(l.cache)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.Size.Set(float64(size))
	}
	l.logger.Debug("Resources invalidated", log.Int("keys", len(keys)))
}

// Purge evicts everything.
func (l *Loader[T]) Purge() {
	l.mu.Lock()
	l.epoch++
	l.cache = make(map[registry.Key]T)
	for k := range l.inflight {
		l.group.Forget(string(k))
	}
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.Size.Set(0)
	}
}

func (l *Loader[T]) Stats() Stats {
	l.mu.RLock()
	size := len(l.cache)
	l.mu.RUnlock()
	return Stats{
		Hits:     l.hits.Load(),
		Misses:   l.misses.Load(),
		Loads:    l.loads.Load(),
		Failures: l.failures.Load(),
		Size:     size,
	}
}
