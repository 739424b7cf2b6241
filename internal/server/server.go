package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/harmonia/internal/config"
	"github.com/zeusync/harmonia/internal/core/instance"
	"github.com/zeusync/harmonia/internal/core/interaction"
	"github.com/zeusync/harmonia/internal/core/observability/log"
	"github.com/zeusync/harmonia/internal/core/observability/metrics"
	"github.com/zeusync/harmonia/internal/core/resource/datatable"
	"github.com/zeusync/harmonia/internal/core/resource/loader"
	"github.com/zeusync/harmonia/internal/core/storage"
)

// Server hosts the runtime core: it restores the world, preloads resources
// and drives registered tickers at a fixed interval.
type Server struct {
	config config.Config
	logger log.Log

	resources    *loader.Loader[*datatable.Table]
	world        *instance.Manager
	interactions *interaction.Dispatcher
	store        storage.RecordStore
	metrics      *metrics.Registry
	autosave     *autosave

	mu      sync.Mutex
	tickers []Ticker

	running atomic.Bool
	closed  atomic.Bool

	httpServer *http.Server
	httpAddr   net.Addr
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewServer wires the host. store may be nil, in which case the world lives
// only in memory.
func NewServer(
	cfg *config.Config,
	logger log.Log,
	resources *loader.Loader[*datatable.Table],
	world *instance.Manager,
	interactions *interaction.Dispatcher,
	store storage.RecordStore,
	reg *metrics.Registry,
) *Server {
	s := &Server{
		config:       *cfg,
		logger:       logger.With(log.String("component", "server")),
		resources:    resources,
		world:        world,
		interactions: interactions,
		store:        store,
		metrics:      reg,
	}
	if s.persistent() && cfg.World.AutosaveInterval > 0 {
		s.autosave = newAutosave(world, store, cfg.World.AutosaveInterval, logger)
		s.tickers = append(s.tickers, s.autosave)
	}

	s.logger.Info("Server created",
		log.Stringer("role", world.Role()),
		log.Duration("tick_interval", cfg.Server.TickInterval),
		log.String("store", cfg.World.Store.Driver))
	return s
}

func (s *Server) Resources() *loader.Loader[*datatable.Table] { return s.resources }
func (s *Server) World() *instance.Manager                    { return s.world }
func (s *Server) Interactions() *interaction.Dispatcher       { return s.interactions }

// MetricsAddr is the bound metrics address while running, or nil.
func (s *Server) MetricsAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

// AddTicker registers t to run on every frame after the tickers already added.
func (s *Server) AddTicker(t Ticker) {
	s.mu.Lock()
	s.tickers = append(s.tickers, t)
	s.mu.Unlock()
}

// Start restores the world, preloads resources when configured, and starts
// the metrics endpoint and the tick loop.
func (s *Server) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")

	if err := s.start(ctx); err != nil {
		s.running.Store(false)
		s.logger.Error("Failed to start server", log.Error(err))
		return err
	}

	s.logger.Info("Server started successfully")
	return nil
}

func (s *Server) start(ctx context.Context) error {
	if s.persistent() {
		records, err := s.store.LoadRecords(ctx)
		if err != nil {
			return fmt.Errorf("load world: %w", err)
		}
		if err := s.world.Restore(ctx, records); err != nil {
			return fmt.Errorf("restore world: %w", err)
		}
		if s.autosave != nil {
			s.autosave.markSaved(s.world.Version())
		}
	}

	if s.config.Resources.Preload {
		if err := s.resources.PreloadAll(ctx); err != nil {
			var batch *loader.BatchError
			if !errors.As(err, &batch) {
				return fmt.Errorf("preload resources: %w", err)
			}
			s.logger.Warn("Some resources failed to preload",
				log.Int("failed", len(batch.Errors)),
				log.Error(err))
		}
	}

	if s.config.Server.MetricsAddr != "" && s.metrics != nil {
		if err := s.startMetrics(); err != nil {
			return err
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(loopCtx)
	return nil
}

func (s *Server) startMetrics() error {
	ln, err := net.Listen("tcp", s.config.Server.MetricsAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.httpServer = srv
	s.httpAddr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", log.Error(err))
		}
	}()
	s.logger.Info("Metrics listening", log.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Server.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(ctx, now.Sub(last))
			last = now
		}
	}
}

// Step runs every ticker once. The tick loop calls it each frame; hosts that
// drive frames themselves may call it directly instead of Start.
func (s *Server) Step(ctx context.Context, delta time.Duration) {
	s.mu.Lock()
	tickers := make([]Ticker, len(s.tickers))
	copy(tickers, s.tickers)
	s.mu.Unlock()

	for _, t := range tickers {
		if err := t.Tick(ctx, delta); err != nil {
			s.logger.Warn("Ticker failed", log.Error(err))
		}
	}
}

// Save writes the world to the store if it changed since the last save.
func (s *Server) Save(ctx context.Context) error {
	if s.autosave != nil {
		return s.autosave.save(ctx)
	}
	if !s.persistent() {
		return nil
	}
	return s.store.SaveRecords(ctx, s.world.Snapshot())
}

// Stop halts the tick loop, saves the world and shuts the metrics endpoint down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")

	s.cancel()
	s.wg.Wait()

	var errs []error
	if err := s.Save(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final save: %w", err))
	}

	s.mu.Lock()
	srv := s.httpServer
	s.httpServer, s.httpAddr = nil, nil
	s.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}

	s.logger.Info("Server stopped")
	return errors.Join(errs...)
}

// Close stops the server if needed and releases the store.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.logger.Info("Closing server")

	var errs []error
	if s.running.Load() {
		if err := s.Stop(context.Background()); err != nil && !errors.Is(err, ErrServerNotRunning) {
			errs = append(errs, err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info("Server closed")
	return errors.Join(errs...)
}

func (s *Server) persistent() bool {
	return s.store != nil && s.world.Role() == instance.Authority
}
