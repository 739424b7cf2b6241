package injector

import (
	"fmt"

	"github.com/google/wire"

	"github.com/zeusync/harmonia/internal/config"
	"github.com/zeusync/harmonia/internal/core/events/bus"
	"github.com/zeusync/harmonia/internal/core/instance"
	"github.com/zeusync/harmonia/internal/core/interaction"
	"github.com/zeusync/harmonia/internal/core/observability/log"
	"github.com/zeusync/harmonia/internal/core/observability/metrics"
	"github.com/zeusync/harmonia/internal/core/resource/datatable"
	"github.com/zeusync/harmonia/internal/core/resource/loader"
	"github.com/zeusync/harmonia/internal/core/resource/registry"
	"github.com/zeusync/harmonia/internal/core/storage"
	"github.com/zeusync/harmonia/internal/core/storage/snapshot"
	"github.com/zeusync/harmonia/internal/core/storage/sqlite"
	"github.com/zeusync/harmonia/internal/server"
)

// ProviderSet builds a *server.Server from a *config.Config.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	metrics.New,
	bus.New,
	ProvideRegistry,
	ProvideResources,
	ProvideWorld,
	ProvideInteractions,
	ProvideStore,
	server.NewServer,
)

func ProvideLogger(cfg *config.Config) (log.Log, error) {
	return log.New(log.Options{
		Level:    log.ParseLevel(cfg.Log.Level),
		Encoding: cfg.Log.Encoding,
	})
}

func ProvideRegistry(cfg *config.Config) (*registry.Registry, error) {
	return registry.New(cfg.Resources.Entries...)
}

func ProvideResources(cfg *config.Config, reg *registry.Registry, logger log.Log, m *metrics.Registry) *loader.Loader[*datatable.Table] {
	return loader.New[*datatable.Table](reg,
		datatable.NewMaterializer(cfg.Resources.Root, logger),
		loader.WithLogger(logger),
		loader.WithMetrics(m.Loader),
		loader.WithPreloadWorkers(cfg.Resources.PreloadWorkers),
	)
}

func ProvideWorld(cfg *config.Config, logger log.Log, b bus.EventBus, m *metrics.Registry) (*instance.Manager, error) {
	role, err := instance.ParseRole(cfg.World.Role)
	if err != nil {
		return nil, err
	}
	return instance.NewManager(
		instance.WithRole(role),
		instance.WithLogger(logger),
		instance.WithBus(b),
		instance.WithMetrics(m.Instance),
	), nil
}

func ProvideInteractions(logger log.Log, b bus.EventBus, m *metrics.Registry) (*interaction.Dispatcher, error) {
	d := interaction.NewDispatcher(
		interaction.WithLogger(logger),
		interaction.WithMetrics(m.Interaction),
	)
	if err := d.AddObserver(interaction.NewBusObserver(b, "interaction.dispatcher", logger)); err != nil {
		return nil, err
	}
	return d, nil
}

// ProvideStore opens the configured record store. An empty driver means no
// persistence and yields a nil store.
func ProvideStore(cfg *config.Config) (storage.RecordStore, error) {
	switch cfg.World.Store.Driver {
	case "":
		return nil, nil
	case "sqlite":
		s, err := sqlite.Open(cfg.World.Store.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "snapshot":
		s, err := snapshot.Open(cfg.World.Store.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownDriver, cfg.World.Store.Driver)
	}
}
