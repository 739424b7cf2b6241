// Package metrics holds the Prometheus collectors exported by the runtime core.
//
// Collectors are registered on a private registry rather than the global
// default one so tests can build as many instances as they like.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "harmonia"

// Registry owns the collectors of one process.
type Registry struct {
	reg *prometheus.Registry

	Loader      *Loader
	Interaction *Interaction
	Instance    *Instance
}

// Loader covers the lazy resource loader cache.
type Loader struct {
	Hits         prometheus.Counter
	Misses       prometheus.Counter
	Loads        prometheus.Counter
	Failures     prometheus.Counter
	Size         prometheus.Gauge
	LoadDuration prometheus.Histogram
}

// Interaction counts dispatcher outcomes by label.
type Interaction struct {
	Outcomes *prometheus.CounterVec
}

// Instance tracks the instanced object manager.
type Instance struct {
	Records    prometheus.Gauge
	LiveActors prometheus.Gauge
	Spawns     *prometheus.CounterVec
}

// New builds and registers every collector. Process and Go runtime collectors
// are included so /metrics is useful on its own.
func New() (*Registry, error) {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		Loader: &Loader{
			Hits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "loader", Name: "cache_hits_total",
				Help: "Total number of resource cache hits",
			}),
			Misses: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "loader", Name: "cache_misses_total",
				Help: "Total number of resource cache misses",
			}),
			Loads: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "loader", Name: "loads_total",
				Help: "Total number of resource load attempts",
			}),
			Failures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "loader", Name: "load_failures_total",
				Help: "Total number of failed resource loads",
			}),
			Size: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "loader", Name: "cache_size",
				Help: "Current number of cached resources",
			}),
			LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: "loader", Name: "load_duration_seconds",
				Help:    "Time spent materializing a resource",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			}),
		},
		Interaction: &Interaction{
			Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "interaction", Name: "requests_total",
				Help: "Interaction requests by outcome",
			}, []string{"outcome"}),
		},
		Instance: &Instance{
			Records: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "instance", Name: "records",
				Help: "Number of registered instance records",
			}),
			LiveActors: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "instance", Name: "live_actors",
				Help: "Number of spawned live actors",
			}),
			Spawns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "instance", Name: "spawns_total",
				Help: "Spawn requests by object type and result",
			}, []string{"type", "result"}),
		},
	}

	toRegister := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Loader.Hits, r.Loader.Misses, r.Loader.Loads, r.Loader.Failures,
		r.Loader.Size, r.Loader.LoadDuration,
		r.Interaction.Outcomes,
		r.Instance.Records, r.Instance.LiveActors, r.Instance.Spawns,
	}
	for _, c := range toRegister {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
