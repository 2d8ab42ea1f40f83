// Package observability wires Prometheus metrics and OpenTelemetry tracing
// for the event loader.
package observability

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resource names used as metric label values.
const (
	ResourceImage  = "image"
	ResourceRecord = "record"
)

// LoaderMetrics bundles Prometheus metrics for event loading. A nil
// *LoaderMetrics is valid and records nothing.
type LoaderMetrics struct {
	Fetches      *prometheus.CounterVec
	CacheHits    *prometheus.CounterVec
	LoadDuration *prometheus.HistogramVec
}

// NewLoaderMetrics registers loader metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewLoaderMetrics(reg prometheus.Registerer) (*LoaderMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	fetches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_fetches_total",
		Help: "Remote fetches of event resources, labeled by resource and result.",
	}, []string{"resource", "result"}), "event_fetches_total")
	if err != nil {
		return nil, err
	}

	hits, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_cache_hits_total",
		Help: "Event resources served from the local cache directory.",
	}, []string{"resource"}), "event_cache_hits_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "event_load_duration_seconds",
		Help:    "Time to load one event record including fetch, cache and parse.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"result"})
	if err := reg.Register(durations); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register event_load_duration_seconds: %w", err)
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("event_load_duration_seconds already registered with different type")
		}
		durations = existing
	}

	return &LoaderMetrics{
		Fetches:      fetches,
		CacheHits:    hits,
		LoadDuration: durations,
	}, nil
}

// ObserveFetch counts one remote fetch of resource.
func (m *LoaderMetrics) ObserveFetch(resource string, err error) {
	if m == nil || m.Fetches == nil {
		return
	}
	m.Fetches.WithLabelValues(resource, resultLabel(err)).Inc()
}

// ObserveCacheHit counts one resource served from the cache.
func (m *LoaderMetrics) ObserveCacheHit(resource string) {
	if m == nil || m.CacheHits == nil {
		return
	}
	m.CacheHits.WithLabelValues(resource).Inc()
}

// ObserveLoad records the duration of one Load call.
func (m *LoaderMetrics) ObserveLoad(start time.Time, err error) {
	if m == nil || m.LoadDuration == nil {
		return
	}
	m.LoadDuration.WithLabelValues(resultLabel(err)).Observe(time.Since(start).Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("%s already registered with different type", name)
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return c, nil
}
