// Package metrics exports secret cache events as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/dailyyoga/secretcache/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const subsystem = "secret_cache"

// fetch results used as the "result" label of fetches_total
const (
	resultSuccess  = "success"
	resultNotFound = "not_found"
	resultError    = "error"
)

// Metrics implements cache.Recorder with Prometheus collectors
type Metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	stale         prometheus.Counter
	evictions     prometheus.Counter
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
}

var _ cache.Recorder = (*Metrics)(nil)

// New creates the secret cache collectors under namespace and registers them
// with reg. A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hits_total",
			Help:      "Reads served from the cache without a provider call.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "misses_total",
			Help:      "Reads that needed a provider call.",
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stale_total",
			Help:      "Stale values served after a failed refresh.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "evictions_total",
			Help:      "Entries evicted to respect the maximum cache size.",
		}),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "fetches_total",
				Help:      "Provider calls by result.",
			},
			[]string{"result"},
		),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of provider calls in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	collectors := map[string]prometheus.Collector{
		"hits_total":             m.hits,
		"misses_total":           m.misses,
		"stale_total":            m.stale,
		"evictions_total":        m.evictions,
		"fetches_total":          m.fetches,
		"fetch_duration_seconds": m.fetchDuration,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, ErrRegister(name, err)
		}
	}

	// Pre-create result series so they are exported before the first fetch.
	for _, r := range []string{resultSuccess, resultNotFound, resultError} {
		m.fetches.WithLabelValues(r)
	}
	return m, nil
}

func (m *Metrics) Hit() { m.hits.Inc() }

func (m *Metrics) Miss() { m.misses.Inc() }

func (m *Metrics) Stale() { m.stale.Inc() }

func (m *Metrics) Eviction() { m.evictions.Inc() }

// Fetch records one provider call and its duration
func (m *Metrics) Fetch(err error, elapsed time.Duration) {
	m.fetches.WithLabelValues(fetchResult(err)).Inc()
	m.fetchDuration.Observe(elapsed.Seconds())
}

func fetchResult(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case errors.Is(err, cache.ErrNotFound):
		return resultNotFound
	default:
		return resultError
	}
}

// Handler returns an HTTP handler exposing the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
