package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the screener. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal     *prometheus.CounterVec // labels: outcome
	ScanDuration   prometheus.Histogram
	SymbolsTotal   *prometheus.CounterVec // labels: outcome
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	FetchDuration  *prometheus.HistogramVec // labels: source
	FetchErrors    *prometheus.CounterVec   // labels: source
	ActiveSessions prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_scans_total",
			Help: "Universe scans by outcome (completed, failed, cancelled)",
		}, []string{"outcome"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_scan_duration_seconds",
			Help:    "Wall time of completed universe scans",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		SymbolsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_symbols_evaluated_total",
			Help: "Per-symbol scan outcomes",
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_cache_hits_total",
			Help: "Price series served from a session cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_cache_misses_total",
			Help: "Price series requests that required a provider fetch",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_cache_evictions_total",
			Help: "Entries evicted because a session cache reached its bound",
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screener_provider_fetch_duration_seconds",
			Help:    "Price provider call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_provider_fetch_errors_total",
			Help: "Failed price provider calls",
		}, []string{"source"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_active_sessions",
			Help: "Open dashboard sessions",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ScansTotal, m.ScanDuration, m.SymbolsTotal,
		m.CacheHits, m.CacheMisses, m.CacheEvictions,
		m.FetchDuration, m.FetchErrors, m.ActiveSessions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveScan(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		m.ScanDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveSymbol(outcome string) {
	if m == nil {
		return
	}
	m.SymbolsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) CacheEvicted() {
	if m != nil {
		m.CacheEvictions.Inc()
	}
}

func (m *Metrics) ObserveFetch(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		m.FetchErrors.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	if m != nil {
		m.ActiveSessions.Set(float64(n))
	}
}
