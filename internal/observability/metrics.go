package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so that several instances can coexist in
// one process (tests build many servers).
type Metrics struct {
	registry      *prometheus.Registry
	uploads       *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	parseDuration *prometheus.HistogramVec
	views         prometheus.Counter
	sessions      prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exam_dashboard",
			Name:      "uploads_total",
			Help:      "Uploaded files by format and outcome.",
		}, []string{"format", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exam_dashboard",
			Name:      "table_cache_lookups_total",
			Help:      "Table cache lookups by result.",
		}, []string{"result"}),
		parseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "exam_dashboard",
			Name:      "parse_duration_seconds",
			Help:      "Time spent parsing uploaded files.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"format"}),
		views: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exam_dashboard",
			Name:      "views_computed_total",
			Help:      "Filtered views computed.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "exam_dashboard",
			Name:      "sessions_active",
			Help:      "Live dashboard sessions.",
		}),
	}

	reg.MustRegister(
		m.uploads,
		m.cacheLookups,
		m.parseDuration,
		m.views,
		m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// The recording methods are nil-safe so components can run without metrics.

func (m *Metrics) ObserveUpload(format, outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(format, outcome).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveParse(format string, d time.Duration) {
	if m == nil {
		return
	}
	m.parseDuration.WithLabelValues(format).Observe(d.Seconds())
}

func (m *Metrics) ObserveView() {
	if m == nil {
		return
	}
	m.views.Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
