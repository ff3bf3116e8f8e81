package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the dashboard's Prometheus collectors. Each Registry owns its
// own prometheus.Registry so tests can build as many as they like.
type Registry struct {
	reg *prometheus.Registry

	Reconciliations prometheus.Counter
	ClampedChanges  prometheus.Counter
	InvalidChanges  *prometheus.CounterVec
	ChatMessages    *prometheus.CounterVec
	WhaleFetches    *prometheus.CounterVec
	WhaleFetchTime  *prometheus.HistogramVec
	AllocationApply *prometheus.CounterVec
}

func New() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),

		Reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreai_reconciliations_total",
			Help: "Changes rebased onto a live allocation snapshot",
		}),
		ClampedChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreai_reconcile_clamped_total",
			Help: "Reconciled changes whose delta was truncated at 0 or 100",
		}),
		InvalidChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coreai_invalid_changes_total",
			Help: "Raw changes rejected at the boundary",
		}, []string{"policy"}),
		ChatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coreai_chat_messages_total",
			Help: "Assistant replies by the source that produced them",
		}, []string{"source"}),
		WhaleFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coreai_whale_fetches_total",
			Help: "Whale source fetch attempts by source and result",
		}, []string{"source", "result"}),
		WhaleFetchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coreai_whale_fetch_seconds",
			Help:    "Whale source fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		AllocationApply: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coreai_allocation_apply_total",
			Help: "Allocation apply attempts by result",
		}, []string{"result"}),
	}

	m.reg.MustRegister(
		m.Reconciliations,
		m.ClampedChanges,
		m.InvalidChanges,
		m.ChatMessages,
		m.WhaleFetches,
		m.WhaleFetchTime,
		m.AllocationApply,
	)
	return m
}

// ObserveReconcile records one batch: n changes of which clamped hit a bound.
// Safe on a nil receiver so callers can run without metrics.
func (m *Registry) ObserveReconcile(n, clamped int) {
	if m == nil {
		return
	}
	m.Reconciliations.Add(float64(n))
	m.ClampedChanges.Add(float64(clamped))
}

func (m *Registry) ObserveInvalid(policy string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.InvalidChanges.WithLabelValues(policy).Add(float64(n))
}

func (m *Registry) ObserveChat(source string) {
	if m == nil {
		return
	}
	m.ChatMessages.WithLabelValues(source).Inc()
}

func (m *Registry) ObserveWhaleFetch(source, result string, seconds float64) {
	if m == nil {
		return
	}
	m.WhaleFetches.WithLabelValues(source, result).Inc()
	m.WhaleFetchTime.WithLabelValues(source).Observe(seconds)
}

func (m *Registry) ObserveApply(result string) {
	if m == nil {
		return
	}
	m.AllocationApply.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
