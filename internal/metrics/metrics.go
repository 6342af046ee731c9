// Package metrics provides Prometheus instrumentation for the pennant
// SDK.
//
// Collectors are registered on the registerer the embedder supplies, so
// the SDK never touches the global default registry uninvited. All
// methods are nil-safe: an instance constructed without a registerer
// carries a nil *Metrics and instrumentation becomes a no-op.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors used by a pennant instance.
type Metrics struct {
	EvaluationsTotal *prometheus.CounterVec
	RefreshesTotal   *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	ActivationsTotal prometheus.Counter
}

// Refresh outcome label values.
const (
	RefreshOutcomeSuccess = "success"
	RefreshOutcomeFailure = "failure"
	RefreshOutcomeSkipped = "skipped"
)

// New creates all SDK collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pennant_evaluations_total",
			Help: "Total number of evaluations by type and reason.",
		}, []string{"type", "reason"}),

		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pennant_datafile_refreshes_total",
			Help: "Total number of datafile refresh attempts by outcome.",
		}, []string{"outcome"}),

		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pennant_datafile_fetch_duration_seconds",
			Help:    "Datafile fetch latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		ActivationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pennant_activations_total",
			Help: "Total number of activation events emitted.",
		}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.RefreshesTotal,
		m.FetchDuration,
		m.ActivationsTotal,
	)
	return m
}

// ObserveEvaluation records one evaluation outcome.
func (m *Metrics) ObserveEvaluation(evaluationType, reason string) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(evaluationType, reason).Inc()
}

// ObserveRefresh records one refresh attempt outcome.
func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records one datafile fetch duration.
func (m *Metrics) ObserveFetch(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(elapsed.Seconds())
}

// ObserveActivation records one emitted activation.
func (m *Metrics) ObserveActivation() {
	if m == nil {
		return
	}
	m.ActivationsTotal.Inc()
}
