// Package metrics registers the Prometheus collectors the executor and
// aggregator report against, and exposes them over HTTP the same way the
// rest of this module's components expose their health endpoint: a
// plain net/http handler, no framework.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the set of collectors the pipeline reports against. Both
// queues are metered per spec: length and in-flight count are gauges,
// retries are a counter labeled by stage.
type Metrics struct {
	Registry *prometheus.Registry

	SigningQueueLength   prometheus.Gauge
	SigningInFlight      prometheus.Gauge
	ExecutionQueueLength prometheus.Gauge
	ExecutionInFlight    prometheus.Gauge
	RetryTotal           *prometheus.CounterVec
	ManualInterventions  *prometheus.CounterVec
}

// New registers a fresh collector set against its own registry so tests
// can construct independent Metrics instances without a global
// collision.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		SigningQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_orchestrator_signing_queue_length",
			Help: "Number of actions currently queued for signature aggregation.",
		}),
		SigningInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_orchestrator_signing_in_flight",
			Help: "Number of actions currently being processed by the signing stage.",
		}),
		ExecutionQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_orchestrator_execution_queue_length",
			Help: "Number of certificates currently queued for on-chain submission.",
		}),
		ExecutionInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_orchestrator_execution_in_flight",
			Help: "Number of certificates currently being submitted on-chain.",
		}),
		RetryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_orchestrator_retry_total",
			Help: "Count of back-off re-enqueues, labeled by stage.",
		}, []string{"stage"}),
		ManualInterventions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_orchestrator_manual_intervention_total",
			Help: "Count of actions dropped pending manual intervention, labeled by stage.",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		m.SigningQueueLength,
		m.SigningInFlight,
		m.ExecutionQueueLength,
		m.ExecutionInFlight,
		m.RetryTotal,
		m.ManualInterventions,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this collector set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
