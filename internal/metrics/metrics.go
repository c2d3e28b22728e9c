// Package metrics exposes Prometheus instrumentation for the assistant.
// Metrics live on a private registry so tests can build as many
// instances as they like.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks message volume, answer strategies, retrieval outcomes,
// milestone completions and generation latency. All methods are safe on
// a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	Messages            prometheus.Counter
	Answers             *prometheus.CounterVec
	Retrievals          *prometheus.CounterVec
	MilestonesCompleted *prometheus.CounterVec
	PersistFailures     prometheus.Counter
	GenerationDuration  *prometheus.HistogramVec
}

// New creates a Metrics instance registered on a fresh registry that
// also carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Messages: f.NewCounter(prometheus.CounterOpts{
			Name: "admitassist_messages_total",
			Help: "Total number of chat messages received",
		}),
		Answers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admitassist_answers_total",
			Help: "Answers composed, by strategy (grounded, ungrounded, retrieved, notice)",
		}, []string{"strategy"}),
		Retrievals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admitassist_retrieval_total",
			Help: "Brochure retrievals, by outcome (hit, miss)",
		}, []string{"outcome"}),
		MilestonesCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admitassist_milestones_completed_total",
			Help: "Milestones newly completed from chat, by milestone",
		}, []string{"milestone"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "admitassist_persist_failures_total",
			Help: "Onboarding status saves that failed",
		}),
		GenerationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "admitassist_generation_duration_seconds",
			Help:    "Duration of answer generation calls, by outcome (ok, error)",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IncMessages records a received chat message.
func (m *Metrics) IncMessages() {
	if m == nil {
		return
	}
	m.Messages.Inc()
}

// IncAnswer records the strategy that produced a reply.
func (m *Metrics) IncAnswer(strategy string) {
	if m == nil {
		return
	}
	m.Answers.WithLabelValues(strategy).Inc()
}

// IncRetrieval records a retrieval hit or miss.
func (m *Metrics) IncRetrieval(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.Retrievals.WithLabelValues(outcome).Inc()
}

// IncMilestoneCompleted records a milestone transitioning to done.
func (m *Metrics) IncMilestoneCompleted(milestone string) {
	if m == nil {
		return
	}
	m.MilestonesCompleted.WithLabelValues(milestone).Inc()
}

// IncPersistFailure records a failed status save.
func (m *Metrics) IncPersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

// ObserveGeneration records a generation call's duration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveGeneration(start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.GenerationDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
