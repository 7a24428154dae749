// Package metrics exposes Prometheus metrics for the question answering flow.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cypherqa-core-poc-v1/server/internal/cypher/validator"
)

const namespace = "cypherqa"

type Metrics struct {
	requests         *prometheus.CounterVec   // by outcome
	tasks            *prometheus.CounterVec   // by tool and outcome
	validationIssues *prometheus.CounterVec   // by error kind
	attempts         prometheus.Histogram     // validation attempts per pipeline run
	corrections      prometheus.Counter       // corrector invocations
	cacheLookups     *prometheus.CounterVec   // hit or miss
	requestDuration  *prometheus.HistogramVec // seconds, by outcome
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "requests_total",
			Help:      "Questions handled, by outcome",
		}, []string{"outcome"}),

		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "tasks_total",
			Help:      "Dispatched tasks, by tool and outcome",
		}, []string{"tool", "outcome"}),

		validationIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "validation_issues_total",
			Help:      "Validation issues left on finished pipeline runs, by kind",
		}, []string{"kind"}),

		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "validation_attempts",
			Help:      "Validation attempts per pipeline run",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),

		corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "corrections_total",
			Help:      "Statements rewritten by the corrector",
		}),

		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Response cache lookups, by result",
		}, []string{"result"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "request_duration_seconds",
			Help:      "End to end request latency",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.requests, m.tasks, m.validationIssues, m.attempts, m.corrections, m.cacheLookups, m.requestDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Request outcomes.
const (
	OutcomeAnswered   = "answered"
	OutcomeOutOfScope = "out_of_scope"
	OutcomeCached     = "cached"
	OutcomeFailed     = "failed"
)

// Task outcomes.
const (
	TaskOK      = "ok"
	TaskEmpty   = "empty"
	TaskFailed  = "failed"
	TaskTimeout = "timeout"
)

func (m *Metrics) ObserveRequest(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.requestDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) ObserveTask(tool, outcome string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(tool, outcome).Inc()
}

// ObservePipeline records one finished pipeline run.
func (m *Metrics) ObservePipeline(attempts, corrections int, issues []validator.Issue) {
	if m == nil {
		return
	}
	if attempts > 0 {
		m.attempts.Observe(float64(attempts))
	}
	m.corrections.Add(float64(corrections))
	for _, i := range issues {
		m.validationIssues.WithLabelValues(string(i.Kind)).Inc()
	}
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
