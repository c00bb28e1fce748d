package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the capture pipeline.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	candidates      *prometheus.CounterVec
	commits         *prometheus.CounterVec
	speechErrors    *prometheus.CounterVec
	sessions        *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdv_request_duration_seconds",
				Help:    "Duration of pipeline operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdv_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		candidates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdv_classified_candidates_total",
				Help: "Action candidates returned by the classifier, by kind.",
			},
			[]string{"kind"},
		),
		commits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdv_commits_total",
				Help: "Commit attempts by draft kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		speechErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdv_speech_errors_total",
				Help: "Speech capture errors surfaced to the operator.",
			},
			[]string{"kind"},
		),
		sessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdv_sessions_total",
				Help: "Review session phase transitions.",
			},
			[]string{"phase"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCandidate counts one classified candidate.
func (m *Metrics) IncrCandidate(kind string) {
	m.candidates.WithLabelValues(kind).Inc()
}

// IncrCommit counts a commit attempt. outcome is success, rejected or partial.
func (m *Metrics) IncrCommit(kind, outcome string) {
	m.commits.WithLabelValues(kind, outcome).Inc()
}

// IncrSpeechError counts a surfaced speech error.
func (m *Metrics) IncrSpeechError(kind string) {
	m.speechErrors.WithLabelValues(kind).Inc()
}

// IncrSession counts a session entering phase.
func (m *Metrics) IncrSession(phase string) {
	m.sessions.WithLabelValues(phase).Inc()
}

// CommitCount returns the cumulative commit counter for kind/outcome.
// Used by tests.
func (m *Metrics) CommitCount(kind, outcome string) float64 {
	return getCounterValue(m.commits, kind, outcome)
}

// SpeechErrorCount returns the cumulative speech error counter for kind.
func (m *Metrics) SpeechErrorCount(kind string) float64 {
	return getCounterValue(m.speechErrors, kind)
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
