package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisionsTotal  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	violationsTotal prometheus.Counter
	scores          prometheus.Histogram
	latency         *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frisk_decisions_total",
				Help: "Total number of scored decisions by label",
			},
			[]string{"label"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frisk_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		violationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "frisk_contract_violations_total",
				Help: "Total number of feature contract violations",
			},
		),
		scores: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "frisk_score_distribution",
				Help:    "Distribution of final fraud probabilities",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frisk_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordDecision records a scored decision by label.
func (r *Recorder) RecordDecision(label string) {
	r.decisionsTotal.WithLabelValues(label).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordScore records a final fraud probability.
func (r *Recorder) RecordScore(probability float64) {
	r.scores.Observe(probability)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordContractViolation records a feature contract violation.
func (r *Recorder) RecordContractViolation() {
	r.violationsTotal.Inc()
}
