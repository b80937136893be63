package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the check module.
// Tracks verification verdicts, pipeline latency, and review flags.
type Metrics struct {
	ChecksTotal      *prometheus.CounterVec
	VerifyDuration   prometheus.Histogram
	PipelineDuration prometheus.Histogram
	NeedsReview      prometheus.Counter
	VerifyTimeouts   prometheus.Counter
	ArtifactFailures prometheus.Counter
	Overrides        prometheus.Counter
}

// New creates a new Metrics instance with all check module metrics registered.
func New() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "genba_checks_total",
			Help: "Total safety checks by verdict",
		}, []string{"result"}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "genba_check_verify_duration_seconds",
			Help:    "Duration of verifier calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "genba_check_pipeline_duration_seconds",
			Help:    "End-to-end duration of the check pipeline",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		NeedsReview: promauto.NewCounter(prometheus.CounterOpts{
			Name: "genba_checks_needs_review_total",
			Help: "Checks flagged for supervisor review",
		}),
		VerifyTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "genba_check_verify_timeouts_total",
			Help: "Verifier calls that exceeded the deadline",
		}),
		ArtifactFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "genba_check_artifact_failures_total",
			Help: "Feedback audio artifacts that failed to persist",
		}),
		Overrides: promauto.NewCounter(prometheus.CounterOpts{
			Name: "genba_check_overrides_total",
			Help: "Supervisor overrides of check results",
		}),
	}
}

// ObserveCheck records one completed check.
func (m *Metrics) ObserveCheck(result string, start time.Time, needsReview bool) {
	m.ChecksTotal.WithLabelValues(result).Inc()
	m.PipelineDuration.Observe(time.Since(start).Seconds())
	if needsReview {
		m.NeedsReview.Inc()
	}
}

// ObserveVerify records the duration of one verifier call.
func (m *Metrics) ObserveVerify(start time.Time) {
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}

// IncrementTimeout records a verifier deadline hit.
func (m *Metrics) IncrementTimeout() {
	m.VerifyTimeouts.Inc()
}

// IncrementArtifactFailure records a failed audio persistence attempt.
func (m *Metrics) IncrementArtifactFailure() {
	m.ArtifactFailures.Inc()
}

// IncrementOverride records a supervisor override.
func (m *Metrics) IncrementOverride() {
	m.Overrides.Inc()
}
