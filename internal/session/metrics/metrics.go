package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the session module.
// Tracks lifecycle transition counts and session durations.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	Transitions       *prometheus.CounterVec
	SessionDuration   prometheus.Histogram
	ChecksPerSession  prometheus.Histogram
	ConflictRetries   prometheus.Counter
	WelcomeSynthIssue prometheus.Counter
}

// New creates a new Metrics instance with all session module metrics registered.
func New() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "genba_sessions_started_total",
			Help: "Total number of work sessions started",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "genba_session_transitions_total",
			Help: "Total lifecycle transitions by target status",
		}, []string{"status"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "genba_session_duration_seconds",
			Help:    "Wall-clock duration of sessions from start to completion",
			Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400},
		}),
		ChecksPerSession: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "genba_session_checks_total",
			Help:    "Number of safety checks recorded per completed session",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		ConflictRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "genba_session_save_conflicts_total",
			Help: "Optimistic concurrency conflicts on session save",
		}),
		WelcomeSynthIssue: promauto.NewCounter(prometheus.CounterOpts{
			Name: "genba_session_welcome_audio_failures_total",
			Help: "Welcome audio synthesis or persistence failures at session start",
		}),
	}
}

// IncrementStarted records a session start.
func (m *Metrics) IncrementStarted() {
	m.SessionsStarted.Inc()
}

// IncrementTransition records a transition into the given status.
func (m *Metrics) IncrementTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}

// ObserveCompleted records the duration and check count of a completed session.
func (m *Metrics) ObserveCompleted(startedAt time.Time, checkCount int) {
	m.SessionDuration.Observe(time.Since(startedAt).Seconds())
	m.ChecksPerSession.Observe(float64(checkCount))
}

// IncrementConflict records a lost optimistic concurrency race.
func (m *Metrics) IncrementConflict() {
	m.ConflictRetries.Inc()
}

// IncrementWelcomeFailure records a failed welcome audio attempt.
func (m *Metrics) IncrementWelcomeFailure() {
	m.WelcomeSynthIssue.Inc()
}
