package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the PAF module. Tracks creation volume
// and every lifecycle transition by edge and outcome.
type Metrics struct {
	PAFsCreated        prometheus.Counter
	Transitions        *prometheus.CounterVec
	TransitionDuration prometheus.Histogram
}

// New creates a Metrics instance with all PAF module metrics registered.
func New() *Metrics {
	return &Metrics{
		PAFsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paflow_pafs_created_total",
			Help: "Total number of PAFs created",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paflow_transitions_total",
			Help: "Lifecycle transition attempts by edge and outcome",
		}, []string{"edge", "outcome"}),
		TransitionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "paflow_transition_duration_seconds",
			Help:    "Duration of transition execution (guard through commit)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCreated records a successful PAF creation.
func (m *Metrics) IncrementCreated() {
	m.PAFsCreated.Inc()
}

// RecordTransition records one transition attempt.
// Outcome is "success", "conflict", "forbidden" or "error".
func (m *Metrics) RecordTransition(edge, outcome string) {
	m.Transitions.WithLabelValues(edge, outcome).Inc()
}

// ObserveTransition records the duration of a transition attempt.
// Call with time.Now() captured at the start of the operation.
func (m *Metrics) ObserveTransition(start time.Time) {
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}
