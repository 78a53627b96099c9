package linsys

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "gohp"
	metricsSubsystem = "linsys"
)

// Metrics counts global solves by solution type
type Metrics struct {
	Solves       *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	Iterations   *prometheus.CounterVec // Conjugate gradient iterations
	SolveSeconds *prometheus.HistogramVec
}

// NewMetrics registers the solver metrics on reg; a nil reg leaves them
// unregistered
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	labels := []string{"soln_type"}
	return &Metrics{
		Solves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "solves_total",
			Help:      "Global linear solves by solution type",
		}, labels),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "failures_total",
			Help:      "Global linear solves that returned an error",
		}, labels),
		Iterations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "cg_iterations_total",
			Help:      "Conjugate gradient iterations of iterative solves",
		}, labels),
		SolveSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "solve_seconds",
			Help:      "Wall time of global linear solves",
			Buckets:   prometheus.ExponentialBuckets(1.e-5, 4, 12),
		}, labels),
	}
}
