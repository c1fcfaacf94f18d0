package routine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	routineRuns     *prometheus.CounterVec
	routineDuration *prometheus.HistogramVec
	acopfOuter      prometheus.Histogram
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Histogram) {
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routine_runs_total",
			Help: "Number of routine runs by outcome",
		},
		[]string{"routine", "status"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routine_run_seconds",
			Help:    "Wall time of routine runs, hooks included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"routine"},
	)
	outer := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "acopf_outer_iterations",
			Help:    "Outer augmented Lagrangian iterations per ACOPF run",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)
	return runs, dur, outer
}

func init() {
	routineRuns, routineDuration, acopfOuter = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers routine metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(routineRuns, routineDuration, acopfOuter)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	routineRuns, routineDuration, acopfOuter = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
