package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/gridopt/core/metrics"
)

// PromSink records run summaries and solver progress in Prometheus metrics.
type PromSink struct {
	runs       *prometheus.CounterVec
	objective  *prometheus.GaugeVec
	iterations *prometheus.HistogramVec
	infeas     *prometheus.GaugeVec
}

// NewPromSinkWithRegistry registers the sink's collectors on reg. A nil
// registerer defaults to the global one. Collectors already registered by an
// earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_runs_recorded_total",
		Help: "Routine runs recorded by the Prometheus sink",
	}, []string{"routine", "status"})
	objective := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_objective",
		Help: "Objective value of the last run",
	}, []string{"routine"})
	iterations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_solver_iterations",
		Help:    "Solver iterations per run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"routine"})
	infeas := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_solver_infeasibility",
		Help: "Largest constraint violation after the last outer iteration",
	}, []string{"routine"})

	var err error
	if runs, err = register(reg, runs); err != nil {
		return nil, err
	}
	if objective, err = register(reg, objective); err != nil {
		return nil, err
	}
	if iterations, err = register(reg, iterations); err != nil {
		return nil, err
	}
	if infeas, err = register(reg, infeas); err != nil {
		return nil, err
	}
	return &PromSink{runs: runs, objective: objective, iterations: iterations, infeas: infeas}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRun counts the run and exports its objective and iteration count.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.WithLabelValues(ev.Routine, ev.Status()).Inc()
	if ev.Converged {
		s.objective.WithLabelValues(ev.Routine).Set(ev.Objective)
	}
	s.iterations.WithLabelValues(ev.Routine).Observe(float64(ev.Iterations))
	return nil
}

// RecordIteration exports the current infeasibility.
func (s *PromSink) RecordIteration(ev coremetrics.IterationEvent) error {
	s.infeas.WithLabelValues(ev.Routine).Set(ev.Infeasibility)
	return nil
}
