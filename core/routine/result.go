package routine

import (
	"time"

	"github.com/kilianp07/gridopt/core/metrics"
	"github.com/kilianp07/gridopt/core/runlog"
)

// Result is the outcome of one routine run. Vars holds the unpacked
// decision values by name; power quantities are in p.u. and angles in
// radians unless the name says otherwise.
type Result struct {
	ID         string
	Routine    string
	Case       string
	Converged  bool
	Status     string
	Objective  float64
	Iterations int
	Elapsed    time.Duration
	Started    time.Time
	Solver     string
	BaseMVA    float64
	Vars       map[string][]float64
}

// Value returns a copy of a named result vector.
func (r *Result) Value(name string) ([]float64, bool) {
	v, ok := r.Vars[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), v...), true
}

func (r *Result) set(name string, v []float64) {
	if r.Vars == nil {
		r.Vars = make(map[string][]float64)
	}
	r.Vars[name] = append([]float64(nil), v...)
}

// Record converts the result for a run store.
func (r *Result) Record() runlog.RunRecord {
	vars := make(map[string][]float64, len(r.Vars))
	for k, v := range r.Vars {
		vars[k] = append([]float64(nil), v...)
	}
	return runlog.RunRecord{
		ID:         r.ID,
		Timestamp:  r.Started,
		Routine:    r.Routine,
		Case:       r.Case,
		Converged:  r.Converged,
		Objective:  r.Objective,
		Iterations: r.Iterations,
		ElapsedMS:  float64(r.Elapsed) / float64(time.Millisecond),
		Solver:     r.Solver,
		Vars:       vars,
	}
}

// Event converts the result for a metrics sink.
func (r *Result) Event() metrics.RunEvent {
	return metrics.RunEvent{
		RunID:      r.ID,
		Routine:    r.Routine,
		Case:       r.Case,
		Converged:  r.Converged,
		Objective:  r.Objective,
		Iterations: r.Iterations,
		Elapsed:    r.Elapsed,
		Time:       r.Started,
	}
}
