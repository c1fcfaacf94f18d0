package metrics

import "time"

// RunEvent summarizes one routine run.
type RunEvent struct {
	RunID      string
	Routine    string
	Case       string
	Converged  bool
	Objective  float64
	Iterations int
	Elapsed    time.Duration
	Time       time.Time
}

// Status returns "converged" or "failed".
func (e RunEvent) Status() string {
	if e.Converged {
		return "converged"
	}
	return "failed"
}

// RunRecorder records run summaries.
type RunRecorder interface {
	RecordRun(ev RunEvent) error
}

// IterationEvent reports the progress of an iterative solver after one
// outer iteration.
type IterationEvent struct {
	RunID     string
	Routine   string
	Iteration int
	// InnerIterations is the number of inner solver steps spent.
	InnerIterations int
	Objective       float64
	// Infeasibility is the largest constraint violation.
	Infeasibility float64
	Penalty       float64
	Time          time.Time
}

// IterationRecorder records solver progress.
type IterationRecorder interface {
	RecordIteration(ev IterationEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordRun(RunEvent) error             { return nil }
func (NopSink) RecordIteration(IterationEvent) error { return nil }
