package metrics

import "errors"

// MultiSink fans events out to several sinks. Every sink sees every event;
// errors are joined.
type MultiSink struct {
	Sinks []RunRecorder
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...RunRecorder) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRun forwards the run to all sinks.
func (m *MultiSink) RecordRun(ev RunEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordRun(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordIteration forwards solver progress to the sinks that support it.
func (m *MultiSink) RecordIteration(ev IterationEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(IterationRecorder); ok {
			if err := r.RecordIteration(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
