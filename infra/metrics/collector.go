package metrics

import (
	"context"

	coremetrics "github.com/kilianp07/gridopt/core/metrics"
	"github.com/kilianp07/gridopt/internal/eventbus"
)

// StartIterationCollector forwards solver iteration events from the bus to
// sink until ctx is canceled or the bus closes. The returned channel is
// closed once the collector has stopped.
func StartIterationCollector(ctx context.Context, bus *eventbus.Bus[coremetrics.IterationEvent], sink coremetrics.RunRecorder) <-chan struct{} {
	done := make(chan struct{})
	rec, ok := sink.(coremetrics.IterationRecorder)
	if bus == nil || !ok {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				_ = rec.RecordIteration(ev)
			}
		}
	}()
	return done
}
