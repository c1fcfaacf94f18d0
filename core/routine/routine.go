// Package routine runs the dispatch routines end to end: callback stages,
// formulation, solve and unpacking of the solution into named result
// vectors. DCOPF compiles a declarative linear program; ACOPF drives the
// opf builders through an augmented Lagrangian around gonum's Newton
// method.
package routine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kilianp07/gridopt/core/errs"
	"github.com/kilianp07/gridopt/core/logger"
	"github.com/kilianp07/gridopt/core/metrics"
	"github.com/kilianp07/gridopt/core/network"
	"github.com/kilianp07/gridopt/internal/eventbus"
)

const tracerName = "github.com/kilianp07/gridopt/core/routine"

// Routine is a runnable dispatch routine.
type Routine interface {
	Name() string
	Run(ctx context.Context, c *network.Case) (*Result, error)
}

// Deps are the collaborators shared by every routine. Nil fields fall back
// to no-op implementations and the global tracer.
type Deps struct {
	Logger   logger.Logger
	Recorder metrics.RunRecorder
	Tracer   trace.Tracer
	Hooks    *Hooks
	// Events receives one IterationEvent per outer solver iteration.
	Events *eventbus.Bus[metrics.IterationEvent]
}

type discard struct{}

func (discard) Debugf(string, ...any)         {}
func (discard) Debugw(string, map[string]any) {}
func (discard) Infof(string, ...any)          {}
func (discard) Infow(string, map[string]any)  {}
func (discard) Warnf(string, ...any)          {}
func (discard) Errorf(string, ...any)         {}

// runner carries the steps common to every routine.
type runner struct {
	name   string
	solver string
	log    logger.Logger
	rec    metrics.RunRecorder
	tracer trace.Tracer
	hooks  *Hooks
	events *eventbus.Bus[metrics.IterationEvent]
	now    func() time.Time
}

func newRunner(name, solver string, d Deps) runner {
	r := runner{
		name:   name,
		solver: solver,
		log:    d.Logger,
		rec:    d.Recorder,
		tracer: d.Tracer,
		hooks:  d.Hooks,
		events: d.Events,
		now:    time.Now,
	}
	if r.log == nil {
		r.log = discard{}
	}
	if r.rec == nil {
		r.rec = metrics.NopSink{}
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	if r.hooks == nil {
		r.hooks = NewHooks()
	}
	return r
}

// solveFunc formulates and solves a case, filling res. Non-convergence is
// reported through res; errors abort the run.
type solveFunc func(ctx context.Context, c *network.Case, res *Result) error

func (r *runner) run(ctx context.Context, c *network.Case, solve solveFunc) (*Result, error) {
	if c == nil {
		return nil, errs.Config("case", "no case given to %s", r.name)
	}
	start := r.now()
	ctx, span := r.tracer.Start(ctx, "routine."+r.name,
		trace.WithAttributes(attribute.String("routine", r.name), attribute.String("case", c.Name)))
	defer span.End()

	res, err := r.pipeline(ctx, c, solve, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		routineRuns.WithLabelValues(r.name, "error").Inc()
		r.log.Errorf("%s on %s failed: %v", r.name, c.Name, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("converged", res.Converged),
		attribute.Int("iterations", res.Iterations),
		attribute.Float64("objective", res.Objective),
	)
	span.SetStatus(codes.Ok, "")

	ev := res.Event()
	routineRuns.WithLabelValues(r.name, ev.Status()).Inc()
	routineDuration.WithLabelValues(r.name).Observe(r.now().Sub(start).Seconds())
	if err := r.rec.RecordRun(ev); err != nil {
		r.log.Warnf("record %s run %s: %v", r.name, res.ID, err)
	}
	r.log.Infow("routine run", map[string]any{
		"run_id":     res.ID,
		"routine":    res.Routine,
		"case":       res.Case,
		"status":     res.Status,
		"objective":  res.Objective,
		"iterations": res.Iterations,
		"elapsed_ms": float64(res.Elapsed) / float64(time.Millisecond),
	})
	return res, nil
}

func (r *runner) pipeline(ctx context.Context, c *network.Case, solve solveFunc, start time.Time) (*Result, error) {
	cs := c.Clone()
	err := r.stage(ctx, StagePreIndexing, func(context.Context) error {
		var err error
		cs, err = r.hooks.PreIndexing.Run(cs)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:      uuid.NewString(),
		Routine: r.name,
		Case:    cs.Name,
		Started: start,
		Solver:  r.solver,
		BaseMVA: cs.BaseMVA,
	}
	if err := r.stage(ctx, stageSolve, func(ctx context.Context) error {
		return solve(ctx, cs, res)
	}); err != nil {
		return nil, err
	}
	res.Elapsed = r.now().Sub(start)
	if res.Converged {
		r.log.Infof("%s solved in %s, converged after %d iterations using solver %s",
			r.name, res.Elapsed, res.Iterations, res.Solver)
	} else {
		r.log.Warnf("%s did not converge after %d iterations using solver %s: %s",
			r.name, res.Iterations, res.Solver, res.Status)
	}

	for _, st := range []struct {
		name  string
		stage interface {
			Run(*Result) (*Result, error)
		}
	}{
		{StagePostIndexing, r.hooks.PostIndexing},
		{StageReport, r.hooks.Report},
		{StagePersist, r.hooks.Persist},
	} {
		err := r.stage(ctx, st.name, func(context.Context) error {
			var err error
			res, err = st.stage.Run(res)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// stage runs fn inside a child span.
func (r *runner) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *runner) publish(ev metrics.IterationEvent) {
	if r.events == nil {
		return
	}
	r.events.Publish(ev)
}
