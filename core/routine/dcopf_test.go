package routine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridopt/core/errs"
	"github.com/kilianp07/gridopt/core/formulation"
	"github.com/kilianp07/gridopt/core/metrics"
	"github.com/kilianp07/gridopt/core/network"
	"github.com/kilianp07/gridopt/infra/logger"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []metrics.RunEvent
	err    error
}

func (c *captureRecorder) RecordRun(ev metrics.RunEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func TestDCOPFCase2(t *testing.T) {
	rec := &captureRecorder{}
	d := NewDCOPF(DCOptions{}, Deps{Logger: logger.NopLogger{}, Recorder: rec})
	assert.Equal(t, "DCOPF", d.Name())

	res, err := d.Run(context.Background(), network.Case2())
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, "optimal", res.Status)
	assert.Equal(t, "case2", res.Case)
	assert.NotEmpty(t, res.ID)

	pg, ok := res.Value("pg")
	require.True(t, ok)
	assert.InDelta(t, 0.5, pg[0], 1e-9)
	// 0.01·50² + 10·50
	assert.InDelta(t, 525, res.Objective, 1e-6)

	a, _ := res.Value("aBus")
	assert.InDelta(t, 0, a[0], 1e-12)
	assert.InDelta(t, -0.05, a[1], 1e-9)
	plf, _ := res.Value("plf")
	assert.InDelta(t, 0.5, plf[0], 1e-9)

	require.Len(t, rec.events, 1)
	assert.Equal(t, res.ID, rec.events[0].RunID)
	assert.Equal(t, "converged", rec.events[0].Status())
}

func TestDCOPFCase9RespectsLimits(t *testing.T) {
	c := network.Case9()
	res, err := NewDCOPF(DCOptions{}, Deps{}).Run(context.Background(), c)
	require.NoError(t, err)
	require.True(t, res.Converged)

	pg, _ := res.Value("pg")
	var total float64
	for j, p := range pg {
		total += p
		assert.GreaterOrEqual(t, p, c.Gens[j].Pmin/100-1e-9)
		assert.LessOrEqual(t, p, c.Gens[j].Pmax/100+1e-9)
	}
	assert.InDelta(t, 3.15, total, 1e-8)

	plf, _ := res.Value("plf")
	require.Len(t, plf, len(c.Branches))
	for l, f := range plf {
		assert.LessOrEqual(t, math.Abs(f), c.Branches[l].RateA/100+1e-8, "branch %d", l)
	}
	_, ok := res.Value("y")
	assert.False(t, ok)
}

func TestDCOPFCase9EqualIncrementalCost(t *testing.T) {
	c := network.Case9()
	res, err := NewDCOPF(DCOptions{}, Deps{}).Run(context.Background(), c)
	require.NoError(t, err)
	require.True(t, res.Converged)
	assert.Greater(t, res.Iterations, 1)

	// no line binds, so every unit runs at the same marginal cost λ:
	// 2·c2·P + c1 = λ and ΣP = 315 MW
	var invSlope, offset float64
	for _, gc := range c.GenCosts {
		invSlope += 1 / (2 * gc.Coeffs[0])
		offset += gc.Coeffs[1] / (2 * gc.Coeffs[0])
	}
	lambda := (315 + offset) / invSlope
	var cost float64
	pg, _ := res.Value("pg")
	for j, gc := range c.GenCosts {
		want := (lambda - gc.Coeffs[1]) / (2 * gc.Coeffs[0])
		assert.InDelta(t, want/100, pg[j], 1e-3, "gen %d", j)
		cost += gc.Coeffs[0]*want*want + gc.Coeffs[1]*want + gc.Coeffs[2]
	}
	assert.InDelta(t, 24.044, lambda, 1e-3)
	assert.InDelta(t, 5216.0, cost, 0.1)
	assert.InDelta(t, cost, res.Objective, 1e-3)
}

func zonedCase9() *network.Case {
	c := network.Case9()
	for i := range c.Buses {
		switch c.Buses[i].ID {
		case 3, 7, 8, 9:
			c.Buses[i].Zone = 2
		}
	}
	return c
}

func TestDCOPFZonalSums(t *testing.T) {
	res, err := NewDCOPF(DCOptions{}, Deps{}).Run(context.Background(), zonedCase9())
	require.NoError(t, err)
	pg, _ := res.Value("pg")
	zpg, ok := res.Value("pgZone")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{pg[0] + pg[1], pg[2]}, zpg, 1e-12)
	zpd, _ := res.Value("pdZone")
	assert.InDeltaSlice(t, []float64{0.9, 2.25}, zpd, 1e-12)
}

func TestDCOPFZonalCapHook(t *testing.T) {
	h := NewHooks()
	require.NoError(t, h.DCFormulation.Add("zone-cap", func(p *formulation.Problem) (*formulation.Problem, error) {
		if err := p.AddVector("zone_cap", []float64{10, 0.5}); err != nil {
			return nil, err
		}
		return p, p.AddConstraint("zone_gen", "zone @ (cg @ pg) - zone_cap", "uq")
	}))
	res, err := NewDCOPF(DCOptions{}, Deps{Hooks: h}).Run(context.Background(), zonedCase9())
	require.NoError(t, err)
	require.True(t, res.Converged)
	pg, _ := res.Value("pg")
	assert.InDelta(t, 0.5, pg[2], 1e-6)
	assert.InDelta(t, 3.15, pg[0]+pg[1]+pg[2], 1e-8)
}

func TestDCOPFRedundantBalanceHook(t *testing.T) {
	h := NewHooks()
	require.NoError(t, h.DCFormulation.Add("balance-again", func(p *formulation.Problem) (*formulation.Problem, error) {
		return p, p.AddConstraint("pb2", "2 * sum(pg) - 2 * sum(pd)", "eq")
	}))
	res, err := NewDCOPF(DCOptions{}, Deps{Hooks: h}).Run(context.Background(), network.Case2())
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.InDelta(t, 525, res.Objective, 1e-6)
}

func TestDCOPFRoundLimit(t *testing.T) {
	res, err := NewDCOPF(DCOptions{MaxRounds: 1}, Deps{}).Run(context.Background(), network.Case9())
	assert.ErrorIs(t, err, formulation.ErrNoConvergence)
	assert.Nil(t, res)
}

func TestDCOPFPiecewiseLinearCost(t *testing.T) {
	c := network.Case2()
	c.GenCosts[0] = network.GenCost{Model: network.PWLinear, Coeffs: []float64{0, 0, 100, 1000, 200, 3000}}
	res, err := NewDCOPF(DCOptions{}, Deps{}).Run(context.Background(), c)
	require.NoError(t, err)
	assert.InDelta(t, 500, res.Objective, 1e-6)
}

func TestDCOPFInfeasibleIsAResult(t *testing.T) {
	c := network.Case2()
	c.Branches[0].RateA = 40

	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	t.Cleanup(func() { ResetMetrics(nil) })

	res, err := NewDCOPF(DCOptions{}, Deps{}).Run(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, "infeasible", res.Status)
	assert.Zero(t, res.Objective)
	assert.Equal(t, 1.0, testutil.ToFloat64(routineRuns.WithLabelValues("DCOPF", "failed")))
}

func TestDCOPFRejectsNonConvexCost(t *testing.T) {
	c := network.Case2()
	c.GenCosts[0].Coeffs = []float64{-0.01, 10, 0}
	_, err := NewDCOPF(DCOptions{}, Deps{}).Run(context.Background(), c)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	c.GenCosts[0].Coeffs = []float64{0.001, 0.01, 10, 0}
	_, err = NewDCOPF(DCOptions{}, Deps{}).Run(context.Background(), c)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestDCOPFWithoutCosts(t *testing.T) {
	c := network.Case2()
	c.GenCosts = nil
	res, err := NewDCOPF(DCOptions{}, Deps{}).Run(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 0.0, res.Objective)
	_, ok := res.Value("y")
	assert.False(t, ok)
}

func TestHooksRunInOrder(t *testing.T) {
	h := NewHooks()
	var order []string
	require.NoError(t, h.PreIndexing.Add("double-load", func(c *network.Case) (*network.Case, error) {
		order = append(order, StagePreIndexing)
		c.Buses[1].Pd *= 2
		return c, nil
	}))
	require.NoError(t, h.DCFormulation.Add("cap", func(p *formulation.Problem) (*formulation.Problem, error) {
		order = append(order, StageFormulation)
		if err := p.AddScalar("floor", 0.8); err != nil {
			return nil, err
		}
		return p, p.AddConstraint("min_output", "floor - sum(pg)", "uq")
	}))
	for _, st := range []struct {
		name string
		add  func(string, func(*Result) (*Result, error)) error
	}{
		{StagePostIndexing, func(n string, f func(*Result) (*Result, error)) error { return h.PostIndexing.Add(n, f) }},
		{StageReport, func(n string, f func(*Result) (*Result, error)) error { return h.Report.Add(n, f) }},
		{StagePersist, func(n string, f func(*Result) (*Result, error)) error { return h.Persist.Add(n, f) }},
	} {
		name := st.name
		require.NoError(t, st.add("trace", func(r *Result) (*Result, error) {
			order = append(order, name)
			return r, nil
		}))
	}

	c := network.Case2()
	res, err := NewDCOPF(DCOptions{}, Deps{Hooks: h}).Run(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{StagePreIndexing, StageFormulation, StagePostIndexing, StageReport, StagePersist}, order)
	// the caller's case is untouched
	assert.Equal(t, 50.0, c.Buses[1].Pd)
	pg, _ := res.Value("pg")
	assert.InDelta(t, 1.0, pg[0], 1e-9)
}

func TestHookErrorAbortsRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	t.Cleanup(func() { ResetMetrics(nil) })

	h := NewHooks()
	boom := errors.New("boom")
	require.NoError(t, h.Persist.Add("fail", func(r *Result) (*Result, error) { return r, boom }))
	rec := &captureRecorder{}
	res, err := NewDCOPF(DCOptions{}, Deps{Hooks: h, Recorder: rec}).Run(context.Background(), network.Case2())
	require.ErrorIs(t, err, boom)
	assert.Nil(t, res)
	assert.Empty(t, rec.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(routineRuns.WithLabelValues("DCOPF", "error")))
}

func TestNilHookPayload(t *testing.T) {
	h := NewHooks()
	require.NoError(t, h.PreIndexing.Add("lose-case", func(*network.Case) (*network.Case, error) { return nil, nil }))
	_, err := NewDCOPF(DCOptions{}, Deps{Hooks: h}).Run(context.Background(), network.Case2())
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	h = NewHooks()
	require.NoError(t, h.Report.Add("lose-result", func(*Result) (*Result, error) { return nil, nil }))
	_, err = NewDCOPF(DCOptions{}, Deps{Hooks: h}).Run(context.Background(), network.Case2())
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestRecorderErrorIsNotFatal(t *testing.T) {
	rec := &captureRecorder{err: errors.New("sink down")}
	res, err := NewDCOPF(DCOptions{}, Deps{Recorder: rec}).Run(context.Background(), network.Case2())
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Len(t, rec.events, 1)
}

func TestNilCase(t *testing.T) {
	_, err := NewDCOPF(DCOptions{}, Deps{}).Run(context.Background(), nil)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestResultRecord(t *testing.T) {
	res, err := NewDCOPF(DCOptions{}, Deps{}).Run(context.Background(), network.Case2())
	require.NoError(t, err)
	rec := res.Record()
	assert.Equal(t, res.ID, rec.ID)
	assert.Equal(t, "DCOPF", rec.Routine)
	assert.Equal(t, "gonum/simplex", rec.Solver)
	assert.True(t, rec.Converged)
	rec.Vars["pg"][0] = 99
	pg, _ := res.Value("pg")
	assert.InDelta(t, 0.5, pg[0], 1e-9)
}
