package routine

import (
	"context"
	"fmt"

	"github.com/kilianp07/gridopt/core/errs"
	"github.com/kilianp07/gridopt/core/network"
)

// DCPF is the linearized power flow. Generator outputs come from the case
// and the generator at the first reference bus picks up the imbalance of
// the lossless network.
type DCPF struct {
	runner
}

// NewDCPF returns a DCPF routine.
func NewDCPF(d Deps) *DCPF {
	return &DCPF{runner: newRunner("DCPF", "gonum/dense-solve", d)}
}

// Name returns "DCPF".
func (d *DCPF) Name() string { return d.name }

// Run solves c. Unpacked vectors: pg per generator, aBus per bus and plf
// per in-service branch, all in p.u. and radians. The objective is the
// generation cost of the dispatch.
func (d *DCPF) Run(ctx context.Context, c *network.Case) (*Result, error) {
	return d.run(ctx, c, d.solve)
}

func (d *DCPF) solve(_ context.Context, c *network.Case, res *Result) error {
	if err := c.Validate(); err != nil {
		return err
	}
	cs := c.InService()
	if len(cs.Gens) == 0 {
		return errs.Config("gens", "no generator in service")
	}
	refs := cs.RefBuses()
	if len(refs) == 0 {
		return errs.Config("buses", "no reference bus")
	}
	ref := cs.Buses[refs[0]].ID
	slack := -1
	for j, g := range cs.Gens {
		if g.Bus == ref {
			slack = j
			break
		}
	}
	if slack < 0 {
		return errs.Config("gens", "no generator at reference bus %d", ref)
	}

	base := cs.BaseMVA
	pd := make([]float64, len(cs.Buses))
	var load float64
	for i, b := range cs.Buses {
		pd[i] = (b.Pd + b.Gs) / base
		load += pd[i]
	}
	pg := make([]float64, len(cs.Gens))
	rest := 0.0
	for j, g := range cs.Gens {
		if j == slack {
			continue
		}
		pg[j] = g.Pg / base
		rest += pg[j]
	}
	pg[slack] = load - rest
	if sp := pg[slack] * base; sp < cs.Gens[slack].Pmin || sp > cs.Gens[slack].Pmax {
		d.log.Warnf("DCPF on %s: slack generator at bus %d outside its limits at %.2f MW", cs.Name, ref, sp)
	}

	theta, plf, err := dcFlows(cs, pd, pg)
	if err != nil {
		return fmt.Errorf("dcpf %s: %w", cs.Name, err)
	}
	res.set("pg", pg)
	res.set("aBus", theta)
	if plf != nil {
		res.set("plf", plf)
	}
	if len(cs.GenCosts) >= len(cs.Gens) {
		for j := range cs.Gens {
			res.Objective += cs.GenCosts[j].Eval(pg[j] * base)
		}
	}
	res.Iterations = 1
	res.Converged = true
	res.Status = "converged"
	return nil
}
