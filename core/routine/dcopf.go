package routine

import (
	"context"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/gridopt/core/errs"
	"github.com/kilianp07/gridopt/core/formulation"
	"github.com/kilianp07/gridopt/core/network"
)

// DCOptions configure DCOPF. Zero values take the formulation defaults.
type DCOptions struct {
	// GapTol is the relative gap at which the tangent cuts of the
	// quadratic costs stop.
	GapTol float64
	// MaxRounds caps the number of simplex solves.
	MaxRounds int
}

func (o DCOptions) solve() formulation.Options {
	return formulation.Options{GapTol: o.GapTol, MaxRounds: o.MaxRounds}
}

// DCOPF is the linearized optimal power flow. Generator outputs are the
// only decisions and line flows follow from the PTDF matrix. Polynomial
// costs enter the objective as c2·pg² + c1·pg + c0; piecewise linear costs
// through an epigraph variable per generator.
type DCOPF struct {
	runner
	opts DCOptions
}

// NewDCOPF returns a DCOPF routine.
func NewDCOPF(opts DCOptions, d Deps) *DCOPF {
	return &DCOPF{runner: newRunner("DCOPF", "gonum/simplex", d), opts: opts}
}

// Name returns "DCOPF".
func (d *DCOPF) Name() string { return d.name }

// Run solves c. Unpacked vectors: pg per generator, y per PWL cost, aBus per
// bus, plf per in-service branch and pgZone and pdZone per zone in
// ascending zone order.
func (d *DCOPF) Run(ctx context.Context, c *network.Case) (*Result, error) {
	return d.run(ctx, c, d.solve)
}

func (d *DCOPF) solve(ctx context.Context, c *network.Case, res *Result) error {
	if err := c.Validate(); err != nil {
		return err
	}
	cs := c.InService()
	dc, err := newDCModel(cs)
	if err != nil {
		return err
	}
	p, err := dc.problem()
	if err != nil {
		return err
	}
	err = d.stage(ctx, StageFormulation, func(context.Context) error {
		var err error
		p, err = d.hooks.DCFormulation.Run(p)
		return err
	})
	if err != nil {
		return err
	}
	d.log.Debugf("DCOPF formulation: %s", p)

	prog, err := formulation.Compile(p)
	if err != nil {
		return err
	}
	sol, err := prog.SolveWith(d.opts.solve())
	res.Iterations = sol.Iterations
	res.Status = string(sol.Status)
	if err != nil {
		// solver verdicts are results, anything else aborts the run
		if sol.Status == formulation.StatusFailed {
			return err
		}
		d.log.Warnf("DCOPF on %s: %v", cs.Name, err)
		return nil
	}
	res.Converged = true
	res.Objective = sol.Objective
	return dc.unpack(sol, res)
}

// dcModel holds the DC data of an in-service case.
type dcModel struct {
	cs     *network.Case
	nb, ng int
	base   float64

	pd   []float64 // p.u., shunt conductance included
	cg   *mat.Dense
	zone *mat.Dense
	il   []int
	ptd  *mat.Dense // rows of limited branches
	lim  []float64

	// polynomial costs in $/h per p.u.
	c2, c1, c0 []float64
	// epigraph rows of the PWL costs, one y per PWL generator
	pwl        []int
	slope, sel *mat.Dense
	icpt       []float64
	hasCost    bool
}

func newDCModel(cs *network.Case) (*dcModel, error) {
	m := &dcModel{
		cs:   cs,
		nb:   len(cs.Buses),
		ng:   len(cs.Gens),
		base: cs.BaseMVA,
	}
	if m.ng == 0 {
		return nil, errs.Config("gens", "no generator in service")
	}
	m.pd = make([]float64, m.nb)
	for i, b := range cs.Buses {
		m.pd[i] = (b.Pd + b.Gs) / m.base
	}
	m.cg = network.GenIncidence(cs)
	m.zone, _ = network.ZonalSum(cs)

	for l, br := range cs.Branches {
		if br.RateA > 0 {
			m.il = append(m.il, l)
			m.lim = append(m.lim, br.RateA/m.base)
		}
	}
	if len(m.il) > 0 {
		ptdf, err := network.PTDF(cs)
		if err != nil {
			return nil, err
		}
		m.ptd = mat.NewDense(len(m.il), m.nb, nil)
		for k, l := range m.il {
			m.ptd.SetRow(k, ptdf.RawRowView(l))
		}
	}
	if err := m.costs(); err != nil {
		return nil, err
	}
	return m, nil
}

type chord struct {
	slope, icpt float64
}

// costs splits the active power cost rows into quadratic coefficients and
// PWL epigraph rows y_k >= slope·Pg_j + icpt, all scaled to p.u.
func (m *dcModel) costs() error {
	if len(m.cs.GenCosts) == 0 {
		return nil
	}
	m.hasCost = true
	m.c2 = make([]float64, m.ng)
	m.c1 = make([]float64, m.ng)
	m.c0 = make([]float64, m.ng)
	var rows []chord
	var owner []int
	for j := 0; j < m.ng; j++ {
		gc := m.cs.GenCosts[j]
		name := fmt.Sprintf("gencost %d", j)
		if gc.Model != network.PWLinear {
			n := len(gc.Coeffs)
			if n > 3 {
				return errs.Config(name, "polynomial of degree %d, DC costs are at most quadratic", n-1)
			}
			c := make([]float64, 3)
			copy(c[3-n:], gc.Coeffs)
			if c[0] < 0 {
				return errs.Config(name, "cost curve is not convex")
			}
			m.c2[j] = c[0] * m.base * m.base
			m.c1[j] = c[1] * m.base
			m.c0[j] = c[2]
			continue
		}
		xs, ys := make([]float64, 0, gc.Points()), make([]float64, 0, gc.Points())
		for k := 0; k+1 < len(gc.Coeffs); k += 2 {
			xs = append(xs, gc.Coeffs[k])
			ys = append(ys, gc.Coeffs[k+1])
		}
		ch := chords(xs, ys)
		if len(ch) == 0 {
			return errs.Config(name, "cost curve has no segment")
		}
		for k := 1; k < len(ch); k++ {
			if ch[k].slope < ch[k-1].slope-1e-12 {
				return errs.Config(name, "cost curve is not convex")
			}
		}
		for _, c := range ch {
			rows = append(rows, c)
			owner = append(owner, len(m.pwl))
		}
		m.pwl = append(m.pwl, j)
	}
	if len(rows) == 0 {
		return nil
	}
	n := len(rows)
	m.slope = mat.NewDense(n, m.ng, nil)
	m.sel = mat.NewDense(n, len(m.pwl), nil)
	m.icpt = make([]float64, n)
	for r, c := range rows {
		m.slope.Set(r, m.pwl[owner[r]], c.slope*m.base)
		m.sel.Set(r, owner[r], 1)
		m.icpt[r] = c.icpt
	}
	return nil
}

func chords(xs, ys []float64) []chord {
	var out []chord
	for k := 0; k+1 < len(xs); k++ {
		if xs[k+1] == xs[k] {
			continue
		}
		s := (ys[k+1] - ys[k]) / (xs[k+1] - xs[k])
		out = append(out, chord{slope: s, icpt: ys[k] - s*xs[k]})
	}
	return out
}

// problem declares the symbolic DC problem.
func (m *dcModel) problem() (*formulation.Problem, error) {
	p := formulation.NewProblem("DCOPF")
	pmin := make([]float64, m.ng)
	pmax := make([]float64, m.ng)
	for j, g := range m.cs.Gens {
		pmin[j], pmax[j] = g.Pmin/m.base, g.Pmax/m.base
	}
	steps := []func() error{
		func() error { return p.AddVector("pmin", pmin) },
		func() error { return p.AddVector("pmax", pmax) },
		func() error { return p.AddVector("pd", m.pd) },
		func() error { return p.AddParam("cg", m.cg) },
		func() error { return p.AddParam("zone", m.zone) },
		func() error {
			return p.AddVar(formulation.VarSpec{Name: "pg", N: m.ng, Unit: "p.u.", Lower: "pmin", Upper: "pmax", Info: "generator active power"})
		},
		func() error { return p.AddConstraint("pb", "sum(pd) - sum(pg)", "eq") },
	}
	if len(m.il) > 0 {
		steps = append(steps,
			func() error { return p.AddParam("ptdf", m.ptd) },
			func() error { return p.AddVector("rate_a", m.lim) },
			func() error { return p.AddConstraint("lub", "ptdf @ (cg @ pg - pd) - rate_a", "uq") },
			func() error { return p.AddConstraint("llb", "-(ptdf @ (cg @ pg - pd)) - rate_a", "uq") },
		)
	}
	var terms []string
	if m.hasCost {
		steps = append(steps,
			func() error { return p.AddVector("c2", m.c2) },
			func() error { return p.AddVector("c1", m.c1) },
			func() error { return p.AddVector("c0", m.c0) },
		)
		terms = append(terms, "sum(c2 * pg ** 2 + c1 * pg + c0)")
	}
	if len(m.pwl) > 0 {
		steps = append(steps,
			func() error { return p.AddParam("pwl_slope", m.slope) },
			func() error { return p.AddParam("pwl_sel", m.sel) },
			func() error { return p.AddVector("pwl_icpt", m.icpt) },
			func() error {
				return p.AddVar(formulation.VarSpec{Name: "y", N: len(m.pwl), Unit: "$/h", Info: "PWL cost epigraph"})
			},
			func() error { return p.AddConstraint("pwl", "pwl_slope @ pg - pwl_sel @ y + pwl_icpt", "uq") },
		)
		terms = append(terms, "sum(y)")
	}
	obj := "0"
	if len(terms) > 0 {
		obj = strings.Join(terms, " + ")
	}
	steps = append(steps, func() error { return p.SetObjective("cost", obj, "min") })
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// unpack copies the solution into res and derives angles and flows.
func (m *dcModel) unpack(sol *formulation.Solution, res *Result) error {
	for name, v := range sol.Primal {
		res.set(name, v)
	}
	pg := sol.Primal["pg"]
	if len(pg) != m.ng {
		return errs.Dimension("pg", m.ng, len(pg))
	}
	theta, plf, err := dcFlows(m.cs, m.pd, pg)
	if err != nil {
		return err
	}
	res.set("aBus", theta)
	if plf != nil {
		res.set("plf", plf)
	}

	var gen, zpg, zpd mat.VecDense
	gen.MulVec(m.cg, mat.NewVecDense(m.ng, pg))
	zpg.MulVec(m.zone, &gen)
	zpd.MulVec(m.zone, mat.NewVecDense(m.nb, m.pd))
	res.set("pgZone", zpg.RawVector().Data)
	res.set("pdZone", zpd.RawVector().Data)
	return nil
}

// dcFlows returns the bus angles and the branch flows of a lossless network
// with bus demand pd and generator outputs pg, both in p.u. plf is nil for a
// case without branches.
func dcFlows(cs *network.Case, pd, pg []float64) (theta, plf []float64, err error) {
	nb := len(cs.Buses)
	inj := make([]float64, nb)
	for i := range inj {
		inj[i] = -pd[i]
	}
	bidx := cs.BusIndex()
	for j, g := range cs.Gens {
		inj[bidx[g.Bus]] += pg[j]
	}
	theta, err = network.DCAngles(cs, inj)
	if err != nil {
		return nil, nil, err
	}
	if len(cs.Branches) == 0 {
		return theta, nil, nil
	}
	ptdf, err := network.PTDF(cs)
	if err != nil {
		return nil, nil, err
	}
	var f mat.VecDense
	f.MulVec(ptdf, mat.NewVecDense(nb, inj))
	return theta, f.RawVector().Data, nil
}
