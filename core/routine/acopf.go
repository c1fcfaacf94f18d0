package routine

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/kilianp07/gridopt/core/index"
	"github.com/kilianp07/gridopt/core/metrics"
	"github.com/kilianp07/gridopt/core/network"
	"github.com/kilianp07/gridopt/core/opf"
	"github.com/kilianp07/gridopt/core/sparse"
)

// Defaults of ACOptions.
const (
	DefaultFeasTol   = 1e-6
	DefaultGradTol   = 1e-6
	DefaultMaxOuter  = 50
	DefaultMaxInner  = 200
	DefaultRho       = 100
	DefaultRhoGrowth = 10
	DefaultRhoMax    = 1e8
	DefaultCostMult  = 1e-3
)

// ACOptions configure ACOPF.
type ACOptions struct {
	FlowLim opf.FlowLimit
	// FeasTol bounds the largest constraint violation at convergence.
	FeasTol float64
	// GradTol bounds the Lagrangian gradient relative to the cost gradient.
	GradTol  float64
	MaxOuter int
	// MaxInner caps Newton iterations per outer iteration.
	MaxInner  int
	Rho       float64
	RhoGrowth float64
	RhoMax    float64
	// CostMult scales the cost before it meets the constraint terms.
	CostMult float64
	// Extra blocks are appended to the state vector and unpacked by name.
	Extra []index.Spec
}

func (o *ACOptions) setDefaults() {
	if o.FeasTol <= 0 {
		o.FeasTol = DefaultFeasTol
	}
	if o.GradTol <= 0 {
		o.GradTol = DefaultGradTol
	}
	if o.MaxOuter <= 0 {
		o.MaxOuter = DefaultMaxOuter
	}
	if o.MaxInner <= 0 {
		o.MaxInner = DefaultMaxInner
	}
	if o.Rho <= 0 {
		o.Rho = DefaultRho
	}
	if o.RhoGrowth <= 1 {
		o.RhoGrowth = DefaultRhoGrowth
	}
	if o.RhoMax < o.Rho {
		o.RhoMax = math.Max(DefaultRhoMax, o.Rho)
	}
	if o.CostMult <= 0 {
		o.CostMult = DefaultCostMult
	}
}

// ACOPF is the full AC optimal power flow. Constraints are handled by an
// augmented Lagrangian; each outer iteration minimizes it with gonum's
// Newton method using the analytic Lagrangian Hessian.
type ACOPF struct {
	runner
	opts ACOptions
}

// NewACOPF returns an ACOPF routine.
func NewACOPF(opts ACOptions, d Deps) *ACOPF {
	opts.setDefaults()
	return &ACOPF{runner: newRunner("ACOPF", "augmented-lagrangian/newton", d), opts: opts}
}

// Name returns "ACOPF".
func (a *ACOPF) Name() string { return a.name }

// Run solves c. Unpacked vectors: aBus, vBus, lmp and lmq per bus, pg and
// qg per in-service generator and y per PWL cost. lmp and lmq are in $/MWh
// and $/MVArh.
func (a *ACOPF) Run(ctx context.Context, c *network.Case) (*Result, error) {
	return a.run(ctx, c, a.solve)
}

func (a *ACOPF) solve(ctx context.Context, c *network.Case, res *Result) error {
	setup := &opf.Setup{
		Case:    c,
		Options: opf.Options{FlowLim: a.opts.FlowLim},
		Extra:   append([]index.Spec(nil), a.opts.Extra...),
	}
	err := a.stage(ctx, StageFormulation, func(context.Context) error {
		var err error
		setup, err = a.hooks.ACFormulation.Run(setup)
		return err
	})
	if err != nil {
		return err
	}
	oc, err := setup.Context()
	if err != nil {
		return err
	}
	al := newAugLag(oc, a.opts)
	out, err := al.minimize(ctx, func(it int, inner int, t *alTerms) {
		a.log.Debugf("ACOPF outer %d: cost %.6g, violation %.3g, rho %.3g, %d Newton steps", it, t.f, t.viol, al.rho, inner)
		a.publish(metrics.IterationEvent{
			RunID:           res.ID,
			Routine:         a.name,
			Iteration:       it,
			InnerIterations: inner,
			Objective:       t.f,
			Infeasibility:   t.viol,
			Penalty:         al.rho,
			Time:            a.now(),
		})
	})
	if err != nil {
		return err
	}
	acopfOuter.Observe(float64(out.iters))

	res.Iterations = out.iters
	res.Converged = out.converged
	res.Objective = out.terms.f
	res.Status = "converged"
	if !out.converged {
		res.Status = "max-iterations"
	}
	idx := oc.Index()
	x := out.x
	res.set("aBus", idx.Slice(x, index.Va))
	res.set("vBus", idx.Slice(x, index.Vm))
	res.set("pg", idx.Slice(x, index.Pg))
	res.set("qg", idx.Slice(x, index.Qg))
	if y := idx.Slice(x, index.Y); len(y) > 0 {
		res.set("y", y)
	}
	for _, spec := range setup.Extra {
		res.set(spec.Name, idx.Slice(x, spec.Name))
	}
	nb := oc.NumEq() / 2
	scale := 1 / (al.cm * oc.BaseMVA())
	lmp := make([]float64, nb)
	lmq := make([]float64, nb)
	for i := 0; i < nb; i++ {
		lmp[i] = al.lam[i] * scale
		lmq[i] = al.lam[nb+i] * scale
	}
	res.set("lmp", lmp)
	res.set("lmq", lmq)
	return nil
}

// augLag is the PHR augmented Lagrangian of one Context over the variables
// whose bounds do not pin them.
type augLag struct {
	oc  *opf.Context
	cm  float64
	rho float64

	growth, rhoMax   float64
	feasTol, gradTol float64
	maxOuter         int
	maxInner         int

	lam        []float64 // power balance
	mu         []float64 // flow limits
	muA        []float64 // linear rows
	muLo, muHi []float64 // per free variable

	a      *sparse.CSR
	u      []float64
	lo, hi []float64
	free   []int
	pos    []int // free position of each variable, -1 when fixed
	x0     []float64

	err error
}

func newAugLag(oc *opf.Context, o ACOptions) *augLag {
	lo, hi := oc.Bounds()
	a, _, u := oc.LinearConstraints()
	nra, _ := a.Dims()
	l := &augLag{
		oc:       oc,
		cm:       o.CostMult,
		rho:      o.Rho,
		growth:   o.RhoGrowth,
		rhoMax:   o.RhoMax,
		feasTol:  o.FeasTol,
		gradTol:  o.GradTol,
		maxOuter: o.MaxOuter,
		maxInner: o.MaxInner,
		lam:      make([]float64, oc.NumEq()),
		mu:       make([]float64, oc.NumIneq()),
		muA:      make([]float64, nra),
		a:        a,
		u:        u,
		lo:       lo,
		hi:       hi,
		pos:      make([]int, len(lo)),
		x0:       oc.InitialPoint(),
	}
	for i := range lo {
		l.pos[i] = -1
		if hi[i] > lo[i] {
			l.pos[i] = len(l.free)
			l.free = append(l.free, i)
		}
	}
	l.muLo = make([]float64, len(l.free))
	l.muHi = make([]float64, len(l.free))
	return l
}

// phr is the PHR penalty of c <= 0 with multiplier mu, and its first and
// second derivatives with respect to c.
func phr(c, mu, rho float64) (v, d, dd float64) {
	if t := mu + rho*c; t > 0 {
		return mu*c + rho/2*c*c, t, rho
	}
	return -mu * mu / (2 * rho), 0, 0
}

// alTerms is the augmented Lagrangian at one point with the derivative
// weights of every constraint.
type alTerms struct {
	f    float64 // unscaled cost
	v    float64
	viol float64
	cost *opf.CostEval
	cons *opf.Cons

	dEq       []float64
	dH, ddH   []float64
	dA, ddA   []float64
	dLo, ddLo []float64
	dHi, ddHi []float64
}

func (l *augLag) expand(xf []float64) []float64 {
	x := append([]float64(nil), l.x0...)
	for k, i := range l.free {
		x[i] = xf[k]
	}
	return x
}

func (l *augLag) restrict(x []float64) []float64 {
	xf := make([]float64, len(l.free))
	for k, i := range l.free {
		xf[k] = x[i]
	}
	return xf
}

func (l *augLag) eval(x []float64) (*alTerms, error) {
	cost, err := opf.Cost(l.oc, x, false)
	if err != nil {
		return nil, err
	}
	cons, err := opf.Constraints(l.oc, x)
	if err != nil {
		return nil, err
	}
	t := &alTerms{f: cost.F, v: l.cm * cost.F, cost: cost, cons: cons}
	t.dEq = make([]float64, len(cons.G))
	for i, g := range cons.G {
		t.v += l.lam[i]*g + l.rho/2*g*g
		t.dEq[i] = l.lam[i] + l.rho*g
		t.viol = math.Max(t.viol, math.Abs(g))
	}
	ineq := func(c, mu []float64) (d, dd []float64) {
		d = make([]float64, len(c))
		dd = make([]float64, len(c))
		for i := range c {
			var v float64
			v, d[i], dd[i] = phr(c[i], mu[i], l.rho)
			t.v += v
			t.viol = math.Max(t.viol, math.Abs(math.Max(c[i], -mu[i]/l.rho)))
		}
		return d, dd
	}
	t.dH, t.ddH = ineq(cons.H, l.mu)

	res := l.a.MulVec(x)
	for r := range res {
		res[r] -= l.u[r]
	}
	t.dA, t.ddA = ineq(res, l.muA)

	// absent bounds carry c = 0 and mu = 0, which contribute nothing
	n := len(l.free)
	cLo, cHi := make([]float64, n), make([]float64, n)
	for k, i := range l.free {
		if !math.IsInf(l.lo[i], -1) {
			cLo[k] = l.lo[i] - x[i]
		}
		if !math.IsInf(l.hi[i], 1) {
			cHi[k] = x[i] - l.hi[i]
		}
	}
	t.dLo, t.ddLo = ineq(cLo, l.muLo)
	t.dHi, t.ddHi = ineq(cHi, l.muHi)
	return t, nil
}

// gradient returns the full-length gradient of the augmented Lagrangian.
func (l *augLag) gradient(t *alTerms) []float64 {
	g := make([]float64, len(l.x0))
	for i, v := range t.cost.Grad {
		g[i] = l.cm * v
	}
	for _, part := range [][]float64{
		t.cons.DG.MulVecTrans(t.dEq),
		t.cons.DH.MulVecTrans(t.dH),
		l.a.MulVecTrans(t.dA),
	} {
		for i, v := range part {
			g[i] += v
		}
	}
	for k, i := range l.free {
		g[i] += t.dHi[k] - t.dLo[k]
	}
	return g
}

// hessian returns the full-length Hessian without the bound terms, which
// are diagonal and added by the caller.
func (l *augLag) hessian(x []float64, t *alTerms) (*sparse.CSR, error) {
	h, err := opf.LagrangianHessian(l.oc, x, opf.Multipliers{Eq: t.dEq, Ineq: t.dH}, l.cm)
	if err != nil {
		return nil, err
	}
	rho := make([]float64, len(t.dEq))
	for i := range rho {
		rho[i] = l.rho
	}
	nx := len(x)
	return sparse.Sum(nx, nx, h,
		sparse.WeightedGram(t.cons.DG, rho),
		sparse.WeightedGram(t.cons.DH, t.ddH),
		sparse.WeightedGram(l.a, t.ddA),
	), nil
}

func (l *augLag) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *augLag) problem(ctx context.Context) optimize.Problem {
	return optimize.Problem{
		Func: func(xf []float64) float64 {
			t, err := l.eval(l.expand(xf))
			if err != nil {
				l.fail(err)
				return math.NaN()
			}
			return t.v
		},
		Grad: func(grad, xf []float64) {
			t, err := l.eval(l.expand(xf))
			if err != nil {
				l.fail(err)
				for k := range grad {
					grad[k] = math.NaN()
				}
				return
			}
			full := l.gradient(t)
			for k, i := range l.free {
				grad[k] = full[i]
			}
		},
		Hess: func(hess *mat.SymDense, xf []float64) {
			n := len(l.free)
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					hess.SetSym(i, j, 0)
				}
			}
			x := l.expand(xf)
			t, err := l.eval(x)
			if err != nil {
				l.fail(err)
				return
			}
			h, err := l.hessian(x, t)
			if err != nil {
				l.fail(err)
				return
			}
			h.DoNonZero(func(i, j int, v float64) {
				pi, pj := l.pos[i], l.pos[j]
				if pi < 0 || pj < 0 || pi > pj {
					return
				}
				hess.SetSym(pi, pj, v)
			})
			for k := 0; k < n; k++ {
				hess.SetSym(k, k, hess.At(k, k)+t.ddLo[k]+t.ddHi[k])
			}
		},
		Status: func() (optimize.Status, error) {
			if l.err != nil {
				return optimize.Failure, l.err
			}
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
}

// initMultipliers sets the balance multipliers to the least squares
// solution of cm·∇f + DGᵀλ = 0 over the free variables.
func (l *augLag) initMultipliers() error {
	t, err := l.eval(l.x0)
	if err != nil {
		return err
	}
	m, n := len(l.free), len(l.lam)
	if m == 0 || n == 0 {
		return nil
	}
	dgt := mat.NewDense(m, n, nil)
	t.cons.DG.DoNonZero(func(r, c int, v float64) {
		if k := l.pos[c]; k >= 0 {
			dgt.Set(k, r, v)
		}
	})
	rhs := mat.NewVecDense(m, nil)
	for k, i := range l.free {
		rhs.SetVec(k, -l.cm*t.cost.Grad[i])
	}
	var lam mat.VecDense
	if err := lam.SolveVec(dgt, rhs); err != nil {
		// keep zero multipliers
		return nil
	}
	for i := range l.lam {
		if v := lam.AtVec(i); !math.IsNaN(v) && !math.IsInf(v, 0) {
			l.lam[i] = v
		}
	}
	return nil
}

// update applies the first order multiplier step at t.
func (l *augLag) update(t *alTerms) {
	copy(l.lam, t.dEq)
	copy(l.mu, t.dH)
	copy(l.muA, t.dA)
	for k := range l.free {
		l.muLo[k] = t.dLo[k]
		l.muHi[k] = t.dHi[k]
	}
}

type alOutcome struct {
	x         []float64
	terms     *alTerms
	iters     int
	converged bool
}

// minimize runs the outer loop. report is called after every outer
// iteration with the number of Newton steps it took.
func (l *augLag) minimize(ctx context.Context, report func(it, inner int, t *alTerms)) (*alOutcome, error) {
	if err := l.initMultipliers(); err != nil {
		return nil, err
	}
	xf := l.restrict(l.x0)
	prev := math.Inf(1)
	out := &alOutcome{}
	for k := 1; k <= l.maxOuter; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		settings := &optimize.Settings{
			MajorIterations:   l.maxInner,
			GradientThreshold: l.gradTol * 1e-2,
			Converger:         optimize.NeverTerminate{},
		}
		method := &optimize.Newton{GradStopThreshold: l.gradTol * 1e-2}
		var inner int
		if len(xf) > 0 {
			r, err := optimize.Minimize(l.problem(ctx), xf, settings, method)
			if l.err != nil {
				return nil, l.err
			}
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			if r == nil {
				return nil, fmt.Errorf("acopf: inner solve: %w", err)
			}
			// a stalled line search still leaves a usable point
			xf = append(xf[:0], r.X...)
			inner = r.Stats.MajorIterations
		}
		x := l.expand(xf)
		t, err := l.eval(x)
		if err != nil {
			return nil, err
		}
		stat := l.stationarity(t)
		report(k, inner, t)
		out.x, out.terms, out.iters = x, t, k
		l.update(t)
		if t.viol <= l.feasTol && stat <= l.gradTol {
			out.converged = true
			return out, nil
		}
		if t.viol > 0.25*prev {
			l.rho = math.Min(l.rho*l.growth, l.rhoMax)
		}
		prev = t.viol
	}
	return out, nil
}

// stationarity is the largest free gradient entry of the augmented
// Lagrangian relative to the scaled cost gradient.
func (l *augLag) stationarity(t *alTerms) float64 {
	g := l.gradient(t)
	var gn, fn float64
	for _, i := range l.free {
		gn = math.Max(gn, math.Abs(g[i]))
		fn = math.Max(fn, math.Abs(l.cm*t.cost.Grad[i]))
	}
	return gn / (1 + fn)
}
