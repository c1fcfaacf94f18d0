package formulation

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Status of a solve.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusFailed     Status = "failed"
)

// Solution is the outcome of Program.Solve. Primal holds one vector per
// declared variable. Relaxed is set when boolean variables were solved as
// continuous values in [0, 1]. Iterations counts simplex solves.
type Solution struct {
	Status     Status
	Objective  float64
	Primal     map[string][]float64
	Relaxed    bool
	Iterations int
}

const (
	// simplexTol is the tolerance handed to lp.Simplex.
	simplexTol = 1e-9
	// rankTol separates dependent equality rows from independent ones.
	rankTol = 1e-10

	DefaultGapTol    = 1e-10
	DefaultMaxRounds = 500
	maxSpread        = 1e8
)

// ErrNoConvergence is returned when the tangent cuts of a quadratic
// objective do not close the gap within the allowed rounds.
var ErrNoConvergence = errors.New("outer approximation did not converge")

// lpSolve points to the simplex implementation. Tests override it to
// simulate solver failures.
var lpSolve = lp.Simplex

// Options tune the solve of a quadratic objective. Zero values take the
// defaults.
type Options struct {
	// GapTol is the relative gap between a quadratic term and its tangent
	// approximation at which the solve stops.
	GapTol float64
	// MaxRounds caps the number of simplex solves.
	MaxRounds int
}

func (o *Options) setDefaults() {
	if o.GapTol <= 0 {
		o.GapTol = DefaultGapTol
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = DefaultMaxRounds
	}
}

// Program is the compiled, solvable form of a Problem.
type Program struct {
	name   string
	nx     int
	c      []float64
	q      []float64 // diagonal quadratic objective, nil for linear programs
	offset float64
	sense  Sense
	vars   []compiledVar
	rows   []rowBlock

	mu  sync.Mutex
	sol *Solution
}

// Vars returns the variable names in column order.
func (p *Program) Vars() []string {
	out := make([]string, len(p.vars))
	for i, v := range p.vars {
		out[i] = v.spec.Name
	}
	return out
}

// Rows returns the number of inequality and equality rows, bound rows
// included.
func (p *Program) Rows() (ineq, eq int) {
	for _, r := range p.rows {
		n, _ := r.a.Dims()
		if r.typ == Equality {
			eq += n
		} else {
			ineq += n
		}
	}
	return ineq, eq
}

// Quadratic reports whether the objective has quadratic terms.
func (p *Program) Quadratic() bool { return p.q != nil }

// Value returns the last solved value of a variable.
func (p *Program) Value(name string) ([]float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sol == nil {
		return nil, false
	}
	v, ok := p.sol.Primal[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), v...), true
}

// Solve runs Solve with default options.
func (p *Program) Solve() (*Solution, error) {
	return p.SolveWith(Options{})
}

// SolveWith runs the simplex method, once for a linear objective and as a
// sequence of cutting-plane rounds for a quadratic one. The same program
// always yields the same solution. On solver failure the returned Solution
// carries the status and the error wraps the cause.
func (p *Program) SolveWith(o Options) (*Solution, error) {
	o.setDefaults()
	p.mu.Lock()
	defer p.mu.Unlock()

	sol := &Solution{Status: StatusFailed, Objective: math.NaN()}
	for _, v := range p.vars {
		if v.isBool {
			sol.Relaxed = true
		}
	}
	sys, err := p.system()
	if err == nil {
		var x []float64
		if p.q != nil {
			x, sol.Iterations, err = p.outer(sys, o)
		} else {
			sol.Iterations = 1
			x, err = sys.solve()
		}
		if err == nil {
			p.finish(sol, x)
			return sol, nil
		}
	}
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		sol.Status = StatusInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		sol.Status = StatusUnbounded
	}
	return sol, fmt.Errorf("solve %s: %w", p.name, err)
}

func (p *Program) finish(sol *Solution, x []float64) {
	sol.Status = StatusOptimal
	sol.Objective = p.offset
	for j, v := range x {
		sol.Objective += p.c[j] * v
		if p.q != nil {
			sol.Objective += p.q[j] * v * v
		}
	}
	sol.Primal = make(map[string][]float64, len(p.vars))
	for _, v := range p.vars {
		sol.Primal[v.spec.Name] = append([]float64(nil), x[v.off:v.off+v.spec.N]...)
	}
	p.sol = sol
}

func (p *Program) sign() float64 {
	if p.sense == Maximize {
		return -1
	}
	return 1
}

// system gathers the rows into a minimization. Rows without coefficients
// are checked and dropped.
func (p *Program) system() (*lpSystem, error) {
	s := &lpSystem{nx: p.nx, c: make([]float64, p.nx)}
	for _, blk := range p.rows {
		n, _ := blk.a.Dims()
		for i := 0; i < n; i++ {
			row := blk.a.RawRowView(i)
			if blk.typ == Equality {
				if isZero(row) {
					if math.Abs(blk.b[i]) > simplexTol {
						return nil, fmt.Errorf("row %d of %s reads 0 == %g: %w", i, blk.name, blk.b[i], lp.ErrInfeasible)
					}
					continue
				}
				s.a = append(s.a, row)
				s.b = append(s.b, blk.b[i])
				continue
			}
			if isZero(row) {
				if blk.b[i] < -simplexTol {
					return nil, fmt.Errorf("row %d of %s reads 0 <= %g: %w", i, blk.name, blk.b[i], lp.ErrInfeasible)
				}
				continue
			}
			s.g = append(s.g, row)
			s.h = append(s.h, blk.b[i])
		}
	}
	sign := p.sign()
	for j := range s.c {
		s.c[j] = sign * p.c[j]
	}
	return s, nil
}

// outer minimizes the separable convex objective c'x + Σ w_j x_j² by
// Kelley's cutting planes. Each quadratic term gets an epigraph column t_j
// bounded below by tangents t_j >= w_j (2 p x_j - p²); a tangent is added at
// the latest point until every term is within GapTol of its epigraph.
func (p *Program) outer(base *lpSystem, o Options) ([]float64, int, error) {
	sign := p.sign()
	var cols []int
	var w []float64
	for j, qj := range p.q {
		if s := sign * qj; s > 0 {
			cols = append(cols, j)
			w = append(w, s)
		}
	}
	if len(cols) == 0 {
		x, err := base.solve()
		return x, 1, err
	}

	var sys *lpSystem
	spread := 1.0
	// the first two tangents of each term straddle its unconstrained
	// minimizer, which keeps the first program bounded
	start := func() {
		sys = base.widen(len(cols))
		for k, j := range cols {
			sys.c[base.nx+k] = 1
			center := -base.c[j] / (2 * w[k])
			sys.cut(j, base.nx+k, w[k], center-spread)
			sys.cut(j, base.nx+k, w[k], center+spread)
		}
	}
	start()
	for round := 1; round <= o.MaxRounds; round++ {
		x, err := sys.solve()
		if errors.Is(err, lp.ErrUnbounded) && spread < maxSpread {
			spread *= 100
			start()
			continue
		}
		if err != nil {
			return nil, round, err
		}
		cuts := 0
		for k, j := range cols {
			f := w[k] * x[j] * x[j]
			if f-x[base.nx+k] > o.GapTol*math.Max(1, math.Abs(f)) {
				sys.cut(j, base.nx+k, w[k], x[j])
				cuts++
			}
		}
		if cuts == 0 {
			return x[:base.nx], round, nil
		}
	}
	return nil, o.MaxRounds, fmt.Errorf("%w after %d rounds", ErrNoConvergence, o.MaxRounds)
}

// lpSystem is min c'x subject to G x <= h and A x == b.
type lpSystem struct {
	nx   int
	c    []float64
	g, a [][]float64
	h, b []float64
}

// widen returns a copy with n extra columns.
func (s *lpSystem) widen(n int) *lpSystem {
	pad := func(rows [][]float64) [][]float64 {
		out := make([][]float64, len(rows))
		for i, r := range rows {
			out[i] = make([]float64, s.nx+n)
			copy(out[i], r)
		}
		return out
	}
	out := &lpSystem{
		nx: s.nx + n,
		c:  make([]float64, s.nx+n),
		g:  pad(s.g),
		a:  pad(s.a),
		h:  append([]float64(nil), s.h...),
		b:  append([]float64(nil), s.b...),
	}
	copy(out.c, s.c)
	return out
}

// cut adds the tangent of w·x² at point p as a row on column j and its
// epigraph column t.
func (s *lpSystem) cut(j, t int, w, p float64) {
	row := make([]float64, s.nx)
	row[j] = 2 * w * p
	row[t] = -1
	s.g = append(s.g, row)
	s.h = append(s.h, w*p*p)
}

func (s *lpSystem) solve() ([]float64, error) {
	// columns that appear in no row are fixed at zero or make the problem
	// unbounded
	used := make([]bool, s.nx)
	for _, rows := range [][][]float64{s.g, s.a} {
		for _, row := range rows {
			for j, v := range row {
				if v != 0 {
					used[j] = true
				}
			}
		}
	}
	var cols []int
	for j := 0; j < s.nx; j++ {
		if used[j] {
			cols = append(cols, j)
			continue
		}
		if s.c[j] != 0 {
			return nil, fmt.Errorf("column %d is free: %w", j, lp.ErrUnbounded)
		}
	}

	x := make([]float64, s.nx)
	if len(cols) == 0 {
		return x, nil
	}
	cr := make([]float64, len(cols))
	for k, j := range cols {
		cr[k] = s.c[j]
	}
	var g, a mat.Matrix
	if len(s.g) > 0 {
		g = reduce(s.g, cols)
	}
	b := s.b
	if len(s.a) > 0 {
		ar, br, err := independentRows(reduce(s.a, cols), s.b)
		if err != nil {
			return nil, err
		}
		a, b = ar, br
	}
	cStd, aStd, bStd := lp.Convert(cr, g, s.h, a, b)
	_, opt, err := lpSolve(cStd, aStd, bStd, simplexTol, nil)
	if err != nil {
		return nil, err
	}
	n := len(cols)
	for k, j := range cols {
		x[j] = opt[k] - opt[n+k]
	}
	return x, nil
}

// independentRows drops equality rows that are combinations of earlier
// rows. Each row is orthogonalized against the kept ones with the same
// combination applied to its right-hand side; a dependent row whose
// right-hand side does not vanish makes the system infeasible.
func independentRows(a *mat.Dense, b []float64) (*mat.Dense, []float64, error) {
	m, n := a.Dims()
	var (
		basis []*mat.VecDense
		rhs   []float64
		keep  []int
	)
	for i := 0; i < m; i++ {
		v := mat.VecDenseCopyOf(a.RowView(i))
		bi := b[i]
		norm := mat.Norm(v, 2)
		// two passes of modified Gram-Schmidt
		for pass := 0; pass < 2; pass++ {
			for k, q := range basis {
				d := mat.Dot(q, v)
				v.AddScaledVec(v, -d, q)
				bi -= d * rhs[k]
			}
		}
		res := mat.Norm(v, 2)
		if res <= rankTol*math.Max(1, norm) {
			if math.Abs(bi) > simplexTol*math.Max(1, math.Abs(b[i])) {
				return nil, nil, fmt.Errorf("equality row %d contradicts earlier rows: %w", i, lp.ErrInfeasible)
			}
			continue
		}
		v.ScaleVec(1/res, v)
		basis = append(basis, v)
		rhs = append(rhs, bi/res)
		keep = append(keep, i)
	}
	if len(keep) == m {
		return a, b, nil
	}
	out := mat.NewDense(len(keep), n, nil)
	ob := make([]float64, len(keep))
	for r, i := range keep {
		out.SetRow(r, a.RawRowView(i))
		ob[r] = b[i]
	}
	return out, ob, nil
}

func isZero(row []float64) bool {
	for _, v := range row {
		if v != 0 {
			return false
		}
	}
	return true
}

func reduce(rows [][]float64, cols []int) *mat.Dense {
	m := mat.NewDense(len(rows), len(cols), nil)
	for i, row := range rows {
		for k, j := range cols {
			m.Set(i, k, row[j])
		}
	}
	return m
}
