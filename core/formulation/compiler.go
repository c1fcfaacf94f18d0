package formulation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/gridopt/core/errs"
)

// State is the compiler's progress.
type State int

const (
	Uninitialized State = iota
	VariablesBound
	ConstraintsBound
	ObjectiveBound
	Compiled
)

func (s State) String() string {
	switch s {
	case VariablesBound:
		return "variables-bound"
	case ConstraintsBound:
		return "constraints-bound"
	case ObjectiveBound:
		return "objective-bound"
	case Compiled:
		return "compiled"
	default:
		return "uninitialized"
	}
}

// row block of a compiled constraint: rows of A x (==|<=) b.
type rowBlock struct {
	name string
	typ  ConstraintType
	a    *mat.Dense
	b    []float64
}

// compiledVar is a decision vector placed in the solver's column space.
type compiledVar struct {
	spec   VarSpec
	off    int
	isBool bool
}

// Compiler lowers a Problem in four steps. It is single use and must not
// be shared between goroutines.
type Compiler struct {
	p     *Problem
	state State

	vars  []compiledVar
	slots map[string]varSlot
	nx    int

	rows []rowBlock

	c      []float64
	q      []float64
	offset float64
	sense  Sense
}

// NewCompiler returns a compiler for p.
func NewCompiler(p *Problem) *Compiler {
	return &Compiler{p: p}
}

// State returns the current state.
func (c *Compiler) State() State { return c.state }

func (c *Compiler) expect(s State, step string) error {
	if c.state != s {
		return errs.Config(step, "cannot %s in state %s", step, c.state)
	}
	return nil
}

// BindVariables freezes the problem, places every variable and synthesizes
// its bound rows.
func (c *Compiler) BindVariables() error {
	if err := c.expect(Uninitialized, "bind variables"); err != nil {
		return err
	}
	if len(c.p.vars) == 0 {
		return errs.Config(c.p.Name, "problem declares no variables")
	}
	c.p.frozen = true
	c.slots = make(map[string]varSlot, len(c.p.vars))
	for _, v := range c.p.vars {
		cv := compiledVar{spec: v, off: c.nx, isBool: v.Unit == UnitBool}
		c.vars = append(c.vars, cv)
		c.slots[v.Name] = varSlot{off: c.nx, n: v.N}
		c.nx += v.N
	}
	for _, v := range c.vars {
		lb, err := c.bound(v, v.spec.Lower, 0)
		if err != nil {
			return err
		}
		ub, err := c.bound(v, v.spec.Upper, 1)
		if err != nil {
			return err
		}
		c.addBoundRows(v, lb, -1, "_lb")
		c.addBoundRows(v, ub, 1, "_ub")
	}
	c.state = VariablesBound
	return nil
}

// bound resolves a bound parameter to one value per entry. Booleans default
// to [0, 1] and are clipped to it.
func (c *Compiler) bound(v compiledVar, param string, side int) ([]float64, error) {
	n := v.spec.N
	out := make([]float64, n)
	inf := math.Inf(2*side - 1)
	for i := range out {
		out[i] = inf
	}
	if param != "" {
		p, ok := c.p.params[param]
		if !ok {
			return nil, errs.Formulation(param, v.spec.Name, "bound parameter %q is not declared", param)
		}
		r, cols := p.Dims()
		switch {
		case r*cols == 1:
			for i := range out {
				out[i] = p.At(0, 0)
			}
		case r*cols == n && (cols == 1 || r == 1):
			for i := range out {
				if cols == 1 {
					out[i] = p.At(i, 0)
				} else {
					out[i] = p.At(0, i)
				}
			}
		default:
			return nil, errs.Formulation(param, v.spec.Name, "bound has shape %dx%d, variable has %d entries", r, cols, n)
		}
	}
	if v.isBool {
		for i := range out {
			if side == 0 {
				out[i] = math.Max(out[i], 0)
			} else {
				out[i] = math.Min(out[i], 1)
			}
		}
	}
	return out, nil
}

// addBoundRows adds sign·x_i <= sign·bound_i for finite bounds.
func (c *Compiler) addBoundRows(v compiledVar, bound []float64, sign float64, suffix string) {
	var idx []int
	for i, b := range bound {
		if !math.IsInf(b, 0) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return
	}
	a := mat.NewDense(len(idx), c.nx, nil)
	b := make([]float64, len(idx))
	for r, i := range idx {
		a.Set(r, v.off+i, sign)
		b[r] = sign * bound[i]
	}
	c.rows = append(c.rows, rowBlock{name: v.spec.Name + suffix, typ: Inequality, a: a, b: b})
}

func (c *Compiler) lowerer(expr string) *lowerer {
	return &lowerer{expr: expr, nx: c.nx, params: c.p.params, vars: c.slots}
}

// BindConstraints lowers every constraint expression.
func (c *Compiler) BindConstraints() error {
	if err := c.expect(VariablesBound, "bind constraints"); err != nil {
		return err
	}
	for _, con := range c.p.cons {
		n, err := parseExpr(con.Expr)
		if err != nil {
			return withName(err, con.Name)
		}
		v, err := c.lowerer(con.Expr).lower(n)
		if err != nil {
			return err
		}
		if v.isConst() {
			return errs.Formulation(con.Expr, con.Name, "constraint references no decision variable")
		}
		if v.quadratic() {
			return errs.Formulation(con.Expr, con.Name, "constraint is quadratic")
		}
		b := make([]float64, len(v.k))
		for i, k := range v.k {
			b[i] = -k
		}
		c.rows = append(c.rows, rowBlock{name: con.Name, typ: con.Type, a: v.a, b: b})
	}
	c.state = ConstraintsBound
	return nil
}

// BindObjective lowers the objective. It must be a scalar.
func (c *Compiler) BindObjective() error {
	if err := c.expect(ConstraintsBound, "bind objective"); err != nil {
		return err
	}
	obj := c.p.obj
	if obj == nil {
		return errs.Config(c.p.Name, "problem has no objective")
	}
	n, err := parseExpr(obj.Expr)
	if err != nil {
		return withName(err, obj.Name)
	}
	v, err := c.lowerer(obj.Expr).lower(n)
	if err != nil {
		return err
	}
	if !v.isScalar() {
		return errs.Formulation(obj.Expr, obj.Name, "objective has shape %dx%d, want a scalar", v.r, v.c)
	}
	c.c = make([]float64, c.nx)
	if v.a != nil {
		copy(c.c, v.a.RawRowView(0))
	}
	if v.quadratic() {
		c.q = make([]float64, c.nx)
		copy(c.q, v.q.RawRowView(0))
		for j, qj := range c.q {
			if (obj.Sense == Minimize && qj < 0) || (obj.Sense == Maximize && qj > 0) {
				return errs.Formulation(obj.Expr, c.column(j), "objective is not convex in %s", c.column(j))
			}
		}
	}
	c.offset = v.k[0]
	c.sense = obj.Sense
	c.state = ObjectiveBound
	return nil
}

// column names the variable entry at state position j.
func (c *Compiler) column(j int) string {
	for _, v := range c.vars {
		if j >= v.off && j < v.off+v.spec.N {
			return fmt.Sprintf("%s[%d]", v.spec.Name, j-v.off)
		}
	}
	return fmt.Sprintf("x[%d]", j)
}

// Finalize returns the program handle. The compiler accepts no further
// calls.
func (c *Compiler) Finalize() (*Program, error) {
	if err := c.expect(ObjectiveBound, "finalize"); err != nil {
		return nil, err
	}
	prog := &Program{
		name:   c.p.Name,
		nx:     c.nx,
		c:      c.c,
		q:      c.q,
		offset: c.offset,
		sense:  c.sense,
		vars:   c.vars,
		rows:   c.rows,
	}
	c.state = Compiled
	return prog, nil
}

// Compile runs all compiler steps on p.
func Compile(p *Problem) (*Program, error) {
	c := NewCompiler(p)
	steps := []func() error{c.BindVariables, c.BindConstraints, c.BindObjective}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("compile %s: %w", p.Name, err)
		}
	}
	return c.Finalize()
}

func withName(err error, name string) error {
	var e *errs.Error
	if errors.As(err, &e) && e.Name == "" {
		e.Name = name
	}
	return err
}
