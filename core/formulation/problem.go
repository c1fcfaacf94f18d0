// Package formulation turns a declarative dispatch problem into a linear
// program. Parameters, variables, constraints and the objective are
// registered by name; expressions are parsed once into syntax trees, lowered
// to affine form and handed to gonum's simplex solver.
package formulation

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/gridopt/core/errs"
)

// ConstraintType is the relation of a constraint expression to zero.
type ConstraintType int

const (
	// Equality means expr == 0.
	Equality ConstraintType = iota
	// Inequality means expr <= 0.
	Inequality
)

func (t ConstraintType) String() string {
	if t == Equality {
		return "eq"
	}
	return "uq"
}

// ParseConstraintType accepts "eq"/"equality" and "uq"/"ineq"/"inequality".
func ParseConstraintType(s string) (ConstraintType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eq", "equality":
		return Equality, nil
	case "uq", "ineq", "inequality":
		return Inequality, nil
	}
	return 0, errs.Config(s, "unknown constraint type")
}

// Sense is the optimization direction.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	if s == Maximize {
		return "max"
	}
	return "min"
}

// ParseSense accepts "min"/"minimize" and "max"/"maximize".
func ParseSense(s string) (Sense, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min", "minimize":
		return Minimize, nil
	case "max", "maximize":
		return Maximize, nil
	}
	return 0, errs.Config(s, "unknown objective sense")
}

// UnitBool marks a boolean decision variable.
const UnitBool = "bool"

// VarSpec declares a decision vector. Lower and Upper name parameters
// holding its bounds; an empty name means unbounded on that side.
type VarSpec struct {
	Name  string
	N     int
	Unit  string
	Lower string
	Upper string
	Info  string
}

// Constraint is a named relational expression.
type Constraint struct {
	Name string
	Expr string
	Type ConstraintType
	Info string
}

// Objective is the expression to optimize.
type Objective struct {
	Name  string
	Expr  string
	Sense Sense
}

// Problem is the symbolic description of a dispatch problem. It is filled
// in order and frozen once compilation starts.
type Problem struct {
	Name string

	params     map[string]*mat.Dense
	paramOrder []string
	vars       []VarSpec
	cons       []Constraint
	obj        *Objective
	frozen     bool
}

// NewProblem returns an empty problem.
func NewProblem(name string) *Problem {
	return &Problem{Name: name, params: make(map[string]*mat.Dense)}
}

func (p *Problem) checkOpen(name string) error {
	if p.frozen {
		return errs.Config(name, "problem %q is frozen", p.Name)
	}
	return nil
}

func (p *Problem) checkName(name string) error {
	if name == "" {
		return errs.Config(name, "empty name")
	}
	if _, ok := p.params[name]; ok {
		return errs.Config(name, "name already declared as a parameter")
	}
	for _, v := range p.vars {
		if v.Name == name {
			return errs.Config(name, "name already declared as a variable")
		}
	}
	if name == "sum" {
		return errs.Config(name, "reserved name")
	}
	return nil
}

// AddParam registers a matrix parameter.
func (p *Problem) AddParam(name string, v *mat.Dense) error {
	if err := p.checkOpen(name); err != nil {
		return err
	}
	if err := p.checkName(name); err != nil {
		return err
	}
	if v == nil || v.IsEmpty() {
		return errs.Config(name, "parameter has no value")
	}
	p.params[name] = mat.DenseCopyOf(v)
	p.paramOrder = append(p.paramOrder, name)
	return nil
}

// AddVector registers a column vector parameter.
func (p *Problem) AddVector(name string, v []float64) error {
	if len(v) == 0 {
		return errs.Config(name, "parameter has no value")
	}
	return p.AddParam(name, mat.NewDense(len(v), 1, append([]float64(nil), v...)))
}

// AddScalar registers a scalar parameter.
func (p *Problem) AddScalar(name string, v float64) error {
	return p.AddParam(name, mat.NewDense(1, 1, []float64{v}))
}

// AddVar registers a decision vector.
func (p *Problem) AddVar(v VarSpec) error {
	if err := p.checkOpen(v.Name); err != nil {
		return err
	}
	if err := p.checkName(v.Name); err != nil {
		return err
	}
	if v.N <= 0 {
		return errs.Config(v.Name, "variable length %d must be positive", v.N)
	}
	p.vars = append(p.vars, v)
	return nil
}

// AddConstraint registers a constraint. typ is one of the tokens accepted by
// ParseConstraintType.
func (p *Problem) AddConstraint(name, expr, typ string) error {
	if err := p.checkOpen(name); err != nil {
		return err
	}
	t, err := ParseConstraintType(typ)
	if err != nil {
		return err
	}
	for _, c := range p.cons {
		if c.Name == name {
			return errs.Config(name, "constraint declared twice")
		}
	}
	p.cons = append(p.cons, Constraint{Name: name, Expr: expr, Type: t})
	return nil
}

// RemoveConstraint drops a constraint before compilation.
func (p *Problem) RemoveConstraint(name string) error {
	if err := p.checkOpen(name); err != nil {
		return err
	}
	for i, c := range p.cons {
		if c.Name == name {
			p.cons = append(p.cons[:i], p.cons[i+1:]...)
			return nil
		}
	}
	return errs.Config(name, "unknown constraint")
}

// SetObjective sets the objective. sense is one of the tokens accepted by
// ParseSense.
func (p *Problem) SetObjective(name, expr, sense string) error {
	if err := p.checkOpen(name); err != nil {
		return err
	}
	s, err := ParseSense(sense)
	if err != nil {
		return err
	}
	p.obj = &Objective{Name: name, Expr: expr, Sense: s}
	return nil
}

// Param returns a copy of a parameter value.
func (p *Problem) Param(name string) (*mat.Dense, bool) {
	v, ok := p.params[name]
	if !ok {
		return nil, false
	}
	return mat.DenseCopyOf(v), true
}

// Vars returns the declared variables in order.
func (p *Problem) Vars() []VarSpec { return append([]VarSpec(nil), p.vars...) }

// Constraints returns the declared constraints in order.
func (p *Problem) Constraints() []Constraint { return append([]Constraint(nil), p.cons...) }

// Frozen reports whether compilation has started.
func (p *Problem) Frozen() bool { return p.frozen }

func (p *Problem) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "problem %s: %d params, %d vars, %d constraints", p.Name, len(p.params), len(p.vars), len(p.cons))
	if p.obj != nil {
		fmt.Fprintf(&b, ", %s %s", p.obj.Sense, p.obj.Expr)
	}
	return b.String()
}
