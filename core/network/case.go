// Package network holds the bus, branch, generator and cost tables of a
// power network case and derives the admittance and sensitivity matrices
// used by the dispatch formulations.
package network

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/kilianp07/gridopt/core/errs"
)

// BusType follows the usual PQ/PV/reference numbering.
type BusType int

const (
	PQ       BusType = 1
	PV       BusType = 2
	Ref      BusType = 3
	Isolated BusType = 4
)

// Cost models of the gencost table.
const (
	PWLinear   = 1
	Polynomial = 2
)

// Bus is one row of the bus table.
type Bus struct {
	ID     int     `json:"id" yaml:"id" validate:"gt=0"`
	Type   BusType `json:"type" yaml:"type" validate:"min=1,max=4"`
	Pd     float64 `json:"pd" yaml:"pd"`
	Qd     float64 `json:"qd" yaml:"qd"`
	Gs     float64 `json:"gs" yaml:"gs"`
	Bs     float64 `json:"bs" yaml:"bs"`
	Area   int     `json:"area" yaml:"area"`
	Vm     float64 `json:"vm" yaml:"vm"`
	Va     float64 `json:"va" yaml:"va"`
	BaseKV float64 `json:"base_kv" yaml:"base_kv"`
	Zone   int     `json:"zone" yaml:"zone"`
	Vmax   float64 `json:"vmax" yaml:"vmax" validate:"gtefield=Vmin"`
	Vmin   float64 `json:"vmin" yaml:"vmin" validate:"gte=0"`
}

// Branch is one row of the branch table. From and To are bus IDs.
type Branch struct {
	From   int     `json:"from" yaml:"from" validate:"gt=0"`
	To     int     `json:"to" yaml:"to" validate:"gt=0,nefield=From"`
	R      float64 `json:"r" yaml:"r"`
	X      float64 `json:"x" yaml:"x"`
	B      float64 `json:"b" yaml:"b"`
	RateA  float64 `json:"rate_a" yaml:"rate_a" validate:"gte=0"`
	RateB  float64 `json:"rate_b" yaml:"rate_b"`
	RateC  float64 `json:"rate_c" yaml:"rate_c"`
	Ratio  float64 `json:"ratio" yaml:"ratio"`
	Angle  float64 `json:"angle" yaml:"angle"`
	Status int     `json:"status" yaml:"status" validate:"oneof=0 1"`
	AngMin float64 `json:"angmin" yaml:"angmin"`
	AngMax float64 `json:"angmax" yaml:"angmax"`
}

// Gen is one row of the generator table. Bus is a bus ID.
type Gen struct {
	Bus    int     `json:"bus" yaml:"bus" validate:"gt=0"`
	Pg     float64 `json:"pg" yaml:"pg"`
	Qg     float64 `json:"qg" yaml:"qg"`
	Qmax   float64 `json:"qmax" yaml:"qmax" validate:"gtefield=Qmin"`
	Qmin   float64 `json:"qmin" yaml:"qmin"`
	Vg     float64 `json:"vg" yaml:"vg"`
	MBase  float64 `json:"mbase" yaml:"mbase"`
	Status int     `json:"status" yaml:"status" validate:"oneof=0 1"`
	Pmax   float64 `json:"pmax" yaml:"pmax" validate:"gtefield=Pmin"`
	Pmin   float64 `json:"pmin" yaml:"pmin"`
}

// GenCost is one row of the generator cost table. Polynomial coefficients
// are stored highest order first in MW; piecewise-linear rows store
// x1, y1, x2, y2, ... breakpoints.
type GenCost struct {
	Model    int       `json:"model" yaml:"model" validate:"oneof=1 2"`
	Startup  float64   `json:"startup" yaml:"startup"`
	Shutdown float64   `json:"shutdown" yaml:"shutdown"`
	Coeffs   []float64 `json:"coeffs" yaml:"coeffs"`
}

// Points returns the number of PWL breakpoints or polynomial coefficients.
func (g GenCost) Points() int {
	if g.Model == PWLinear {
		return len(g.Coeffs) / 2
	}
	return len(g.Coeffs)
}

// Eval returns the cost in $/h at output p in MW. PWL curves extend their
// end segments beyond the breakpoints.
func (g GenCost) Eval(p float64) float64 {
	if g.Model != PWLinear {
		var v float64
		for _, c := range g.Coeffs {
			v = v*p + c
		}
		return v
	}
	n := g.Points()
	if n < 2 {
		return 0
	}
	k := 0
	for k < n-2 && p > g.Coeffs[2*k+2] {
		k++
	}
	x1, y1 := g.Coeffs[2*k], g.Coeffs[2*k+1]
	x2, y2 := g.Coeffs[2*k+2], g.Coeffs[2*k+3]
	if x2 == x1 {
		return y1
	}
	return y1 + (y2-y1)*(p-x1)/(x2-x1)
}

// GeneralizedCost is the optional user cost term expressed over the full
// state vector. N is stored densely here and compressed by the evaluator.
type GeneralizedCost struct {
	N  [][]float64 `json:"n" yaml:"n"`
	H  [][]float64 `json:"h" yaml:"h"`
	Cw []float64   `json:"cw" yaml:"cw"`
	DD []float64   `json:"dd" yaml:"dd"`
	RH []float64   `json:"rh" yaml:"rh"`
	KK []float64   `json:"kk" yaml:"kk"`
	MM []float64   `json:"mm" yaml:"mm"`
}

// Rows returns the number of generalized cost terms.
func (g *GeneralizedCost) Rows() int {
	if g == nil {
		return 0
	}
	return len(g.N)
}

// Case is a network snapshot. It is read-only once handed to a formulation.
type Case struct {
	Name     string           `json:"name" yaml:"name"`
	BaseMVA  float64          `json:"base_mva" yaml:"base_mva" validate:"gt=0"`
	Buses    []Bus            `json:"buses" yaml:"buses" validate:"required,min=1,dive"`
	Branches []Branch         `json:"branches" yaml:"branches" validate:"dive"`
	Gens     []Gen            `json:"gens" yaml:"gens" validate:"dive"`
	GenCosts []GenCost        `json:"gencost" yaml:"gencost" validate:"dive"`
	UserCost *GeneralizedCost `json:"user_cost,omitempty" yaml:"user_cost,omitempty"`
}

var validate = validator.New()

// Validate checks field constraints and that every generator and branch
// endpoint references an existing bus.
func (c *Case) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errs.Config(verrs[0].Namespace(), "invalid value %v (%s)", verrs[0].Value(), verrs[0].Tag())
		}
		return fmt.Errorf("validate case: %w", err)
	}
	idx := make(map[int]int, len(c.Buses))
	refs := 0
	for i, b := range c.Buses {
		if _, dup := idx[b.ID]; dup {
			return errs.Config(fmt.Sprintf("bus %d", b.ID), "duplicate bus id")
		}
		idx[b.ID] = i
		if b.Type == Ref {
			refs++
		}
	}
	if refs == 0 {
		return errs.Config("buses", "no reference bus")
	}
	for i, br := range c.Branches {
		if _, ok := idx[br.From]; !ok {
			return errs.Config(fmt.Sprintf("branch %d", i), "from bus %d does not exist", br.From)
		}
		if _, ok := idx[br.To]; !ok {
			return errs.Config(fmt.Sprintf("branch %d", i), "to bus %d does not exist", br.To)
		}
	}
	for i, g := range c.Gens {
		if _, ok := idx[g.Bus]; !ok {
			return errs.Config(fmt.Sprintf("gen %d", i), "bus %d does not exist", g.Bus)
		}
	}
	ng := len(c.Gens)
	if n := len(c.GenCosts); n != 0 && n != ng && n != 2*ng {
		return errs.Config("gencost", "expected %d or %d rows, got %d", ng, 2*ng, n)
	}
	for i, gc := range c.GenCosts {
		if gc.Model == PWLinear && (len(gc.Coeffs) < 4 || len(gc.Coeffs)%2 != 0) {
			return errs.Config(fmt.Sprintf("gencost %d", i), "piecewise linear cost needs at least two (x, y) pairs")
		}
	}
	if u := c.UserCost; u.Rows() > 0 {
		nw := u.Rows()
		for name, v := range map[string][]float64{"cw": u.Cw, "dd": u.DD, "rh": u.RH, "kk": u.KK, "mm": u.MM} {
			if len(v) != nw {
				return errs.Dimension("user_cost."+name, nw, len(v))
			}
		}
		if len(u.H) != 0 && len(u.H) != nw {
			return errs.Dimension("user_cost.h", nw, len(u.H))
		}
	}
	return nil
}

// BusIndex maps bus IDs to row positions.
func (c *Case) BusIndex() map[int]int {
	idx := make(map[int]int, len(c.Buses))
	for i, b := range c.Buses {
		idx[b.ID] = i
	}
	return idx
}

// RefBuses returns the positions of reference buses.
func (c *Case) RefBuses() []int {
	var out []int
	for i, b := range c.Buses {
		if b.Type == Ref {
			out = append(out, i)
		}
	}
	return out
}

// InService returns a copy without out-of-service generators and branches.
// Cost rows follow their generators, including reactive cost rows.
func (c *Case) InService() *Case {
	out := &Case{Name: c.Name, BaseMVA: c.BaseMVA, UserCost: c.UserCost}
	out.Buses = append(out.Buses, c.Buses...)
	for _, br := range c.Branches {
		if br.Status == 1 {
			out.Branches = append(out.Branches, br)
		}
	}
	ng := len(c.Gens)
	var keep []int
	for i, g := range c.Gens {
		if g.Status == 1 {
			out.Gens = append(out.Gens, g)
			keep = append(keep, i)
		}
	}
	if len(c.GenCosts) >= ng && ng > 0 {
		for _, i := range keep {
			out.GenCosts = append(out.GenCosts, c.GenCosts[i])
		}
		if len(c.GenCosts) == 2*ng {
			for _, i := range keep {
				out.GenCosts = append(out.GenCosts, c.GenCosts[ng+i])
			}
		}
	}
	return out
}

// Clone returns a deep copy so hooks can modify a case without touching the
// caller's tables.
func (c *Case) Clone() *Case {
	out := *c
	out.Buses = append([]Bus(nil), c.Buses...)
	out.Branches = append([]Branch(nil), c.Branches...)
	out.Gens = append([]Gen(nil), c.Gens...)
	out.GenCosts = make([]GenCost, len(c.GenCosts))
	for i, gc := range c.GenCosts {
		gc.Coeffs = append([]float64(nil), gc.Coeffs...)
		out.GenCosts[i] = gc
	}
	return &out
}
