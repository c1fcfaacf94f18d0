// Package opf evaluates the AC optimal power flow: cost, power balance and
// branch flow constraints, their Jacobians and the Hessian of the
// Lagrangian. All builders are pure functions of an immutable Context and a
// caller-owned state vector, so they can be called concurrently.
package opf

import (
	"fmt"
	"math"

	"github.com/kilianp07/gridopt/core/errs"
	"github.com/kilianp07/gridopt/core/index"
	"github.com/kilianp07/gridopt/core/network"
)

// Context is the immutable evaluation context of one AC OPF instance.
type Context struct {
	cs   *network.Case
	opts Options
	adm  *network.Admittance
	idx  *index.Map

	nb, ng, nl int
	baseMVA    float64

	genBus []int
	pd, qd []float64 // p.u.

	// limited branches and their squared limits in p.u.
	il    []int
	flim2 []float64

	// polynomial costs per generator, nil when the row is not polynomial
	pCost, qCost [][]float64
	// generator served by each y variable
	pwlGen []int

	gc *GenCost
}

// Setup is the mutable description of an AC OPF instance handed to
// formulation hooks before the Context is frozen.
type Setup struct {
	Case    *network.Case
	Options Options
	// Extra blocks appended after the standard ones.
	Extra []index.Spec
}

// Context freezes the setup.
func (s *Setup) Context() (*Context, error) {
	return NewContext(s.Case, s.Options, s.Extra...)
}

// NewContext validates c, drops out-of-service equipment and precomputes
// everything the builders need.
func NewContext(c *network.Case, opts Options, extra ...index.Spec) (*Context, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cs := c.InService()
	oc := &Context{
		cs:      cs,
		opts:    opts,
		adm:     network.MakeYbus(cs),
		nb:      len(cs.Buses),
		ng:      len(cs.Gens),
		nl:      len(cs.Branches),
		baseMVA: cs.BaseMVA,
	}
	bidx := cs.BusIndex()
	oc.genBus = make([]int, oc.ng)
	for j, g := range cs.Gens {
		oc.genBus[j] = bidx[g.Bus]
	}
	oc.pd = make([]float64, oc.nb)
	oc.qd = make([]float64, oc.nb)
	for i, b := range cs.Buses {
		oc.pd[i] = b.Pd / oc.baseMVA
		oc.qd[i] = b.Qd / oc.baseMVA
	}
	for l, br := range cs.Branches {
		// a zero rating means the branch is unconstrained
		if br.RateA > 0 {
			oc.il = append(oc.il, l)
			lim := br.RateA / oc.baseMVA
			oc.flim2 = append(oc.flim2, lim*lim)
		}
	}

	if err := oc.splitCosts(); err != nil {
		return nil, err
	}

	specs := []index.Spec{
		{Name: index.Va, Len: oc.nb},
		{Name: index.Vm, Len: oc.nb},
		{Name: index.Pg, Len: oc.ng},
		{Name: index.Qg, Len: oc.ng},
		{Name: index.Y, Len: len(oc.pwlGen)},
	}
	idx, err := index.New(append(specs, extra...)...)
	if err != nil {
		return nil, err
	}
	oc.idx = idx

	gc, err := NewGenCost(cs.UserCost, idx.Len())
	if err != nil {
		return nil, err
	}
	oc.gc = gc
	return oc, nil
}

func (oc *Context) splitCosts() error {
	rows := oc.cs.GenCosts
	if len(rows) == 0 {
		return nil
	}
	oc.pCost = make([][]float64, oc.ng)
	for j := 0; j < oc.ng; j++ {
		switch rows[j].Model {
		case network.Polynomial:
			oc.pCost[j] = rows[j].Coeffs
		case network.PWLinear:
			oc.pwlGen = append(oc.pwlGen, j)
		}
	}
	if len(rows) == 2*oc.ng {
		oc.qCost = make([][]float64, oc.ng)
		for j := 0; j < oc.ng; j++ {
			switch rows[oc.ng+j].Model {
			case network.Polynomial:
				oc.qCost[j] = rows[oc.ng+j].Coeffs
			case network.PWLinear:
				return errs.Config(fmt.Sprintf("gencost %d", oc.ng+j), "piecewise linear reactive costs are not supported")
			}
		}
	}
	return nil
}

// Index returns the state vector layout.
func (oc *Context) Index() *index.Map { return oc.idx }

// Options returns the options the context was built with.
func (oc *Context) Options() Options { return oc.opts }

// Case returns the in-service case. Callers must not modify it.
func (oc *Context) Case() *network.Case { return oc.cs }

// Admittance returns the admittance data of the in-service branches.
func (oc *Context) Admittance() *network.Admittance { return oc.adm }

// Limited returns the positions of flow-limited branches.
func (oc *Context) Limited() []int {
	return append([]int(nil), oc.il...)
}

// NumEq returns the number of power balance constraints.
func (oc *Context) NumEq() int { return 2 * oc.nb }

// NumIneq returns the number of flow limit constraints.
func (oc *Context) NumIneq() int { return 2 * len(oc.il) }

// BaseMVA returns the system power base.
func (oc *Context) BaseMVA() float64 { return oc.baseMVA }

// GenCost returns the generalized cost term.
func (oc *Context) GenCost() *GenCost { return oc.gc }

func (oc *Context) checkX(x []float64) error {
	if len(x) != oc.idx.Len() {
		return errs.Dimension("x", oc.idx.Len(), len(x))
	}
	return nil
}

// state splits x into its standard blocks. The slices alias x.
func (oc *Context) state(x []float64) (va, vm, pg, qg []float64) {
	return oc.idx.Slice(x, index.Va), oc.idx.Slice(x, index.Vm),
		oc.idx.Slice(x, index.Pg), oc.idx.Slice(x, index.Qg)
}

// Bounds returns the variable bounds: the reference angle is fixed, Vm lies
// in [Vmin, Vmax] and injections within generator limits in p.u.
func (oc *Context) Bounds() (lower, upper []float64) {
	n := oc.idx.Len()
	lower = make([]float64, n)
	upper = make([]float64, n)
	for i := range lower {
		lower[i], upper[i] = math.Inf(-1), math.Inf(1)
	}
	va := oc.idx.MustRange(index.Va)
	vm := oc.idx.MustRange(index.Vm)
	pg := oc.idx.MustRange(index.Pg)
	qg := oc.idx.MustRange(index.Qg)
	for i, b := range oc.cs.Buses {
		if b.Type == network.Ref {
			a := b.Va * math.Pi / 180
			lower[va.Start+i], upper[va.Start+i] = a, a
		}
		lower[vm.Start+i], upper[vm.Start+i] = b.Vmin, b.Vmax
	}
	for j, g := range oc.cs.Gens {
		lower[pg.Start+j], upper[pg.Start+j] = g.Pmin/oc.baseMVA, g.Pmax/oc.baseMVA
		lower[qg.Start+j], upper[qg.Start+j] = g.Qmin/oc.baseMVA, g.Qmax/oc.baseMVA
	}
	return lower, upper
}

// InitialPoint returns a starting point built from the case values, clipped
// into the bounds. PWL helpers start at the cost of their generator.
func (oc *Context) InitialPoint() []float64 {
	x := make([]float64, oc.idx.Len())
	va, vm, pg, qg := oc.state(x)
	for i, b := range oc.cs.Buses {
		va[i] = b.Va * math.Pi / 180
		vm[i] = b.Vm
		if vm[i] == 0 {
			vm[i] = 1
		}
	}
	for j, g := range oc.cs.Gens {
		if g.Vg > 0 {
			vm[oc.genBus[j]] = g.Vg
		}
		pg[j] = g.Pg / oc.baseMVA
		qg[j] = g.Qg / oc.baseMVA
	}
	lo, hi := oc.Bounds()
	for i := range x {
		x[i] = math.Min(math.Max(x[i], lo[i]), hi[i])
	}
	y := oc.idx.Slice(x, index.Y)
	for k, j := range oc.pwlGen {
		y[k] = math.Inf(-1)
		pts := oc.cs.GenCosts[j].Coeffs
		for _, seg := range pwlSegments(pts) {
			y[k] = math.Max(y[k], seg.slope*pg[j]*oc.baseMVA+seg.icept)
		}
	}
	return x
}
