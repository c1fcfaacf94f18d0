package opf

import (
	"github.com/kilianp07/gridopt/core/errs"
	"github.com/kilianp07/gridopt/core/index"
	"github.com/kilianp07/gridopt/core/sparse"
)

// Multipliers are the Lagrange multipliers supplied by the outer solver.
// Eq is [λP; λQ] and Ineq is [μf; μt]. They are never modified.
type Multipliers struct {
	Eq   []float64
	Ineq []float64
}

// LagrangianHessian returns the Hessian of
//
//	costMult·f(x) + λᵀg(x) + μᵀh(x)
//
// as an len(x) x len(x) matrix. Multiplier lengths must match NumEq and
// NumIneq exactly.
func LagrangianHessian(oc *Context, x []float64, m Multipliers, costMult float64) (*sparse.CSR, error) {
	if err := oc.checkX(x); err != nil {
		return nil, err
	}
	if len(m.Eq) != oc.NumEq() {
		return nil, errs.Dimension("equality multipliers", oc.NumEq(), len(m.Eq))
	}
	if len(m.Ineq) != oc.NumIneq() {
		return nil, errs.Dimension("inequality multipliers", oc.NumIneq(), len(m.Ineq))
	}
	nx := len(x)
	h := sparse.NewTriplet(nx, nx)

	c, err := Cost(oc, x, true)
	if err != nil {
		return nil, err
	}
	c.Hess.AddTo(h, costMult)

	va, vm, _, _ := oc.state(x)
	nb := oc.nb
	lamP, lamQ := m.Eq[:nb], m.Eq[nb:]
	oc.eachBalanceTerm(va, vm, true, func(i int, cols [4]int, t *biTerm) {
		if lamP[i] == 0 && lamQ[i] == 0 {
			return
		}
		var dd [4][4]float64
		for s := 0; s < 4; s++ {
			for u := 0; u < 4; u++ {
				dd[s][u] = lamP[i]*real(t.dd[s][u]) + lamQ[i]*imag(t.dd[s][u])
			}
		}
		addBlock(h, cols, 1, &dd)
	})

	nl2 := len(oc.il)
	rva := oc.idx.MustRange(index.Va)
	rvm := oc.idx.MustRange(index.Vm)
	for k := range oc.il {
		for side := 0; side < 2; side++ {
			mu := m.Ineq[side*nl2+k]
			if mu == 0 {
				continue
			}
			mt, cols := oc.flowMetric(k, side, va, vm, rva, rvm, true)
			addBlock(h, cols, mu, &mt.dd)
		}
	}
	return h.CSR(), nil
}
