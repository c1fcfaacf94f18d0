package opf

import (
	"github.com/kilianp07/gridopt/core/index"
	"github.com/kilianp07/gridopt/core/sparse"
)

// CostEval is the objective value with its gradient, and its Hessian when
// it was requested.
type CostEval struct {
	F    float64
	Grad []float64
	Hess *sparse.CSR
}

// Cost evaluates polynomial generator costs, the sum of the PWL helper
// block and the generalized cost. The Hessian is only built when wantHess
// is set.
func Cost(oc *Context, x []float64, wantHess bool) (*CostEval, error) {
	if err := oc.checkX(x); err != nil {
		return nil, err
	}
	nx := len(x)
	_, _, pg, qg := oc.state(x)
	rpg := oc.idx.MustRange(index.Pg)
	rqg := oc.idx.MustRange(index.Qg)
	ry := oc.idx.MustRange(index.Y)

	out := &CostEval{Grad: make([]float64, nx)}
	var hess *sparse.Triplet
	if wantHess {
		hess = sparse.NewTriplet(nx, nx)
	}
	base := oc.baseMVA
	poly := func(coeffs [][]float64, inj []float64, start int) {
		for j, c := range coeffs {
			if c == nil {
				continue
			}
			f, df, d2f := polyval(c, inj[j]*base)
			out.F += f
			out.Grad[start+j] += base * df
			if hess != nil {
				hess.Add(start+j, start+j, base*base*d2f)
			}
		}
	}
	poly(oc.pCost, pg, rpg.Start)
	poly(oc.qCost, qg, rqg.Start)

	for i := ry.Start; i < ry.End; i++ {
		out.F += x[i]
		out.Grad[i] += 1
	}

	g := EvalGenCost(oc.gc, x, wantHess)
	out.F += g.F
	for i, v := range g.Grad {
		out.Grad[i] += v
	}
	if hess != nil {
		if g.Hess != nil {
			g.Hess.AddTo(hess, 1)
		}
		out.Hess = hess.CSR()
	}
	return out, nil
}

// polyval evaluates a polynomial with coefficients highest order first,
// returning the value and first two derivatives.
func polyval(c []float64, x float64) (f, df, d2f float64) {
	for _, a := range c {
		d2f = d2f*x + 2*df
		df = df*x + f
		f = f*x + a
	}
	return f, df, d2f
}
