package opf

import (
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/gridopt/core/errs"
	"github.com/kilianp07/gridopt/core/network"
	"github.com/kilianp07/gridopt/core/sparse"
)

// Evaluation counters. genCostWork counts generalized cost evaluations that
// touched a matrix, genCostHessWork those that also built a Hessian.
var (
	genCostWork     atomic.Int64
	genCostHessWork atomic.Int64
)

// GenCost is the generalized cost term
//
//	r = N x - rh, rr = r + kbar, w = M (LL + QQ diag(rr)) rr
//	f = w'Hw/2 + Cw'w
//
// where kbar shifts rows out of their dead zone and M is zero inside it.
type GenCost struct {
	N  *sparse.CSR
	H  *mat.Dense // nil means zero
	Cw []float64
	DD []float64
	RH []float64
	KK []float64
	MM []float64
}

// Rows returns the number of cost terms.
func (g *GenCost) Rows() int {
	if g == nil || g.N == nil {
		return 0
	}
	r, _ := g.N.Dims()
	return r
}

// NewGenCost compresses a case's generalized cost for a state vector of
// length nx. A nil or empty cost yields a zero-row GenCost.
func NewGenCost(u *network.GeneralizedCost, nx int) (*GenCost, error) {
	if u.Rows() == 0 {
		return &GenCost{}, nil
	}
	nw := u.Rows()
	t := sparse.NewTriplet(nw, nx)
	for i, row := range u.N {
		if len(row) != nx {
			return nil, errs.Dimension("user_cost.n row", nx, len(row))
		}
		for j, v := range row {
			t.Add(i, j, v)
		}
	}
	g := &GenCost{N: t.CSR(), Cw: u.Cw, DD: u.DD, RH: u.RH, KK: u.KK, MM: u.MM}
	if len(u.H) > 0 {
		g.H = mat.NewDense(nw, nw, nil)
		for i, row := range u.H {
			if len(row) != nw {
				return nil, errs.Dimension("user_cost.h row", nw, len(row))
			}
			g.H.SetRow(i, row)
		}
	}
	return g, nil
}

// GenCostEval holds the value and derivatives of the generalized cost.
// Hess is nil unless requested.
type GenCostEval struct {
	F    float64
	Grad []float64
	Hess *sparse.CSR
}

// EvalGenCost evaluates the generalized cost at x. Zero-row costs return
// zeros without any matrix work.
func EvalGenCost(g *GenCost, x []float64, wantHess bool) GenCostEval {
	nx := len(x)
	out := GenCostEval{Grad: make([]float64, nx)}
	if g.Rows() == 0 {
		if wantHess {
			out.Hess = sparse.Zero(nx, nx)
		}
		return out
	}
	genCostWork.Add(1)

	nw := g.Rows()
	r := g.N.MulVec(x)
	rr := make([]float64, nw)
	m := make([]float64, nw)
	for i := range r {
		r[i] -= g.RH[i]
		kk := g.KK[i]
		var kbar float64
		inZone := true
		switch {
		case r[i] < -kk:
			kbar, inZone = kk, false
		case r[i] == 0 && kk == 0:
			inZone = false
		case r[i] > kk:
			kbar, inZone = -kk, false
		}
		rr[i] = r[i] + kbar
		if !inZone {
			m[i] = g.MM[i]
		}
	}

	w := make([]float64, nw)
	a := make([]float64, nw)
	for i := range w {
		ll, qq := rowType(g.DD[i])
		w[i] = m[i] * (ll + qq*rr[i]) * rr[i]
		a[i] = m[i] * (ll + 2*qq*rr[i])
	}

	hw := make([]float64, nw)
	if g.H != nil {
		hv := mat.NewVecDense(nw, hw)
		hv.MulVec(g.H, mat.NewVecDense(nw, w))
	}
	hwc := make([]float64, nw)
	for i := range hw {
		out.F += 0.5*w[i]*hw[i] + g.Cw[i]*w[i]
		hwc[i] = hw[i] + g.Cw[i]
	}

	aw := make([]float64, nw)
	for i := range aw {
		aw[i] = a[i] * hwc[i]
	}
	out.Grad = g.N.MulVecTrans(aw)

	if !wantHess {
		return out
	}
	genCostHessWork.Add(1)

	// inner = diag(a) H diag(a) + 2 diag(M QQ HwC)
	inner := make([][]float64, nw)
	for i := range inner {
		inner[i] = make([]float64, nw)
		if g.H != nil {
			for k := 0; k < nw; k++ {
				inner[i][k] = a[i] * g.H.At(i, k) * a[k]
			}
		}
		_, qq := rowType(g.DD[i])
		inner[i][i] += 2 * m[i] * qq * hwc[i]
	}
	t := sparse.NewTriplet(nx, nx)
	for i := 0; i < nw; i++ {
		for k := 0; k < nw; k++ {
			kik := inner[i][k]
			if kik == 0 {
				continue
			}
			g.N.DoRowNonZero(i, func(p int, nip float64) {
				g.N.DoRowNonZero(k, func(q int, nkq float64) {
					t.Add(p, q, nip*kik*nkq)
				})
			})
		}
	}
	out.Hess = t.CSR()
	return out
}

func rowType(dd float64) (ll, qq float64) {
	switch dd {
	case 1:
		return 1, 0
	case 2:
		return 0, 1
	}
	return 0, 0
}
