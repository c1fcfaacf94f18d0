package opf

import (
	"math/cmplx"

	"github.com/kilianp07/gridopt/core/index"
	"github.com/kilianp07/gridopt/core/sparse"
)

// Cons holds the nonlinear constraint values and Jacobians at one point.
//
//	G = [Re(mis); Im(mis)], mis = V conj(Ybus V) - Sbus
//	H = [hf; ht], one row per limited branch and end
type Cons struct {
	G  []float64
	H  []float64
	DG *sparse.CSR
	DH *sparse.CSR
}

// Constraints evaluates power balance and flow limits with their Jacobians.
// Columns outside the voltage and injection blocks are zero.
func Constraints(oc *Context, x []float64) (*Cons, error) {
	if err := oc.checkX(x); err != nil {
		return nil, err
	}
	nx := len(x)
	va, vm, pg, qg := oc.state(x)
	rva := oc.idx.MustRange(index.Va)
	rvm := oc.idx.MustRange(index.Vm)
	rpg := oc.idx.MustRange(index.Pg)
	rqg := oc.idx.MustRange(index.Qg)

	nb := oc.nb
	out := &Cons{G: make([]float64, 2*nb)}
	dg := sparse.NewTriplet(2*nb, nx)

	oc.eachBalanceTerm(va, vm, false, func(i int, cols [4]int, t *biTerm) {
		out.G[i] += real(t.v)
		out.G[nb+i] += imag(t.v)
		for s, c := range cols {
			if c < 0 {
				continue
			}
			dg.Add(i, c, real(t.d[s]))
			dg.Add(nb+i, c, imag(t.d[s]))
		}
	})
	for i := 0; i < nb; i++ {
		out.G[i] += oc.pd[i]
		out.G[nb+i] += oc.qd[i]
	}
	for j, b := range oc.genBus {
		out.G[b] -= pg[j]
		out.G[nb+b] -= qg[j]
		dg.Add(b, rpg.Start+j, -1)
		dg.Add(nb+b, rqg.Start+j, -1)
	}
	out.DG = dg.CSR()

	nl2 := len(oc.il)
	out.H = make([]float64, 2*nl2)
	dh := sparse.NewTriplet(2*nl2, nx)
	for k := range oc.il {
		for side := 0; side < 2; side++ {
			m, cols := oc.flowMetric(k, side, va, vm, rva, rvm, false)
			r := side*nl2 + k
			out.H[r] = m.v - oc.flim2[k]
			addRow(dh, r, cols, m.d)
		}
	}
	out.DH = dh.CSR()
	return out, nil
}

// eachBalanceTerm walks the Ybus entries and hands every bus power term
// conj(Y_ik)·V_i·conj(V_k) to fn with its columns. Diagonal entries only
// use the magnitude slot; unused slots carry column -1.
func (oc *Context) eachBalanceTerm(va, vm []float64, hess bool, fn func(i int, cols [4]int, t *biTerm)) {
	rva := oc.idx.MustRange(index.Va)
	rvm := oc.idx.MustRange(index.Vm)
	for i := 0; i < oc.nb; i++ {
		oc.adm.Ybus.DoRowNonZero(i, func(k int, y complex128) {
			var t biTerm
			var cols [4]int
			if k == i {
				t.square(cmplx.Conj(y), vm[i], hess)
				cols = [4]int{-1, -1, rvm.Start + i, -1}
			} else {
				t.cross(cmplx.Conj(y), va[i], va[k], vm[i], vm[k], hess)
				cols = [4]int{rva.Start + i, rva.Start + k, rvm.Start + i, rvm.Start + k}
			}
			fn(i, cols, &t)
		})
	}
}

// flowMetric evaluates the limited quantity of limited branch k at its from
// (side 0) or to (side 1) end.
func (oc *Context) flowMetric(k, side int, va, vm []float64, rva, rvm index.Range, hess bool) (metric, [4]int) {
	l := oc.il[k]
	a, b := oc.adm.From[l], oc.adm.To[l]
	if side == 1 {
		a, b = b, a
	}
	cols := [4]int{rva.Start + a, rva.Start + b, rvm.Start + a, rvm.Start + b}

	var t biTerm
	switch oc.opts.FlowLim {
	case FlowCurrent:
		yaa, yab := oc.adm.Yff[l], oc.adm.Yft[l]
		if side == 1 {
			yaa, yab = oc.adm.Ytt[l], oc.adm.Ytf[l]
		}
		t.phasor(yaa, slotTa, va[a], vm[a], hess)
		t.phasor(yab, slotTb, va[b], vm[b], hess)
		return squaredMagnitude(&t, hess), cols
	default:
		yaa, yab := oc.adm.Yff[l], oc.adm.Yft[l]
		if side == 1 {
			yaa, yab = oc.adm.Ytt[l], oc.adm.Ytf[l]
		}
		t.square(cmplx.Conj(yaa), vm[a], hess)
		t.cross(cmplx.Conj(yab), va[a], va[b], vm[a], vm[b], hess)
		if oc.opts.FlowLim == FlowReal {
			return squaredReal(&t, hess), cols
		}
		return squaredMagnitude(&t, hess), cols
	}
}
