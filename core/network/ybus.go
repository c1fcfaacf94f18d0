package network

import (
	"math"
	"math/cmplx"

	"github.com/kilianp07/gridopt/core/sparse"
)

// Admittance holds the bus admittance matrix and the per-branch two-port
// admittances of the in-service branches it was built from.
type Admittance struct {
	Ybus *sparse.CCSR
	// From and To are bus positions of each branch.
	From, To []int
	// Yff, Yft, Ytf, Ytt give If = Yff Vf + Yft Vt and It = Ytf Vf + Ytt Vt.
	Yff, Yft, Ytf, Ytt []complex128
	// Ysh is the per-bus shunt admittance in p.u.
	Ysh []complex128
}

// MakeYbus builds the admittance data of every branch in c. Out-of-service
// branches contribute nothing but keep their row.
func MakeYbus(c *Case) *Admittance {
	nb, nl := len(c.Buses), len(c.Branches)
	idx := c.BusIndex()
	a := &Admittance{
		From: make([]int, nl), To: make([]int, nl),
		Yff: make([]complex128, nl), Yft: make([]complex128, nl),
		Ytf: make([]complex128, nl), Ytt: make([]complex128, nl),
		Ysh: make([]complex128, nb),
	}
	t := sparse.NewCTriplet(nb, nb)
	for l, br := range c.Branches {
		f, to := idx[br.From], idx[br.To]
		a.From[l], a.To[l] = f, to
		if br.Status == 0 {
			continue
		}
		ys := 1 / complex(br.R, br.X)
		bc := br.B
		ratio := br.Ratio
		if ratio == 0 {
			ratio = 1
		}
		tap := cmplx.Rect(ratio, br.Angle*math.Pi/180)
		ytt := ys + complex(0, bc/2)
		a.Ytt[l] = ytt
		a.Yff[l] = ytt / (tap * cmplx.Conj(tap))
		a.Yft[l] = -ys / cmplx.Conj(tap)
		a.Ytf[l] = -ys / tap

		t.Add(f, f, a.Yff[l])
		t.Add(f, to, a.Yft[l])
		t.Add(to, f, a.Ytf[l])
		t.Add(to, to, a.Ytt[l])
	}
	for i, b := range c.Buses {
		a.Ysh[i] = complex(b.Gs, b.Bs) / complex(c.BaseMVA, 0)
		t.Add(i, i, a.Ysh[i])
	}
	a.Ybus = t.CSR()
	return a
}

// Voltages builds complex bus voltages from angles in radians and magnitudes.
func Voltages(va, vm []float64) []complex128 {
	v := make([]complex128, len(va))
	for i := range va {
		v[i] = cmplx.Rect(vm[i], va[i])
	}
	return v
}

// BranchFlows returns the complex power injected at the from and to ends of
// every branch, in p.u.
func (a *Admittance) BranchFlows(v []complex128) (sf, st []complex128) {
	nl := len(a.From)
	sf = make([]complex128, nl)
	st = make([]complex128, nl)
	for l := 0; l < nl; l++ {
		vf, vt := v[a.From[l]], v[a.To[l]]
		If := a.Yff[l]*vf + a.Yft[l]*vt
		It := a.Ytf[l]*vf + a.Ytt[l]*vt
		sf[l] = vf * cmplx.Conj(If)
		st[l] = vt * cmplx.Conj(It)
	}
	return sf, st
}
