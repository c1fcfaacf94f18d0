package opf

import (
	"math/cmplx"

	"github.com/kilianp07/gridopt/core/sparse"
)

// Slots of a biTerm: the angles and magnitudes of buses a and b.
const (
	slotTa = iota
	slotTb
	slotMa
	slotMb
)

// biTerm is a complex function of the voltages of two buses a and b with
// its first and second partial derivatives in slot order (θa, θb, ma, mb).
type biTerm struct {
	v  complex128
	d  [4]complex128
	dd [4][4]complex128
}

// cross adds c·ma·mb·exp(j(θa-θb)).
func (t *biTerm) cross(c complex128, ta, tb, ma, mb float64, hess bool) {
	e := c * cmplx.Rect(1, ta-tb)
	emb := e * complex(mb, 0)
	ema := e * complex(ma, 0)
	T := emb * complex(ma, 0)

	t.v += T
	t.d[slotTa] += 1i * T
	t.d[slotTb] -= 1i * T
	t.d[slotMa] += emb
	t.d[slotMb] += ema
	if !hess {
		return
	}
	t.dd[slotTa][slotTa] -= T
	t.dd[slotTb][slotTb] -= T
	t.dd[slotTa][slotTb] += T
	t.dd[slotTb][slotTa] += T

	t.sym(slotTa, slotMa, 1i*emb)
	t.sym(slotTa, slotMb, 1i*ema)
	t.sym(slotTb, slotMa, -1i*emb)
	t.sym(slotTb, slotMb, -1i*ema)
	t.sym(slotMa, slotMb, e)
}

// square adds c·ma².
func (t *biTerm) square(c complex128, ma float64, hess bool) {
	t.v += c * complex(ma*ma, 0)
	t.d[slotMa] += 2 * c * complex(ma, 0)
	if hess {
		t.dd[slotMa][slotMa] += 2 * c
	}
}

// phasor adds y·m·exp(jθ) for the bus in angle slot s (slotTa or slotTb).
func (t *biTerm) phasor(y complex128, s int, th, m float64, hess bool) {
	e := y * cmplx.Rect(1, th)
	U := e * complex(m, 0)
	t.v += U
	t.d[s] += 1i * U
	t.d[s+2] += e
	if hess {
		t.dd[s][s] -= U
		t.sym(s, s+2, 1i*e)
	}
}

func (t *biTerm) sym(i, j int, v complex128) {
	t.dd[i][j] += v
	t.dd[j][i] += v
}

// metric is a real function of a biTerm with its derivatives.
type metric struct {
	v  float64
	d  [4]float64
	dd [4][4]float64
}

// squaredMagnitude returns |F|².
func squaredMagnitude(t *biTerm, hess bool) metric {
	var out metric
	cf := cmplx.Conj(t.v)
	out.v = real(t.v)*real(t.v) + imag(t.v)*imag(t.v)
	for s := 0; s < 4; s++ {
		out.d[s] = 2 * real(cf*t.d[s])
	}
	if hess {
		for s := 0; s < 4; s++ {
			for u := 0; u < 4; u++ {
				out.dd[s][u] = 2 * real(cf*t.dd[s][u]+t.d[s]*cmplx.Conj(t.d[u]))
			}
		}
	}
	return out
}

// squaredReal returns (Re F)².
func squaredReal(t *biTerm, hess bool) metric {
	var out metric
	p := real(t.v)
	out.v = p * p
	for s := 0; s < 4; s++ {
		out.d[s] = 2 * p * real(t.d[s])
	}
	if hess {
		for s := 0; s < 4; s++ {
			for u := 0; u < 4; u++ {
				out.dd[s][u] = 2 * (real(t.d[s])*real(t.d[u]) + p*real(t.dd[s][u]))
			}
		}
	}
	return out
}

// addRow writes the slot derivatives d into row r of a Jacobian.
func addRow(j *sparse.Triplet, r int, cols [4]int, d [4]float64) {
	for s, c := range cols {
		j.Add(r, c, d[s])
	}
}

// addBlock accumulates w·dd into a Hessian. Negative columns are unused
// slots.
func addBlock(h *sparse.Triplet, cols [4]int, w float64, dd *[4][4]float64) {
	if w == 0 {
		return
	}
	for s, cs := range cols {
		if cs < 0 {
			continue
		}
		for u, cu := range cols {
			if cu < 0 {
				continue
			}
			h.Add(cs, cu, w*dd[s][u])
		}
	}
}
