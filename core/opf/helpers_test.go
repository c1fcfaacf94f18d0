package opf

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/gridopt/core/network"
)

// richCase9 is case9 with a PWL generator, reactive costs and a
// generalized cost touching voltages and injections.
func richCase9() *network.Case {
	c := network.Case9()
	c.GenCosts[2] = network.GenCost{Model: network.PWLinear, Coeffs: []float64{10, 500, 100, 2000, 270, 6000}}
	for j := 0; j < 3; j++ {
		c.GenCosts = append(c.GenCosts, network.GenCost{Model: network.Polynomial, Coeffs: []float64{0.01, 0.5, 0}})
	}
	const nx = 25
	row := func(entries map[int]float64) []float64 {
		r := make([]float64, nx)
		for k, v := range entries {
			r[k] = v
		}
		return r
	}
	c.UserCost = &network.GeneralizedCost{
		N: [][]float64{
			row(map[int]float64{13: 1}),
			row(map[int]float64{18: 1, 19: -0.5}),
			row(map[int]float64{23: 2, 18: 1}),
			row(map[int]float64{19: 1}),
		},
		H: [][]float64{
			{1, 0.2, 0, 0},
			{0.2, 2, 0, 0},
			{0, 0, 0.5, 0},
			{0, 0, 0, 1},
		},
		Cw: []float64{1, 3, 0.5, 1},
		DD: []float64{2, 1, 2, 2},
		RH: []float64{1.0, 0, 0, 1.63},
		KK: []float64{0.01, 0, 0.05, 0.5},
		MM: []float64{100, 2, 1, 10},
	}
	return c
}

// testPoint returns a non-degenerate operating point for case9 based
// contexts, with y appended when the layout has helpers.
func testPoint(oc *Context) []float64 {
	x := make([]float64, oc.Index().Len())
	va, vm, pg, qg := oc.state(x)
	copy(va, []float64{0, 0.17, 0.08, -0.04, -0.07, 0.03, 0.01, 0.06, -0.08})
	copy(vm, []float64{1.02, 1.01, 1.0, 0.99, 0.97, 1.01, 0.98, 1.0, 0.95})
	copy(pg, []float64{0.9, 1.63, 0.85})
	copy(qg, []float64{0.2, 0.05, -0.1})
	if y := oc.Index().Slice(x, "y"); len(y) > 0 {
		y[0] = 3000
	}
	return x
}

func fdJacobian(m int, f func(x []float64) []float64, x []float64) *mat.Dense {
	dst := mat.NewDense(m, len(x), nil)
	fd.Jacobian(dst, func(y, x []float64) {
		copy(y, f(x))
	}, x, &fd.JacobianSettings{Formula: fd.Central})
	return dst
}

// assertClose compares matrices entrywise with a tolerance relative to the
// larger magnitude.
func assertClose(t *testing.T, want, got mat.Matrix, tol float64, what string) {
	t.Helper()
	r, c := want.Dims()
	gr, gc := got.Dims()
	if r != gr || c != gc {
		t.Fatalf("%s: shape %dx%d, want %dx%d", what, gr, gc, r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			w, g := want.At(i, j), got.At(i, j)
			scale := math.Max(1, math.Max(math.Abs(w), math.Abs(g)))
			if math.Abs(w-g) > tol*scale {
				t.Fatalf("%s[%d,%d] = %g, finite difference %g", what, i, j, g, w)
			}
		}
	}
}

func allModes() []FlowLimit {
	return []FlowLimit{FlowApparent, FlowReal, FlowCurrent}
}
