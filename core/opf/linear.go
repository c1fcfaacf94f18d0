package opf

import (
	"math"

	"github.com/kilianp07/gridopt/core/index"
	"github.com/kilianp07/gridopt/core/sparse"
)

type segment struct {
	slope, icept float64
}

// pwlSegments turns x1, y1, x2, y2, ... breakpoints into line segments.
func pwlSegments(pts []float64) []segment {
	n := len(pts) / 2
	out := make([]segment, 0, n-1)
	for k := 0; k+1 < n; k++ {
		x0, y0 := pts[2*k], pts[2*k+1]
		x1, y1 := pts[2*k+2], pts[2*k+3]
		if x1 == x0 {
			continue
		}
		m := (y1 - y0) / (x1 - x0)
		out = append(out, segment{slope: m, icept: y0 - m*x0})
	}
	return out
}

// LinearConstraints returns the PWL cost epigraph rows A x <= u, one per
// segment: slope·baseMVA·Pg - y <= -intercept. Lower bounds are -Inf.
func (oc *Context) LinearConstraints() (a *sparse.CSR, lower, upper []float64) {
	nx := oc.idx.Len()
	pg := oc.idx.MustRange(index.Pg)
	y := oc.idx.MustRange(index.Y)

	var rows []segment
	var owner []int
	for k, j := range oc.pwlGen {
		for _, s := range pwlSegments(oc.cs.GenCosts[j].Coeffs) {
			rows = append(rows, s)
			owner = append(owner, k)
		}
	}
	t := sparse.NewTriplet(len(rows), nx)
	lower = make([]float64, len(rows))
	upper = make([]float64, len(rows))
	for r, s := range rows {
		k := owner[r]
		t.Add(r, pg.Start+oc.pwlGen[k], s.slope*oc.baseMVA)
		t.Add(r, y.Start+k, -1)
		lower[r] = math.Inf(-1)
		upper[r] = -s.icept
	}
	return t.CSR(), lower, upper
}
