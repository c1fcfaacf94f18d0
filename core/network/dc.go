package network

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/gridopt/core/errs"
)

// MakeBdc returns the DC susceptance matrices Bbus (nb x nb) and Bf
// (nl x nb). Branch series susceptance is stat/(x*tap). Phase shifter
// injections are not modeled.
func MakeBdc(c *Case) (bbus, bf *mat.Dense) {
	nb, nl := len(c.Buses), len(c.Branches)
	idx := c.BusIndex()
	bbus = mat.NewDense(nb, nb, nil)
	if nl == 0 {
		return bbus, nil
	}
	bf = mat.NewDense(nl, nb, nil)
	for l, br := range c.Branches {
		if br.Status == 0 || br.X == 0 {
			continue
		}
		tap := br.Ratio
		if tap == 0 {
			tap = 1
		}
		b := 1 / (br.X * tap)
		f, t := idx[br.From], idx[br.To]
		bf.Set(l, f, b)
		bf.Set(l, t, -b)
		bbus.Set(f, f, bbus.At(f, f)+b)
		bbus.Set(t, t, bbus.At(t, t)+b)
		bbus.Set(f, t, bbus.At(f, t)-b)
		bbus.Set(t, f, bbus.At(t, f)-b)
	}
	return bbus, bf
}

// PTDF returns the nl x nb injection shift factors with the first reference
// bus as slack. The slack column is zero.
func PTDF(c *Case) (*mat.Dense, error) {
	nb, nl := len(c.Buses), len(c.Branches)
	if nl == 0 {
		return nil, nil
	}
	refs := c.RefBuses()
	if len(refs) == 0 {
		return nil, errs.Config("buses", "no reference bus")
	}
	slack := refs[0]
	bbus, bf := MakeBdc(c)

	keep := make([]int, 0, nb-1)
	for i := 0; i < nb; i++ {
		if i != slack {
			keep = append(keep, i)
		}
	}
	out := mat.NewDense(nl, nb, nil)
	if len(keep) == 0 {
		return out, nil
	}
	n := len(keep)
	bred := mat.NewDense(n, n, nil)
	bfred := mat.NewDense(nl, n, nil)
	for a, i := range keep {
		for b, j := range keep {
			bred.Set(a, b, bbus.At(i, j))
		}
		for l := 0; l < nl; l++ {
			bfred.Set(l, a, bf.At(l, i))
		}
	}
	// Bred is symmetric so PTDFᵀ = Bred⁻¹ Bfᵀ.
	var pt mat.Dense
	if err := pt.Solve(bred, bfred.T()); err != nil {
		return nil, fmt.Errorf("ptdf: reduced susceptance matrix: %w", err)
	}
	for a, i := range keep {
		for l := 0; l < nl; l++ {
			out.Set(l, i, pt.At(a, l))
		}
	}
	return out, nil
}

// GenIncidence returns the nb x ng generator connection matrix Cg.
func GenIncidence(c *Case) *mat.Dense {
	nb, ng := len(c.Buses), len(c.Gens)
	if ng == 0 {
		return nil
	}
	idx := c.BusIndex()
	cg := mat.NewDense(nb, ng, nil)
	for j, g := range c.Gens {
		cg.Set(idx[g.Bus], j, 1)
	}
	return cg
}

// ZonalSum returns a zone x bus membership matrix and the sorted zone
// numbers its rows correspond to. Row z sums the entries of buses in zone z.
func ZonalSum(c *Case) (*mat.Dense, []int) {
	seen := map[int]bool{}
	var zones []int
	for _, b := range c.Buses {
		if !seen[b.Zone] {
			seen[b.Zone] = true
			zones = append(zones, b.Zone)
		}
	}
	slices.Sort(zones)
	row := make(map[int]int, len(zones))
	for i, z := range zones {
		row[z] = i
	}
	m := mat.NewDense(len(zones), len(c.Buses), nil)
	for i, b := range c.Buses {
		m.Set(row[b.Zone], i, 1)
	}
	return m, zones
}

// DCAngles solves Bbus θ = p for the bus angles in radians, with p the net
// injections in p.u. The first reference bus keeps its case angle.
func DCAngles(c *Case, p []float64) ([]float64, error) {
	nb := len(c.Buses)
	if len(p) != nb {
		return nil, errs.Dimension("injections", nb, len(p))
	}
	refs := c.RefBuses()
	if len(refs) == 0 {
		return nil, errs.Config("buses", "no reference bus")
	}
	slack := refs[0]
	theta0 := c.Buses[slack].Va * math.Pi / 180
	out := make([]float64, nb)
	for i := range out {
		out[i] = theta0
	}
	if nb == 1 {
		return out, nil
	}
	bbus, _ := MakeBdc(c)
	keep := make([]int, 0, nb-1)
	for i := 0; i < nb; i++ {
		if i != slack {
			keep = append(keep, i)
		}
	}
	n := len(keep)
	bred := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)
	for a, i := range keep {
		for b, j := range keep {
			bred.Set(a, b, bbus.At(i, j))
		}
		rhs.SetVec(a, p[i]-bbus.At(i, slack)*theta0)
	}
	var th mat.VecDense
	if err := th.SolveVec(bred, rhs); err != nil {
		return nil, fmt.Errorf("dc angles: reduced susceptance matrix: %w", err)
	}
	for a, i := range keep {
		out[i] = th.AtVec(a)
	}
	return out, nil
}
