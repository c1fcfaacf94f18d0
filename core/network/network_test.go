package network

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridopt/core/errs"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Case9().Validate())
	require.NoError(t, Case2().Validate())

	c := Case9()
	c.Gens[1].Bus = 42
	err := c.Validate()
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Contains(t, err.Error(), "gen 1")

	c = Case9()
	c.Branches[0].To = 99
	assert.ErrorIs(t, c.Validate(), errs.ErrConfiguration)

	c = Case9()
	c.Buses[0].Type = PV
	assert.ErrorIs(t, c.Validate(), errs.ErrConfiguration)

	c = Case9()
	c.Branches[2].Status = 3
	assert.ErrorIs(t, c.Validate(), errs.ErrConfiguration)

	c = Case9()
	c.GenCosts = c.GenCosts[:2]
	assert.ErrorIs(t, c.Validate(), errs.ErrConfiguration)
}

func TestInServiceDropsRowsWithCosts(t *testing.T) {
	c := Case9()
	// duplicate rows as reactive costs
	c.GenCosts = append(c.GenCosts, c.GenCosts...)
	c.Gens[1].Status = 0
	c.Branches[4].Status = 0

	s := c.InService()
	assert.Len(t, s.Gens, 2)
	assert.Len(t, s.Branches, 8)
	require.Len(t, s.GenCosts, 4)
	assert.Equal(t, 0.1225, s.GenCosts[1].Coeffs[0])
	assert.Equal(t, 0.1225, s.GenCosts[3].Coeffs[0])
	// original untouched
	assert.Len(t, c.Gens, 3)
}

func TestMakeYbusTwoBus(t *testing.T) {
	a := MakeYbus(Case2())
	ys := 1 / complex(0.01, 0.1)
	assert.InDelta(t, 0, cmplx.Abs(a.Ybus.At(0, 0)-ys), 1e-12)
	assert.InDelta(t, 0, cmplx.Abs(a.Ybus.At(0, 1)+ys), 1e-12)
	assert.InDelta(t, 0, cmplx.Abs(a.Ybus.At(1, 0)+ys), 1e-12)
	assert.Equal(t, []int{0}, a.From)
	assert.Equal(t, []int{1}, a.To)
}

func TestBranchFlowsMatchInjections(t *testing.T) {
	c := Case9()
	a := MakeYbus(c)
	va := []float64{0, 0.17, 0.08, -0.04, -0.07, 0.03, 0.01, 0.06, -0.08}
	vm := []float64{1, 1, 1, 0.99, 0.97, 1.01, 0.98, 1.0, 0.95}
	v := Voltages(va, vm)
	sf, st := a.BranchFlows(v)

	ibus := a.Ybus.MulVec(v)
	for i := range v {
		inj := v[i] * cmplx.Conj(ibus[i])
		var sum complex128
		for l := range sf {
			if a.From[l] == i {
				sum += sf[l]
			}
			if a.To[l] == i {
				sum += st[l]
			}
		}
		assert.InDelta(t, real(inj), real(sum), 1e-10, "bus %d P", i)
		assert.InDelta(t, imag(inj), imag(sum), 1e-10, "bus %d Q", i)
	}
}

func TestPTDF(t *testing.T) {
	p, err := PTDF(Case2())
	require.NoError(t, err)
	assert.InDelta(t, 0, p.At(0, 0), 1e-12)
	assert.InDelta(t, -1, p.At(0, 1), 1e-12)

	p, err = PTDF(Case9())
	require.NoError(t, err)
	// bus 1 only connects through branch 1-4, so every injection returns over it
	for j := 1; j < 9; j++ {
		assert.InDelta(t, -1, p.At(0, j), 1e-9, "bus %d", j+1)
	}
}

func TestGenIncidenceAndZones(t *testing.T) {
	c := Case9()
	cg := GenIncidence(c)
	assert.Equal(t, 1.0, cg.At(0, 0))
	assert.Equal(t, 1.0, cg.At(1, 1))
	assert.Equal(t, 1.0, cg.At(2, 2))
	assert.Equal(t, 0.0, cg.At(3, 0))

	c.Buses[7].Zone = 3
	c.Buses[8].Zone = 2
	m, zones := ZonalSum(c)
	assert.Equal(t, []int{1, 2, 3}, zones)
	r, cols := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 9, cols)
	assert.Equal(t, 1.0, m.At(2, 7))
	assert.Equal(t, 1.0, m.At(1, 8))
	assert.Equal(t, 0.0, m.At(0, 8))
}

func TestDCAngles(t *testing.T) {
	th, err := DCAngles(Case2(), []float64{0.5, -0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0, th[0], 1e-12)
	assert.InDelta(t, -0.05, th[1], 1e-12)

	// angles reproduce the injections through Bbus
	c := Case9()
	p := []float64{0.67, 1.63, 0.85, 0, -0.9, 0, -1, 0, -1.25}
	th, err = DCAngles(c, p)
	require.NoError(t, err)
	bbus, _ := MakeBdc(c)
	for i := 1; i < 9; i++ {
		var s float64
		for j := 0; j < 9; j++ {
			s += bbus.At(i, j) * th[j]
		}
		assert.InDelta(t, p[i], s, 1e-9, "bus %d", i+1)
	}

	_, err = DCAngles(c, []float64{1})
	assert.ErrorIs(t, err, errs.ErrDimension)
}

func TestGenCostEval(t *testing.T) {
	poly := GenCost{Model: Polynomial, Coeffs: []float64{0.11, 5, 150}}
	assert.InDelta(t, 0.11*67*67+5*67+150, poly.Eval(67), 1e-9)

	pwl := GenCost{Model: PWLinear, Coeffs: []float64{0, 0, 10, 100, 20, 300}}
	assert.InDelta(t, 50, pwl.Eval(5), 1e-9)
	assert.InDelta(t, 200, pwl.Eval(15), 1e-9)
	assert.InDelta(t, 500, pwl.Eval(30), 1e-9)
	assert.InDelta(t, -50, pwl.Eval(-5), 1e-9)
}
