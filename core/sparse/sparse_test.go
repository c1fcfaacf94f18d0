package sparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestTripletMergesDuplicates(t *testing.T) {
	tr := NewTriplet(2, 3)
	tr.Add(1, 2, 1.5)
	tr.Add(0, 1, 2)
	tr.Add(1, 2, 0.5)
	tr.Add(1, 0, -1)
	tr.Add(0, 0, 0)
	m := tr.CSR()

	assert.Equal(t, 3, m.NNZ())
	assert.Equal(t, 2.0, m.At(0, 1))
	assert.Equal(t, 2.0, m.At(1, 2))
	assert.Equal(t, -1.0, m.At(1, 0))
	assert.Equal(t, 0.0, m.At(0, 2))

	want := mat.NewDense(2, 3, []float64{0, 2, 0, -1, 0, 2})
	assert.True(t, mat.Equal(want, m.Dense()))
	assert.True(t, mat.Equal(want.T(), m.T()))
}

func TestMulVec(t *testing.T) {
	a := mat.NewDense(2, 3, []float64{1, 0, 2, 0, 3, 0})
	m := FromDense(a)
	assert.Equal(t, []float64{7, 6}, m.MulVec([]float64{1, 2, 3}))
	assert.Equal(t, []float64{1, 6, 2}, m.MulVecTrans([]float64{1, 2}))
}

func TestWeightedGram(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	g := WeightedGram(FromDense(a), []float64{2, 1})

	var want mat.Dense
	w := mat.NewDiagDense(2, []float64{2, 1})
	var wa mat.Dense
	wa.Mul(w, a)
	want.Mul(a.T(), &wa)
	assert.True(t, mat.EqualApprox(&want, g.Dense(), 1e-12))
}

func TestSumAndZero(t *testing.T) {
	z := Zero(2, 2)
	assert.Equal(t, 0, z.NNZ())
	one := FromDense(mat.NewDense(2, 2, []float64{1, 0, 0, 1}))
	s := Sum(2, 2, z, one, one, nil)
	assert.Equal(t, 2.0, s.At(1, 1))
	assert.Equal(t, 2, s.NNZ())
}

func TestComplexCSR(t *testing.T) {
	tr := NewCTriplet(2, 2)
	tr.Add(1, 1, 1+1i)
	tr.Add(0, 1, -2i)
	tr.Add(1, 1, 1)
	m := tr.CSR()
	require.Equal(t, 2, m.NNZ())
	assert.Equal(t, 2+1i, m.At(1, 1))
	assert.Equal(t, complex128(0), m.At(1, 0))
	assert.Equal(t, []complex128{-2i, 2 + 1i}, m.MulVec([]complex128{5, 1}))

	var n int
	m.DoNonZero(func(i, j int, v complex128) { n++ })
	assert.Equal(t, 2, n)
}
