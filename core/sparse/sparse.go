// Package sparse provides compressed sparse row matrices for the OPF
// builders. CSR implements gonum's mat.Matrix so results can be handed to
// gonum routines or densified in tests.
package sparse

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Triplet accumulates (row, col, value) entries. Duplicate coordinates are
// summed when the triplet is compressed.
type Triplet struct {
	r, c int
	ri   []int
	ci   []int
	v    []float64
}

// NewTriplet returns an empty r x c accumulator.
func NewTriplet(r, c int) *Triplet {
	return &Triplet{r: r, c: c}
}

// Add records v at (i, j). Exact zeros are dropped.
func (t *Triplet) Add(i, j int, v float64) {
	if i < 0 || i >= t.r || j < 0 || j >= t.c {
		panic(mat.ErrIndexOutOfRange)
	}
	if v == 0 {
		return
	}
	t.ri = append(t.ri, i)
	t.ci = append(t.ci, j)
	t.v = append(t.v, v)
}

// Len returns the number of recorded entries before compression.
func (t *Triplet) Len() int { return len(t.v) }

// CSR compresses the triplet. Columns are sorted within each row.
func (t *Triplet) CSR() *CSR {
	m := &CSR{r: t.r, c: t.c, indptr: make([]int, t.r+1)}
	for _, i := range t.ri {
		m.indptr[i+1]++
	}
	for i := 0; i < t.r; i++ {
		m.indptr[i+1] += m.indptr[i]
	}
	ind := make([]int, len(t.v))
	data := make([]float64, len(t.v))
	next := make([]int, t.r)
	copy(next, m.indptr[:t.r])
	for k, i := range t.ri {
		p := next[i]
		ind[p] = t.ci[k]
		data[p] = t.v[k]
		next[i]++
	}
	// sort each row by column and merge duplicates
	out := 0
	for i := 0; i < t.r; i++ {
		lo, hi := m.indptr[i], m.indptr[i+1]
		sort.Sort(rowSorter{ind: ind[lo:hi], data: data[lo:hi]})
		m.indptr[i] = out
		for p := lo; p < hi; p++ {
			if out > m.indptr[i] && ind[out-1] == ind[p] {
				data[out-1] += data[p]
				continue
			}
			ind[out] = ind[p]
			data[out] = data[p]
			out++
		}
	}
	m.indptr[t.r] = out
	m.ind = ind[:out]
	m.data = data[:out]
	return m
}

type rowSorter struct {
	ind  []int
	data []float64
}

func (s rowSorter) Len() int           { return len(s.ind) }
func (s rowSorter) Less(i, j int) bool { return s.ind[i] < s.ind[j] }
func (s rowSorter) Swap(i, j int) {
	s.ind[i], s.ind[j] = s.ind[j], s.ind[i]
	s.data[i], s.data[j] = s.data[j], s.data[i]
}

// CSR is an immutable real sparse matrix.
type CSR struct {
	r, c   int
	indptr []int
	ind    []int
	data   []float64
}

var _ mat.Matrix = (*CSR)(nil)

// Zero returns an r x c matrix with no stored entries.
func Zero(r, c int) *CSR {
	return &CSR{r: r, c: c, indptr: make([]int, r+1)}
}

// FromDense keeps the nonzero entries of a.
func FromDense(a mat.Matrix) *CSR {
	r, c := a.Dims()
	t := NewTriplet(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			t.Add(i, j, a.At(i, j))
		}
	}
	return t.CSR()
}

// Dims implements mat.Matrix.
func (m *CSR) Dims() (int, int) { return m.r, m.c }

// At implements mat.Matrix.
func (m *CSR) At(i, j int) float64 {
	if i < 0 || i >= m.r || j < 0 || j >= m.c {
		panic(mat.ErrIndexOutOfRange)
	}
	lo, hi := m.indptr[i], m.indptr[i+1]
	p := sort.SearchInts(m.ind[lo:hi], j) + lo
	if p < hi && m.ind[p] == j {
		return m.data[p]
	}
	return 0
}

// T implements mat.Matrix.
func (m *CSR) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int { return len(m.data) }

// DoNonZero calls fn for every stored entry in row-major order.
func (m *CSR) DoNonZero(fn func(i, j int, v float64)) {
	for i := 0; i < m.r; i++ {
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			fn(i, m.ind[p], m.data[p])
		}
	}
}

// DoRowNonZero calls fn for every stored entry of row i.
func (m *CSR) DoRowNonZero(i int, fn func(j int, v float64)) {
	for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
		fn(m.ind[p], m.data[p])
	}
}

// MulVec returns m x.
func (m *CSR) MulVec(x []float64) []float64 {
	if len(x) != m.c {
		panic(mat.ErrShape)
	}
	y := make([]float64, m.r)
	for i := 0; i < m.r; i++ {
		var s float64
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			s += m.data[p] * x[m.ind[p]]
		}
		y[i] = s
	}
	return y
}

// MulVecTrans returns mᵀ x.
func (m *CSR) MulVecTrans(x []float64) []float64 {
	if len(x) != m.r {
		panic(mat.ErrShape)
	}
	y := make([]float64, m.c)
	for i := 0; i < m.r; i++ {
		if x[i] == 0 {
			continue
		}
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			y[m.ind[p]] += m.data[p] * x[i]
		}
	}
	return y
}

// AddTo accumulates alpha*m into t. Shapes must match.
func (m *CSR) AddTo(t *Triplet, alpha float64) {
	if t.r != m.r || t.c != m.c {
		panic(mat.ErrShape)
	}
	if alpha == 0 {
		return
	}
	m.DoNonZero(func(i, j int, v float64) { t.Add(i, j, alpha*v) })
}

// Dense returns a dense copy.
func (m *CSR) Dense() *mat.Dense {
	if m.r == 0 || m.c == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(m.r, m.c, nil)
	m.DoNonZero(func(i, j int, v float64) { d.Set(i, j, v) })
	return d
}

// Sum adds matrices of identical shape.
func Sum(r, c int, ms ...*CSR) *CSR {
	t := NewTriplet(r, c)
	for _, m := range ms {
		if m == nil {
			continue
		}
		m.AddTo(t, 1)
	}
	return t.CSR()
}

// WeightedGram returns Aᵀ diag(w) A, with a nil w meaning identity.
func WeightedGram(a *CSR, w []float64) *CSR {
	t := NewTriplet(a.c, a.c)
	for i := 0; i < a.r; i++ {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		if wi == 0 {
			continue
		}
		lo, hi := a.indptr[i], a.indptr[i+1]
		for p := lo; p < hi; p++ {
			for q := lo; q < hi; q++ {
				t.Add(a.ind[p], a.ind[q], wi*a.data[p]*a.data[q])
			}
		}
	}
	return t.CSR()
}
