package sparse

import "sort"

// CTriplet accumulates complex entries. Duplicates are summed.
type CTriplet struct {
	r, c int
	ri   []int
	ci   []int
	v    []complex128
}

// NewCTriplet returns an empty r x c complex accumulator.
func NewCTriplet(r, c int) *CTriplet {
	return &CTriplet{r: r, c: c}
}

// Add records v at (i, j).
func (t *CTriplet) Add(i, j int, v complex128) {
	if i < 0 || i >= t.r || j < 0 || j >= t.c {
		panic("sparse: index out of range")
	}
	if v == 0 {
		return
	}
	t.ri = append(t.ri, i)
	t.ci = append(t.ci, j)
	t.v = append(t.v, v)
}

// CSR compresses the triplet.
func (t *CTriplet) CSR() *CCSR {
	m := &CCSR{r: t.r, c: t.c, indptr: make([]int, t.r+1)}
	order := make([]int, len(t.v))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := order[a], order[b]
		if t.ri[ka] != t.ri[kb] {
			return t.ri[ka] < t.ri[kb]
		}
		return t.ci[ka] < t.ci[kb]
	})
	for _, k := range order {
		i, j := t.ri[k], t.ci[k]
		n := len(m.ind)
		if n > 0 && m.rowOf(n-1) == i && m.ind[n-1] == j {
			m.data[n-1] += t.v[k]
			continue
		}
		m.ind = append(m.ind, j)
		m.data = append(m.data, t.v[k])
		m.rows = append(m.rows, i)
	}
	for _, i := range m.rows {
		m.indptr[i+1]++
	}
	for i := 0; i < t.r; i++ {
		m.indptr[i+1] += m.indptr[i]
	}
	m.rows = nil
	return m
}

// CCSR is an immutable complex sparse matrix, used for bus admittances.
type CCSR struct {
	r, c   int
	indptr []int
	ind    []int
	data   []complex128
	rows   []int // scratch during compression
}

func (m *CCSR) rowOf(p int) int { return m.rows[p] }

// Dims returns the shape.
func (m *CCSR) Dims() (int, int) { return m.r, m.c }

// NNZ returns the number of stored entries.
func (m *CCSR) NNZ() int { return len(m.data) }

// At returns the entry at (i, j).
func (m *CCSR) At(i, j int) complex128 {
	lo, hi := m.indptr[i], m.indptr[i+1]
	p := sort.SearchInts(m.ind[lo:hi], j) + lo
	if p < hi && m.ind[p] == j {
		return m.data[p]
	}
	return 0
}

// DoRowNonZero calls fn for every stored entry of row i.
func (m *CCSR) DoRowNonZero(i int, fn func(j int, v complex128)) {
	for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
		fn(m.ind[p], m.data[p])
	}
}

// DoNonZero calls fn for every stored entry in row-major order.
func (m *CCSR) DoNonZero(fn func(i, j int, v complex128)) {
	for i := 0; i < m.r; i++ {
		m.DoRowNonZero(i, func(j int, v complex128) { fn(i, j, v) })
	}
}

// MulVec returns m x.
func (m *CCSR) MulVec(x []complex128) []complex128 {
	if len(x) != m.c {
		panic("sparse: dimension mismatch")
	}
	y := make([]complex128, m.r)
	for i := 0; i < m.r; i++ {
		var s complex128
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			s += m.data[p] * x[m.ind[p]]
		}
		y[i] = s
	}
	return y
}
