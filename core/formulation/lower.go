package formulation

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/gridopt/core/errs"
)

// affine is the lowered form of an expression: an r x c array whose
// row-major entries are A x + k, plus Σ_j Q_ij x_j² when q is set. A is nil
// for constants; q is nil for affine expressions.
type affine struct {
	r, c int
	a    *mat.Dense // (r*c) x nx
	q    *mat.Dense // (r*c) x nx, diagonal quadratic coefficients
	k    []float64
}

func (v affine) size() int      { return v.r * v.c }
func (v affine) isConst() bool  { return v.a == nil }
func (v affine) isScalar() bool { return v.r == 1 && v.c == 1 }
func (v affine) quadratic() bool {
	if v.q == nil {
		return false
	}
	r, _ := v.q.Dims()
	for i := 0; i < r; i++ {
		if single(v.q.RawRowView(i)) != -1 {
			return true
		}
	}
	return false
}
func (v affine) kDense() *mat.Dense {
	return mat.NewDense(v.r, v.c, append([]float64(nil), v.k...))
}

// lowerer resolves identifiers against the parameters and variable offsets
// of a compiler.
type lowerer struct {
	expr   string
	nx     int
	params map[string]*mat.Dense
	vars   map[string]varSlot
}

type varSlot struct {
	off, n int
}

func (lw *lowerer) fail(name, format string, args ...any) error {
	return errs.Formulation(lw.expr, name, format, args...)
}

func (lw *lowerer) lower(n node) (affine, error) {
	switch v := n.(type) {
	case numNode:
		return affine{r: 1, c: 1, k: []float64{v.v}}, nil
	case identNode:
		if p, ok := lw.params[v.name]; ok {
			r, c := p.Dims()
			k := make([]float64, 0, r*c)
			for i := 0; i < r; i++ {
				k = append(k, p.RawRowView(i)...)
			}
			return affine{r: r, c: c, k: k}, nil
		}
		if s, ok := lw.vars[v.name]; ok {
			a := mat.NewDense(s.n, lw.nx, nil)
			for i := 0; i < s.n; i++ {
				a.Set(i, s.off+i, 1)
			}
			return affine{r: s.n, c: 1, a: a, k: make([]float64, s.n)}, nil
		}
		return affine{}, lw.fail(v.name, "undeclared name %q", v.name)
	case negNode:
		x, err := lw.lower(v.x)
		if err != nil {
			return affine{}, err
		}
		return scale(x, -1), nil
	case callNode:
		x, err := lw.lower(v.arg)
		if err != nil {
			return affine{}, err
		}
		return sum(x, lw.nx), nil
	case binNode:
		l, err := lw.lower(v.l)
		if err != nil {
			return affine{}, err
		}
		r, err := lw.lower(v.r)
		if err != nil {
			return affine{}, err
		}
		switch v.op {
		case '+':
			return lw.add(l, r, 1)
		case '-':
			return lw.add(l, r, -1)
		case '*':
			return lw.mul(l, r)
		case '/':
			return lw.div(l, r)
		case '@':
			return lw.matmul(l, r)
		case '^':
			return lw.pow(l, r)
		}
	}
	return affine{}, lw.fail("", "unsupported expression %s", n)
}

func scale(x affine, s float64) affine {
	out := affine{r: x.r, c: x.c, k: make([]float64, len(x.k))}
	for i, v := range x.k {
		out.k[i] = s * v
	}
	if x.a != nil {
		out.a = mat.DenseCopyOf(x.a)
		out.a.Scale(s, out.a)
	}
	if x.q != nil {
		out.q = mat.DenseCopyOf(x.q)
		out.q.Scale(s, out.q)
	}
	return out
}

// sumRows collapses the rows of m into one.
func sumRows(m *mat.Dense, nx int) *mat.Dense {
	if m == nil {
		return nil
	}
	out := mat.NewDense(1, nx, nil)
	dst := out.RawRowView(0)
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		for j, v := range m.RawRowView(i) {
			dst[j] += v
		}
	}
	return out
}

func sum(x affine, nx int) affine {
	out := affine{r: 1, c: 1, k: []float64{0}}
	for _, v := range x.k {
		out.k[0] += v
	}
	out.a = sumRows(x.a, nx)
	out.q = sumRows(x.q, nx)
	return out
}

func repeatRow(m *mat.Dense, n int) *mat.Dense {
	if m == nil {
		return nil
	}
	_, nx := m.Dims()
	out := mat.NewDense(n, nx, nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, m.RawRowView(0))
	}
	return out
}

// broadcast repeats a scalar to r x c.
func broadcast(x affine, r, c int) affine {
	if x.r == r && x.c == c {
		return x
	}
	n := r * c
	out := affine{r: r, c: c, k: make([]float64, n)}
	for i := range out.k {
		out.k[i] = x.k[0]
	}
	out.a = repeatRow(x.a, n)
	out.q = repeatRow(x.q, n)
	return out
}

func (lw *lowerer) shape(l, r affine, op string) (int, int, error) {
	switch {
	case l.r == r.r && l.c == r.c:
		return l.r, l.c, nil
	case l.isScalar():
		return r.r, r.c, nil
	case r.isScalar():
		return l.r, l.c, nil
	}
	return 0, 0, lw.fail("", "shape mismatch %dx%d %s %dx%d", l.r, l.c, op, r.r, r.c)
}

// combine returns l + sign·r for coefficient matrices that may be nil.
func combine(l, r *mat.Dense, sign float64) *mat.Dense {
	switch {
	case l != nil && r != nil:
		out := mat.DenseCopyOf(l)
		if sign > 0 {
			out.Add(l, r)
		} else {
			out.Sub(l, r)
		}
		return out
	case l != nil:
		return mat.DenseCopyOf(l)
	case r != nil:
		out := mat.DenseCopyOf(r)
		out.Scale(sign, out)
		return out
	}
	return nil
}

func (lw *lowerer) add(l, r affine, sign float64) (affine, error) {
	op := "+"
	if sign < 0 {
		op = "-"
	}
	rows, cols, err := lw.shape(l, r, op)
	if err != nil {
		return affine{}, err
	}
	l = broadcast(l, rows, cols)
	r = broadcast(r, rows, cols)
	out := affine{r: rows, c: cols, k: make([]float64, rows*cols)}
	for i := range out.k {
		out.k[i] = l.k[i] + sign*r.k[i]
	}
	out.a = combine(l.a, r.a, sign)
	out.q = combine(l.q, r.q, sign)
	return out, nil
}

// scaleRows multiplies row i of m by s[i].
func scaleRows(m *mat.Dense, s []float64) *mat.Dense {
	if m == nil {
		return nil
	}
	out := mat.DenseCopyOf(m)
	for i, v := range s {
		row := out.RawRowView(i)
		for j := range row {
			row[j] *= v
		}
	}
	return out
}

// mul is the elementwise product. The product of two decision expressions
// is only accepted when every entry pairs terms of a single variable, which
// keeps the result a separable quadratic.
func (lw *lowerer) mul(l, r affine) (affine, error) {
	if !l.isConst() && !r.isConst() {
		return lw.square(l, r)
	}
	if !l.isConst() {
		l, r = r, l
	}
	// l is constant
	if l.isScalar() {
		return scale(r, l.k[0]), nil
	}
	rows, cols, err := lw.shape(l, r, "*")
	if err != nil {
		return affine{}, err
	}
	r = broadcast(r, rows, cols)
	out := affine{r: rows, c: cols, k: make([]float64, rows*cols)}
	for i := range out.k {
		out.k[i] = l.k[i] * r.k[i]
	}
	out.a = scaleRows(r.a, l.k)
	out.q = scaleRows(r.q, l.k)
	return out, nil
}

// single returns the only non-zero column of row, or -1 when the row is
// zero, or -2 when it touches several columns.
func single(row []float64) int {
	col := -1
	for j, v := range row {
		if v == 0 {
			continue
		}
		if col >= 0 {
			return -2
		}
		col = j
	}
	return col
}

func (lw *lowerer) square(l, r affine) (affine, error) {
	if l.q != nil || r.q != nil {
		return affine{}, lw.fail("", "product of a quadratic expression is not quadratic")
	}
	rows, cols, err := lw.shape(l, r, "*")
	if err != nil {
		return affine{}, err
	}
	l = broadcast(l, rows, cols)
	r = broadcast(r, rows, cols)
	n := rows * cols
	out := affine{
		r: rows, c: cols,
		a: mat.NewDense(n, lw.nx, nil),
		q: mat.NewDense(n, lw.nx, nil),
		k: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		la, ra := l.a.RawRowView(i), r.a.RawRowView(i)
		jl, jr := single(la), single(ra)
		switch {
		case jl == -2 || jr == -2 || (jl >= 0 && jr >= 0 && jl != jr):
			return affine{}, lw.fail("", "product couples different variables in entry %d", i)
		case jl >= 0 && jr >= 0:
			out.q.Set(i, jl, la[jl]*ra[jr])
		}
		dst := out.a.RawRowView(i)
		for j := range dst {
			dst[j] = la[j]*r.k[i] + ra[j]*l.k[i]
		}
		out.k[i] = l.k[i] * r.k[i]
	}
	return out, nil
}

// div divides elementwise by a constant.
func (lw *lowerer) div(l, r affine) (affine, error) {
	if !r.isConst() {
		return affine{}, lw.fail("", "division by a decision expression is not affine")
	}
	inv := affine{r: r.r, c: r.c, k: make([]float64, len(r.k))}
	for i, v := range r.k {
		inv.k[i] = 1 / v
	}
	return lw.mul(inv, l)
}

// pow raises elementwise to a constant scalar power. Decision expressions
// accept the powers 1 and 2.
func (lw *lowerer) pow(l, r affine) (affine, error) {
	if !r.isConst() || !r.isScalar() {
		return affine{}, lw.fail("", "exponent must be a constant scalar")
	}
	e := r.k[0]
	if l.isConst() {
		out := affine{r: l.r, c: l.c, k: make([]float64, len(l.k))}
		for i, v := range l.k {
			out.k[i] = math.Pow(v, e)
		}
		return out, nil
	}
	switch e {
	case 1:
		return l, nil
	case 2:
		return lw.mul(l, l)
	}
	return affine{}, lw.fail("", "power %g of a decision expression is not quadratic", e)
}

// matmul is the matrix product. A decision operand must be on the right.
func (lw *lowerer) matmul(l, r affine) (affine, error) {
	if !l.isConst() {
		return affine{}, lw.fail("", "matrix product needs a constant left operand")
	}
	if l.c != r.r {
		return affine{}, lw.fail("", "shape mismatch %dx%d @ %dx%d", l.r, l.c, r.r, r.c)
	}
	ld := l.kDense()
	if r.isConst() {
		var p mat.Dense
		p.Mul(ld, r.kDense())
		out := affine{r: l.r, c: r.c, k: make([]float64, 0, l.r*r.c)}
		for i := 0; i < l.r; i++ {
			out.k = append(out.k, p.RawRowView(i)...)
		}
		return out, nil
	}
	if r.c != 1 {
		return affine{}, lw.fail("", "matrix product with a %dx%d decision expression", r.r, r.c)
	}
	out := affine{r: l.r, c: 1, k: make([]float64, l.r)}
	kv := mat.NewVecDense(l.r, out.k)
	kv.MulVec(ld, mat.NewVecDense(len(r.k), r.k))
	out.a = mat.NewDense(l.r, lw.nx, nil)
	out.a.Mul(ld, r.a)
	if r.q != nil {
		out.q = mat.NewDense(l.r, lw.nx, nil)
		out.q.Mul(ld, r.q)
	}
	return out, nil
}
