package opf

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// DerivativeCheck compares one analytic derivative with central finite
// differences of the function it differentiates.
type DerivativeCheck struct {
	Name      string
	Rows      int
	Cols      int
	MaxAbsErr float64
	// MaxRelErr scales each entry error by max(1, |analytic|, |numeric|).
	MaxRelErr float64
}

// OK reports whether the relative error is within tol.
func (d DerivativeCheck) OK(tol float64) bool { return d.MaxRelErr <= tol }

// CheckDerivatives verifies the cost gradient and Hessian, both constraint
// Jacobians and the Lagrangian Hessian at x. The Lagrangian uses fixed
// nonzero probe multipliers.
func CheckDerivatives(oc *Context, x []float64, costMult float64) ([]DerivativeCheck, error) {
	if err := oc.checkX(x); err != nil {
		return nil, err
	}
	n := len(x)
	var ferr error
	keep := func(err error) {
		if err != nil && ferr == nil {
			ferr = err
		}
	}
	jac := &fd.JacobianSettings{Formula: fd.Central}

	ce, err := Cost(oc, x, true)
	if err != nil {
		return nil, err
	}
	cons, err := Constraints(oc, x)
	if err != nil {
		return nil, err
	}
	m := probeMultipliers(oc)
	lh, err := LagrangianHessian(oc, x, m, costMult)
	if err != nil {
		return nil, err
	}

	var out []DerivativeCheck

	grad := fd.Gradient(nil, func(x []float64) float64 {
		e, err := Cost(oc, x, false)
		keep(err)
		if err != nil {
			return math.NaN()
		}
		return e.F
	}, x, &fd.Settings{Formula: fd.Central})
	out = append(out, compare("cost gradient", mat.NewDense(1, n, ce.Grad), mat.NewDense(1, n, grad)))

	numHess := mat.NewDense(n, n, nil)
	fd.Jacobian(numHess, func(y, x []float64) {
		e, err := Cost(oc, x, false)
		keep(err)
		if err == nil {
			copy(y, e.Grad)
		}
	}, x, jac)
	out = append(out, compare("cost hessian", ce.Hess.Dense(), numHess))

	numDG := mat.NewDense(oc.NumEq(), n, nil)
	fd.Jacobian(numDG, func(y, x []float64) {
		c, err := Constraints(oc, x)
		keep(err)
		if err == nil {
			copy(y, c.G)
		}
	}, x, jac)
	out = append(out, compare("power balance jacobian", cons.DG.Dense(), numDG))

	if oc.NumIneq() > 0 {
		numDH := mat.NewDense(oc.NumIneq(), n, nil)
		fd.Jacobian(numDH, func(y, x []float64) {
			c, err := Constraints(oc, x)
			keep(err)
			if err == nil {
				copy(y, c.H)
			}
		}, x, jac)
		out = append(out, compare("flow limit jacobian", cons.DH.Dense(), numDH))
	}

	numLH := mat.NewDense(n, n, nil)
	fd.Jacobian(numLH, func(y, x []float64) {
		g, err := lagrangianGradient(oc, x, m, costMult)
		keep(err)
		if err == nil {
			copy(y, g)
		}
	}, x, jac)
	out = append(out, compare("lagrangian hessian", lh.Dense(), numLH))

	if ferr != nil {
		return nil, ferr
	}
	return out, nil
}

// lagrangianGradient is costMult·∇f + DGᵀλ + DHᵀμ.
func lagrangianGradient(oc *Context, x []float64, m Multipliers, costMult float64) ([]float64, error) {
	ce, err := Cost(oc, x, false)
	if err != nil {
		return nil, err
	}
	c, err := Constraints(oc, x)
	if err != nil {
		return nil, err
	}
	g := c.DG.MulVecTrans(m.Eq)
	if len(m.Ineq) > 0 {
		for j, v := range c.DH.MulVecTrans(m.Ineq) {
			g[j] += v
		}
	}
	for j, v := range ce.Grad {
		g[j] += costMult * v
	}
	return g, nil
}

func probeMultipliers(oc *Context) Multipliers {
	m := Multipliers{Eq: make([]float64, oc.NumEq()), Ineq: make([]float64, oc.NumIneq())}
	for i := range m.Eq {
		m.Eq[i] = 0.1 * float64(i%5-2)
	}
	for i := range m.Ineq {
		m.Ineq[i] = 0.05 * float64(i%3+1)
	}
	return m
}

func compare(name string, analytic, numeric mat.Matrix) DerivativeCheck {
	r, c := analytic.Dims()
	d := DerivativeCheck{Name: name, Rows: r, Cols: c}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			a, b := analytic.At(i, j), numeric.At(i, j)
			diff := math.Abs(a - b)
			if math.IsNaN(diff) {
				diff = math.Inf(1)
			}
			d.MaxAbsErr = math.Max(d.MaxAbsErr, diff)
			d.MaxRelErr = math.Max(d.MaxRelErr, diff/math.Max(1, math.Max(math.Abs(a), math.Abs(b))))
		}
	}
	return d
}
