package forecast

import (
	"gonum.org/v1/gonum/mat"
)

// olsSolve fits y = X*beta by least squares. X is row-major observations.
// Returns nil when the system is degenerate.
func olsSolve(rows [][]float64, y []float64) []float64 {
	n := len(rows)
	if n == 0 || len(rows[0]) == 0 || n != len(y) {
		return nil
	}
	p := len(rows[0])
	X := mat.NewDense(n, p, nil)
	for i, row := range rows {
		X.SetRow(i, row)
	}
	yv := mat.NewVecDense(n, y)
	var beta mat.VecDense
	if err := beta.SolveVec(X, yv); err != nil {
		return nil
	}
	out := make([]float64, p)
	for j := 0; j < p; j++ {
		out[j] = beta.AtVec(j)
	}
	return out
}

// ridgeSolve fits y = X*beta with an L2 penalty by solving the normal
// equations (X'X + lambda*I) beta = X'y. The caller is expected to have
// centered y and standardized X; the intercept is handled outside.
func ridgeSolve(rows [][]float64, y []float64, lambda float64) []float64 {
	n := len(rows)
	if n == 0 || len(rows[0]) == 0 || n != len(y) {
		return nil
	}
	p := len(rows[0])
	X := mat.NewDense(n, p, nil)
	for i, row := range rows {
		X.SetRow(i, row)
	}
	yv := mat.NewVecDense(n, y)

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	for j := 0; j < p; j++ {
		xtx.Set(j, j, xtx.At(j, j)+lambda)
	}
	var xty mat.VecDense
	xty.MulVec(X.T(), yv)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil
	}
	out := make([]float64, p)
	for j := 0; j < p; j++ {
		out[j] = beta.AtVec(j)
	}
	return out
}

// polyfit fits a degree-deg polynomial to (x, y) by least squares and
// returns coefficients lowest order first.
func polyfit(x, y []float64, deg int) []float64 {
	rows := make([][]float64, len(x))
	for i, xv := range x {
		row := make([]float64, deg+1)
		pow := 1.0
		for j := 0; j <= deg; j++ {
			row[j] = pow
			pow *= xv
		}
		rows[i] = row
	}
	return olsSolve(rows, y)
}

func polyval(coeffs []float64, x float64) float64 {
	v := 0.0
	pow := 1.0
	for _, c := range coeffs {
		v += c * pow
		pow *= x
	}
	return v
}
