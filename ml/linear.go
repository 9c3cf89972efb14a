package ml

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// LinearRegression is ordinary least squares, solved by QR with a small
// ridge fallback when the design matrix is rank-deficient.
type LinearRegression struct {
	FitIntercept bool      `json:"fit_intercept"`
	Weights      []float64 `json:"weights"`
	Intercept    float64   `json:"intercept"`
}

func (l *LinearRegression) Fit(X *mat.Dense, y []float64) error {
	n, cols := X.Dims()
	if n != len(y) {
		return errors.New("linear: X and y length mismatch")
	}

	A := X
	width := cols
	if l.FitIntercept {
		width = cols + 1
		aug := mat.NewDense(n, width, nil)
		for i := 0; i < n; i++ {
			aug.Set(i, 0, 1)
			for j := 0; j < cols; j++ {
				aug.Set(i, j+1, X.At(i, j))
			}
		}
		A = aug
	}

	b := mat.NewVecDense(n, append([]float64(nil), y...))
	coef := mat.NewVecDense(width, nil)

	var qr mat.QR
	qr.Factorize(A)
	if err := qr.SolveVecTo(coef, false, b); err != nil {
		if err := ridgeSolve(A, b, coef, 1e-8); err != nil {
			return err
		}
	}

	if l.FitIntercept {
		l.Intercept = coef.AtVec(0)
		l.Weights = make([]float64, cols)
		for j := 0; j < cols; j++ {
			l.Weights[j] = coef.AtVec(j + 1)
		}
	} else {
		l.Intercept = 0
		l.Weights = make([]float64, cols)
		for j := 0; j < cols; j++ {
			l.Weights[j] = coef.AtVec(j)
		}
	}
	return nil
}

func (l *LinearRegression) Predict(X *mat.Dense) ([]float64, error) {
	if l.Weights == nil {
		return nil, errors.New("linear: model not fitted")
	}
	n, cols := X.Dims()
	if cols != len(l.Weights) {
		return nil, errors.New("linear: feature count mismatch")
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := l.Intercept
		for j := 0; j < cols; j++ {
			v += l.Weights[j] * X.At(i, j)
		}
		out[i] = v
	}
	return out, nil
}

// ridgeSolve solves (AᵀA + λI) w = Aᵀb for ill-conditioned systems.
func ridgeSolve(A *mat.Dense, b *mat.VecDense, coef *mat.VecDense, lambda float64) error {
	_, width := A.Dims()
	var ata mat.Dense
	ata.Mul(A.T(), A)
	for j := 0; j < width; j++ {
		ata.Set(j, j, ata.At(j, j)+lambda)
	}
	var atb mat.VecDense
	atb.MulVec(A.T(), b)
	return coef.SolveVec(&ata, &atb)
}

// PolynomialRegression is linear regression over a degree-d polynomial
// feature expansion. It carries its own standard scaler, fitted before the
// expansion, since high-degree monomials blow up on raw sensor scales.
type PolynomialRegression struct {
	Degree int               `json:"degree"`
	Scaler *Scaler           `json:"scaler"`
	Linear *LinearRegression `json:"linear"`
}

func (p *PolynomialRegression) Fit(X *mat.Dense, y []float64) error {
	scaled, err := p.Scaler.FitTransform(X)
	if err != nil {
		return err
	}
	return p.Linear.Fit(expandPolynomial(scaled, p.Degree), y)
}

func (p *PolynomialRegression) Predict(X *mat.Dense) ([]float64, error) {
	scaled, err := p.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	return p.Linear.Predict(expandPolynomial(scaled, p.Degree))
}

// expandPolynomial maps X to all monomials of total degree 1..d, including
// cross terms (combinations with repetition of the feature indices).
func expandPolynomial(X *mat.Dense, degree int) *mat.Dense {
	n, cols := X.Dims()
	combos := monomialCombos(cols, degree)
	out := mat.NewDense(n, len(combos), nil)
	for i := 0; i < n; i++ {
		for t, combo := range combos {
			v := 1.0
			for _, j := range combo {
				v *= X.At(i, j)
			}
			out.Set(i, t, v)
		}
	}
	return out
}

// monomialCombos enumerates non-decreasing index tuples of length 1..degree
// over cols features.
func monomialCombos(cols, degree int) [][]int {
	var combos [][]int
	var build func(start int, current []int)
	build = func(start int, current []int) {
		if len(current) > 0 {
			combos = append(combos, append([]int(nil), current...))
		}
		if len(current) == degree {
			return
		}
		for j := start; j < cols; j++ {
			build(j, append(current, j))
		}
	}
	build(0, nil)
	return combos
}
