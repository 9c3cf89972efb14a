package ml

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// SGDRegressor is a linear model fitted by stochastic gradient descent on
// squared loss with L2 regularization and an adaptive learning rate: eta
// holds while the epoch loss improves and divides by five when it stalls.
type SGDRegressor struct {
	Eta0    float64 `json:"eta0"`
	Alpha   float64 `json:"alpha"`
	MaxIter int     `json:"max_iter"`
	Seed    int64   `json:"seed"`

	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

func (s *SGDRegressor) Fit(X *mat.Dense, y []float64) error {
	n, cols := X.Dims()
	if n != len(y) {
		return errors.New("sgd: X and y length mismatch")
	}
	if s.MaxIter <= 0 {
		s.MaxIter = 1000
	}
	if s.Eta0 <= 0 {
		s.Eta0 = 0.01
	}

	rng := rand.New(rand.NewSource(s.Seed))
	s.Weights = make([]float64, cols)
	s.Intercept = 0

	eta := s.Eta0
	bestLoss := math.Inf(1)
	stall := 0

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < s.MaxIter; epoch++ {
		rng.Shuffle(n, func(a, b int) { order[a], order[b] = order[b], order[a] })

		for _, i := range order {
			pred := s.Intercept
			for j := 0; j < cols; j++ {
				pred += s.Weights[j] * X.At(i, j)
			}
			grad := pred - y[i]
			// Clip to keep a bad step from blowing up the weights.
			if grad > 1e6 {
				grad = 1e6
			} else if grad < -1e6 {
				grad = -1e6
			}
			for j := 0; j < cols; j++ {
				s.Weights[j] -= eta * (grad*X.At(i, j) + s.Alpha*s.Weights[j])
			}
			s.Intercept -= eta * grad
		}

		loss := 0.0
		for i := 0; i < n; i++ {
			pred := s.Intercept
			for j := 0; j < cols; j++ {
				pred += s.Weights[j] * X.At(i, j)
			}
			d := pred - y[i]
			loss += d * d
		}
		loss /= float64(n)

		if loss < bestLoss-1e-6 {
			bestLoss = loss
			stall = 0
		} else {
			stall++
			if stall >= 5 {
				eta /= 5
				stall = 0
				if eta < 1e-6 {
					break
				}
			}
		}
	}
	return nil
}

func (s *SGDRegressor) Predict(X *mat.Dense) ([]float64, error) {
	if s.Weights == nil {
		return nil, errors.New("sgd: model not fitted")
	}
	n, cols := X.Dims()
	if cols != len(s.Weights) {
		return nil, errors.New("sgd: feature count mismatch")
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := s.Intercept
		for j := 0; j < cols; j++ {
			v += s.Weights[j] * X.At(i, j)
		}
		out[i] = v
	}
	return out, nil
}
