package ml

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler kinds. Robust is the preferred default for this domain: sensor
// telemetry is outlier-prone and median/IQR centering tolerates that.
const (
	ScaleStandard = "standard"
	ScaleRobust   = "robust"
	ScaleMinMax   = "minmax"
)

// Scaler normalizes feature columns. Fit happens exactly once, on training
// data; test and inference data only ever go through Transform so test-split
// statistics never leak into the fitted parameters.
type Scaler struct {
	Kind   string    `json:"kind"`
	Center []float64 `json:"center"`
	Scale  []float64 `json:"scale"`
}

// NewScaler returns an unfitted scaler of the given kind.
func NewScaler(kind string) *Scaler {
	return &Scaler{Kind: kind}
}

// Fitted reports whether Fit has run.
func (s *Scaler) Fitted() bool { return len(s.Scale) > 0 }

// Fit computes per-column centering and scale statistics from X.
func (s *Scaler) Fit(X *mat.Dense) error {
	n, cols := X.Dims()
	if n == 0 || cols == 0 {
		return errors.New("scaler: empty matrix")
	}
	s.Center = make([]float64, cols)
	s.Scale = make([]float64, cols)

	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, X)
		switch s.Kind {
		case ScaleMinMax:
			lo, hi := col[0], col[0]
			for _, v := range col {
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			s.Center[j] = lo
			s.Scale[j] = hi - lo
		case ScaleRobust:
			sorted := append([]float64(nil), col...)
			sort.Float64s(sorted)
			med := stat.Quantile(0.5, stat.Empirical, sorted, nil)
			q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
			q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
			s.Center[j] = med
			s.Scale[j] = q3 - q1
		default: // standard
			mean, std := stat.MeanStdDev(col, nil)
			s.Center[j] = mean
			s.Scale[j] = std
		}
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}
	return nil
}

// Transform applies the fitted statistics to X, returning a new matrix.
func (s *Scaler) Transform(X *mat.Dense) (*mat.Dense, error) {
	if !s.Fitted() {
		return nil, errors.New("scaler: not fitted")
	}
	n, cols := X.Dims()
	if cols != len(s.Scale) {
		return nil, errors.New("scaler: column count mismatch")
	}
	out := mat.NewDense(n, cols, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, (X.At(i, j)-s.Center[j])/s.Scale[j])
		}
	}
	return out, nil
}

// FitTransform fits on X and transforms it in one step. Training data only.
func (s *Scaler) FitTransform(X *mat.Dense) (*mat.Dense, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// vecScaler scales a single value series; used by models that manage their
// own target scaling.
type vecScaler struct {
	Center float64 `json:"center"`
	Scale  float64 `json:"scale"`
}

func fitVecScaler(y []float64) *vecScaler {
	mean, std := stat.MeanStdDev(y, nil)
	if std == 0 {
		std = 1
	}
	return &vecScaler{Center: mean, Scale: std}
}

func (s *vecScaler) transform(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = (v - s.Center) / s.Scale
	}
	return out
}

func (s *vecScaler) inverse(v float64) float64 {
	return v*s.Scale + s.Center
}
