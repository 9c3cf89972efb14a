package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// KernelSVR is a kernel regressor standing in for support-vector regression:
// it solves (K + I/C) alpha = y over the training rows, which keeps the
// C-as-regularization semantics while staying a closed-form solve.
type KernelSVR struct {
	Kernel  string      `json:"kernel"`
	C       float64     `json:"c"`
	Gamma   float64     `json:"gamma"` // 0 means "scale": 1/(n_features*var(X))
	Support [][]float64 `json:"support"`
	Alpha   []float64   `json:"alpha"`

	gammaUsed float64
}

// resolveGamma turns gamma=0 into the data-dependent "scale" value.
func (k *KernelSVR) resolveGamma(X *mat.Dense) float64 {
	if k.Gamma > 0 {
		return k.Gamma
	}
	n, cols := X.Dims()
	total, count := 0.0, 0
	means := make([]float64, cols)
	for j := 0; j < cols; j++ {
		for i := 0; i < n; i++ {
			means[j] += X.At(i, j)
		}
		means[j] /= float64(n)
	}
	for j := 0; j < cols; j++ {
		for i := 0; i < n; i++ {
			d := X.At(i, j) - means[j]
			total += d * d
			count++
		}
	}
	variance := total / float64(count)
	if variance == 0 {
		variance = 1
	}
	return 1 / (float64(cols) * variance)
}

func (k *KernelSVR) Fit(X *mat.Dense, y []float64) error {
	n, cols := X.Dims()
	if n != len(y) {
		return errors.New("svm: X and y length mismatch")
	}
	if k.C <= 0 {
		k.C = 1
	}
	k.gammaUsed = k.resolveGamma(X)

	k.Support = make([][]float64, n)
	for i := 0; i < n; i++ {
		k.Support[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			k.Support[i][j] = X.At(i, j)
		}
	}

	K := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := k.kernel(k.Support[i], k.Support[j])
			K.Set(i, j, v)
			K.Set(j, i, v)
		}
		K.Set(i, i, K.At(i, i)+1/k.C)
	}

	alpha := mat.NewVecDense(n, nil)
	b := mat.NewVecDense(n, append([]float64(nil), y...))
	if err := alpha.SolveVec(K, b); err != nil {
		return err
	}
	k.Alpha = make([]float64, n)
	for i := 0; i < n; i++ {
		k.Alpha[i] = alpha.AtVec(i)
	}
	// Gamma resolved at fit time must survive serialization.
	k.Gamma = k.gammaUsed
	return nil
}

func (k *KernelSVR) Predict(X *mat.Dense) ([]float64, error) {
	if len(k.Alpha) == 0 {
		return nil, errors.New("svm: model not fitted")
	}
	if k.gammaUsed == 0 {
		k.gammaUsed = k.Gamma
	}
	n, cols := X.Dims()
	if cols != len(k.Support[0]) {
		return nil, errors.New("svm: feature count mismatch")
	}
	out := make([]float64, n)
	row := make([]float64, cols)
	for i := 0; i < n; i++ {
		for j := 0; j < cols; j++ {
			row[j] = X.At(i, j)
		}
		v := 0.0
		for s, sv := range k.Support {
			v += k.Alpha[s] * k.kernel(row, sv)
		}
		out[i] = v
	}
	return out, nil
}

func (k *KernelSVR) kernel(a, b []float64) float64 {
	switch k.Kernel {
	case "linear":
		dot := 0.0
		for i := range a {
			dot += a[i] * b[i]
		}
		return dot
	default: // rbf
		dist := 0.0
		for i := range a {
			d := a[i] - b[i]
			dist += d * d
		}
		return math.Exp(-k.gammaUsed * dist)
	}
}
