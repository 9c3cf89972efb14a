package ml

import (
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minOutlierRows is the sample floor below which outlier removal is skipped;
// trimming tiny datasets destroys signal.
const minOutlierRows = 20

// RemoveOutliers drops rows outside per-column bounds. The final keep mask
// is the conjunction over all feature columns, so X and y stay aligned.
// Methods: "iqr" (default, [Q1-1.5*IQR, Q3+1.5*IQR]) and "zscore" (|z| < 3).
func RemoveOutliers(m *Matrix, y []float64, method string) (*Matrix, []float64) {
	n, cols := m.X.Dims()
	if n < minOutlierRows {
		return m, y
	}

	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}

	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, m.X)
		switch method {
		case "zscore":
			mean, std := stat.MeanStdDev(col, nil)
			if std == 0 || math.IsNaN(std) {
				continue
			}
			for i, v := range col {
				if math.Abs((v-mean)/std) >= 3 {
					keep[i] = false
				}
			}
		default: // iqr
			sorted := append([]float64(nil), col...)
			sort.Float64s(sorted)
			q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
			q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
			iqr := q3 - q1
			lo, hi := q1-1.5*iqr, q3+1.5*iqr
			for i, v := range col {
				if v < lo || v > hi {
					keep[i] = false
				}
			}
		}
	}

	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	if kept == n {
		return m, y
	}
	if kept < MinTrainingRows {
		log.Printf("outliers: removal would leave %d rows, skipping", kept)
		return m, y
	}

	X := mat.NewDense(kept, cols, nil)
	yOut := make([]float64, 0, kept)
	ri := 0
	for i := 0; i < n; i++ {
		if !keep[i] {
			continue
		}
		for j := 0; j < cols; j++ {
			X.Set(ri, j, m.X.At(i, j))
		}
		yOut = append(yOut, y[i])
		ri++
	}
	log.Printf("outliers: removed %d of %d rows (%s)", n-kept, n, methodName(method))
	return &Matrix{X: X, Names: m.Names}, yOut
}

func methodName(method string) string {
	if method == "zscore" {
		return "zscore"
	}
	return "iqr"
}
