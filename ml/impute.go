package ml

import (
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ImputeStats reports what the missing-value handler did per column.
type ImputeStats struct {
	MissingCells   int      `json:"missing_cells"`
	DroppedColumns []string `json:"dropped_columns"`
	MedianFilled   []string `json:"median_filled"`
	KNNFilled      []string `json:"knn_filled"`
}

// FillMissing fills gaps with a per-column adaptive strategy keyed on the
// missing-data fraction: columns over 50% missing are dropped, (0.2, 0.5]
// gets the column median, at most 20% with 10+ samples gets k-nearest-
// neighbor imputation (median on failure), anything else the median. A final
// pass zeroes any residual gap so no NaN leaves this stage. Errors with
// NoFeaturesError when the drop rule removes every column.
func FillMissing(m *Matrix) (*Matrix, *ImputeStats, error) {
	n, cols := m.X.Dims()
	stats := &ImputeStats{}

	for j := 0; j < cols; j++ {
		for i := 0; i < n; i++ {
			if math.IsNaN(m.X.At(i, j)) {
				stats.MissingCells++
			}
		}
	}
	if stats.MissingCells == 0 {
		return m, stats, nil
	}

	var keepNames []string
	var keepCols []int
	for j := 0; j < cols; j++ {
		missing := 0
		for i := 0; i < n; i++ {
			if math.IsNaN(m.X.At(i, j)) {
				missing++
			}
		}
		frac := float64(missing) / float64(n)
		if frac > 0.5 {
			stats.DroppedColumns = append(stats.DroppedColumns, m.Names[j])
			log.Printf("impute: dropping column %q (%.0f%% missing)", m.Names[j], frac*100)
			continue
		}
		keepNames = append(keepNames, m.Names[j])
		keepCols = append(keepCols, j)
	}
	if len(keepCols) == 0 {
		return nil, stats, &NoFeaturesError{}
	}

	out := mat.NewDense(n, len(keepCols), nil)
	for nj, j := range keepCols {
		for i := 0; i < n; i++ {
			out.Set(i, nj, m.X.At(i, j))
		}
	}
	res := &Matrix{X: out, Names: keepNames}

	for j := 0; j < len(keepCols); j++ {
		missing := 0
		for i := 0; i < n; i++ {
			if math.IsNaN(res.X.At(i, j)) {
				missing++
			}
		}
		if missing == 0 {
			continue
		}
		frac := float64(missing) / float64(n)
		switch {
		case frac <= 0.2 && n >= 10:
			if knnImputeColumn(res.X, j, minInt(5, n-1)) {
				stats.KNNFilled = append(stats.KNNFilled, res.Names[j])
			} else {
				log.Printf("impute: knn failed for column %q, falling back to median", res.Names[j])
				medianFillColumn(res.X, j)
				stats.MedianFilled = append(stats.MedianFilled, res.Names[j])
			}
		default:
			medianFillColumn(res.X, j)
			stats.MedianFilled = append(stats.MedianFilled, res.Names[j])
		}
	}

	// Defensive floor: zero anything still missing.
	for j := 0; j < len(keepCols); j++ {
		for i := 0; i < n; i++ {
			if v := res.X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				res.X.Set(i, j, 0)
			}
		}
	}
	return res, stats, nil
}

// columnMedian computes the median over non-missing values of column j.
func columnMedian(X *mat.Dense, j int) float64 {
	n, _ := X.Dims()
	var vals []float64
	for i := 0; i < n; i++ {
		if v := X.At(i, j); !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 0 {
		return (vals[mid-1] + vals[mid]) / 2
	}
	return vals[mid]
}

func medianFillColumn(X *mat.Dense, j int) {
	med := columnMedian(X, j)
	n, _ := X.Dims()
	for i := 0; i < n; i++ {
		if math.IsNaN(X.At(i, j)) {
			X.Set(i, j, med)
		}
	}
}

// knnImputeColumn fills missing cells in column j from the k nearest rows,
// measured by Euclidean distance over the columns both rows have. Returns
// false when no donor rows exist for some gap.
func knnImputeColumn(X *mat.Dense, j int, k int) bool {
	n, cols := X.Dims()

	type fill struct {
		row int
		val float64
	}
	var fills []fill

	for i := 0; i < n; i++ {
		if !math.IsNaN(X.At(i, j)) {
			continue
		}
		type neighbor struct {
			dist float64
			val  float64
		}
		var neighbors []neighbor
		for r := 0; r < n; r++ {
			if r == i || math.IsNaN(X.At(r, j)) {
				continue
			}
			dist, shared := 0.0, 0
			for c := 0; c < cols; c++ {
				if c == j {
					continue
				}
				a, b := X.At(i, c), X.At(r, c)
				if math.IsNaN(a) || math.IsNaN(b) {
					continue
				}
				d := a - b
				dist += d * d
				shared++
			}
			if shared == 0 {
				continue
			}
			neighbors = append(neighbors, neighbor{dist: math.Sqrt(dist / float64(shared)), val: X.At(r, j)})
		}
		if len(neighbors) == 0 {
			return false
		}
		sort.Slice(neighbors, func(a, b int) bool { return neighbors[a].dist < neighbors[b].dist })
		if len(neighbors) > k {
			neighbors = neighbors[:k]
		}
		sum := 0.0
		for _, nb := range neighbors {
			sum += nb.val
		}
		fills = append(fills, fill{row: i, val: sum / float64(len(neighbors))})
	}

	for _, f := range fills {
		X.Set(f.row, j, f.val)
	}
	return true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
