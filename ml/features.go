package ml

import (
	"log"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense feature matrix with its column order recorded so later
// predictions align features consistently.
type Matrix struct {
	X     *mat.Dense
	Names []string
}

// NumRows returns the row count of the matrix.
func (m *Matrix) NumRows() int {
	r, _ := m.X.Dims()
	return r
}

// NumCols returns the feature count of the matrix.
func (m *Matrix) NumCols() int {
	_, c := m.X.Dims()
	return c
}

// ExtractFeatures builds the numeric feature matrix from a cleaned dataset.
// With explicit columns, missing ones are logged and skipped. Without, any
// column that is not the target, timestamp-like, id-like, or free text and
// has at least one numeric value is auto-detected. Columns left 100% missing
// after coercion are dropped.
func ExtractFeatures(ds *Dataset, targetColumn string, explicit []string) (*Matrix, error) {
	var candidates []string
	if len(explicit) > 0 {
		for _, col := range explicit {
			if !ds.HasColumn(col) {
				log.Printf("features: requested column %q not in dataset, skipping", col)
				continue
			}
			candidates = append(candidates, col)
		}
	} else {
		for _, col := range ds.Columns {
			if col == targetColumn || metadataColumn(col) {
				continue
			}
			candidates = append(candidates, col)
		}
	}

	n := len(ds.Rows)
	var names []string
	var columns [][]float64
	for _, col := range candidates {
		vals := make([]float64, n)
		convertible := 0
		for i, row := range ds.Rows {
			vals[i] = parseNumeric(row[col])
			if !math.IsNaN(vals[i]) && !math.IsInf(vals[i], 0) {
				convertible++
			}
		}
		if convertible == 0 {
			log.Printf("features: column %q has no numeric values, dropping", col)
			continue
		}
		names = append(names, col)
		columns = append(columns, vals)
	}

	if len(names) == 0 {
		return nil, &NoFeaturesError{}
	}

	X := mat.NewDense(n, len(names), nil)
	for j, vals := range columns {
		for i, v := range vals {
			if math.IsInf(v, 0) {
				v = math.NaN()
			}
			X.Set(i, j, v)
		}
	}
	return &Matrix{X: X, Names: names}, nil
}

// metadataColumn reports whether a column name looks like a timestamp, row
// id, or free-text annotation rather than a measurement.
func metadataColumn(name string) bool {
	lower := strings.ToLower(name)
	if lower == "id" || strings.HasSuffix(lower, "_id") {
		return true
	}
	for _, marker := range []string{"time", "date", "_at"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	switch lower {
	case "data_source", "source", "notes", "comment", "description":
		return true
	}
	return false
}
