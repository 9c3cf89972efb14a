package ml

import (
	"log"
	"math"
)

// MinTrainingRows is the hard floor below which a cleaned dataset is
// rejected.
const MinTrainingRows = 5

// percentageTargets are targets known to be bounded physical quantities in
// [0, 100]. Rows outside the bounds are sensor glitches and get dropped.
var percentageTargets = map[string]bool{
	"state_of_health": true,
	"state_of_charge": true,
	"soh":             true,
	"soc":             true,
	"capacity_fade":   true,
}

// CleanStats reports what the cleaner did.
type CleanStats struct {
	RowsIn          int `json:"rows_in"`
	RowsOut         int `json:"rows_out"`
	EmptyRows       int `json:"empty_rows"`
	MissingTarget   int `json:"missing_target"`
	BadTarget       int `json:"bad_target"`
	OutOfBoundsRows int `json:"out_of_bounds_rows"`
}

// ValidateAndClean checks the dataset against the target column and drops
// rows that cannot contribute to training: fully empty rows, rows with a
// missing or non-numeric target, and rows whose target falls outside the
// physical bounds of a percentage quantity. Cleaning is idempotent.
func ValidateAndClean(ds *Dataset, targetColumn string) (*Dataset, *CleanStats, error) {
	if !ds.HasColumn(targetColumn) {
		return nil, nil, &SchemaError{Column: targetColumn}
	}

	stats := &CleanStats{RowsIn: len(ds.Rows)}
	bounded := percentageTargets[targetColumn]

	out := &Dataset{Columns: ds.Columns}
	for _, row := range ds.Rows {
		if rowEmpty(row, ds.Columns) {
			stats.EmptyRows++
			continue
		}
		raw := row[targetColumn]
		if raw == "" {
			stats.MissingTarget++
			continue
		}
		v := parseNumeric(raw)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			stats.BadTarget++
			continue
		}
		if bounded && (v < 0 || v > 100) {
			stats.OutOfBoundsRows++
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	stats.RowsOut = len(out.Rows)

	if stats.RowsOut < MinTrainingRows {
		return nil, stats, &InsufficientDataError{Rows: stats.RowsOut, Min: MinTrainingRows}
	}

	if dropped := stats.RowsIn - stats.RowsOut; dropped > 0 {
		log.Printf("clean: dropped %d of %d rows (empty=%d missing_target=%d bad_target=%d out_of_bounds=%d)",
			dropped, stats.RowsIn, stats.EmptyRows, stats.MissingTarget, stats.BadTarget, stats.OutOfBoundsRows)
	}
	return out, stats, nil
}

// TargetVector extracts the target column as a float slice. The dataset must
// already be cleaned so every target parses.
func TargetVector(ds *Dataset, targetColumn string) []float64 {
	y := make([]float64, len(ds.Rows))
	for i, row := range ds.Rows {
		y[i] = parseNumeric(row[targetColumn])
	}
	return y
}
