package ml

import "log"

// PipelineStats aggregates what each preprocessing stage did, for surfacing
// to the user alongside training results.
type PipelineStats struct {
	Clean    *CleanStats  `json:"clean"`
	Impute   *ImputeStats `json:"impute"`
	RowsIn   int          `json:"rows_in"`
	RowsOut  int          `json:"rows_out"`
	Features []string     `json:"features"`
}

// PrepareTrainingData runs the full preprocessing chain: validate and clean,
// extract features, fill missing values, remove outliers, engineer derived
// features. Returns the final matrix, aligned target vector, and stage stats.
func PrepareTrainingData(ds *Dataset, targetColumn string, featureColumns []string, outlierMethod string) (*Matrix, []float64, *PipelineStats, error) {
	stats := &PipelineStats{RowsIn: len(ds.Rows)}

	cleaned, cleanStats, err := ValidateAndClean(ds, targetColumn)
	if err != nil {
		return nil, nil, nil, err
	}
	stats.Clean = cleanStats

	m, err := ExtractFeatures(cleaned, targetColumn, featureColumns)
	if err != nil {
		return nil, nil, nil, err
	}
	y := TargetVector(cleaned, targetColumn)

	m, imputeStats, err := FillMissing(m)
	if err != nil {
		return nil, nil, nil, err
	}
	stats.Impute = imputeStats

	m, y = RemoveOutliers(m, y, outlierMethod)
	m = EngineerFeatures(m)

	stats.RowsOut = m.NumRows()
	stats.Features = append([]string(nil), m.Names...)

	log.Printf("pipeline: %d rows in, %d rows out, %d features (%s)",
		stats.RowsIn, stats.RowsOut, len(m.Names), targetColumn)
	return m, y, stats, nil
}
