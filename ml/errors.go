package ml

import "fmt"

// SchemaError reports a required column missing from the input data.
// Not retryable; the caller must fix the dataset.
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("required column %q not found in dataset", e.Column)
}

// InsufficientDataError reports too few usable rows for the requested
// operation.
type InsufficientDataError struct {
	Rows int
	Min  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d rows available, need at least %d", e.Rows, e.Min)
}

// InsufficientSequenceDataError reports that a sequence model cannot build
// enough training windows from the available rows.
type InsufficientSequenceDataError struct {
	Rows           int
	SequenceLength int
	Sequences      int
}

func (e *InsufficientSequenceDataError) Error() string {
	return fmt.Sprintf("insufficient sequence data: %d rows with sequence_length=%d yields %d sequences, need at least 3 (recommended minimum %d rows)",
		e.Rows, e.SequenceLength, e.Sequences, e.SequenceLength+5)
}

// NoFeaturesError reports that no usable feature columns survived extraction.
type NoFeaturesError struct{}

func (e *NoFeaturesError) Error() string {
	return "no usable feature columns in dataset"
}

// UnsupportedModelError reports an unknown model type string.
type UnsupportedModelError struct {
	ModelType string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("unsupported model type: %q", e.ModelType)
}

// TrainingFailure wraps an error raised by the underlying fit. Retryable by
// resubmitting, possibly with different parameters.
type TrainingFailure struct {
	Err error
}

func (e *TrainingFailure) Error() string {
	return fmt.Sprintf("training failed: %v", e.Err)
}

func (e *TrainingFailure) Unwrap() error { return e.Err }
