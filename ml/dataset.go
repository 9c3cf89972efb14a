package ml

import (
	"encoding/csv"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
)

// Dataset is an ordered in-memory table of raw scalars. Values are kept as
// strings until a pipeline stage coerces them; "" means missing.
type Dataset struct {
	Columns []string
	Rows    []map[string]string
}

// IngestStats reports what happened during CSV ingestion. Malformed rows are
// skipped on purpose (sensor exports are messy) but always counted.
type IngestStats struct {
	RowsRead    int `json:"rows_read"`
	RowsKept    int `json:"rows_kept"`
	RowsSkipped int `json:"rows_skipped"`
}

// ReadCSV parses CSV data into a Dataset. Rows whose field count does not
// match the header are skipped and counted, never fatal.
func ReadCSV(r io.Reader) (*Dataset, *IngestStats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, err
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	ds := &Dataset{Columns: columns}
	stats := &IngestStats{}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		stats.RowsRead++
		if err != nil {
			stats.RowsSkipped++
			continue
		}
		if len(record) != len(columns) {
			stats.RowsSkipped++
			continue
		}
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			row[col] = strings.TrimSpace(record[i])
		}
		ds.Rows = append(ds.Rows, row)
		stats.RowsKept++
	}

	if stats.RowsSkipped > 0 {
		log.Printf("csv ingest: skipped %d of %d rows", stats.RowsSkipped, stats.RowsRead)
	}
	return ds, stats, nil
}

// HasColumn reports whether the dataset contains the named column.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int { return len(d.Rows) }

// parseNumeric converts a raw cell to a float64. Returns NaN for missing or
// non-numeric values.
func parseNumeric(raw string) float64 {
	if raw == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// rowEmpty reports whether every cell in the row is blank.
func rowEmpty(row map[string]string, columns []string) bool {
	for _, col := range columns {
		if row[col] != "" {
			return false
		}
	}
	return true
}
