package ml

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestExtractFeatures(t *testing.T) {
	cols := []string{"id", "measurement_timestamp", "state_of_health", "voltage", "temperature", "notes"}
	rows := []map[string]string{
		{"id": "1", "measurement_timestamp": "2026-01-01", "state_of_health": "95", "voltage": "380", "temperature": "25", "notes": "ok"},
		{"id": "2", "measurement_timestamp": "2026-01-02", "state_of_health": "94", "voltage": "379", "temperature": "26", "notes": "ok"},
		{"id": "3", "measurement_timestamp": "2026-01-03", "state_of_health": "93", "voltage": "", "temperature": "27", "notes": "warm"},
	}
	ds := makeDataset(cols, rows...)

	t.Run("auto-detect excludes metadata and target", func(t *testing.T) {
		m, err := ExtractFeatures(ds, "state_of_health", nil)
		if err != nil {
			t.Fatalf("ExtractFeatures() error = %v", err)
		}
		want := []string{"voltage", "temperature"}
		if len(m.Names) != len(want) {
			t.Fatalf("names = %v, want %v", m.Names, want)
		}
		for i, name := range want {
			if m.Names[i] != name {
				t.Errorf("names[%d] = %q, want %q", i, m.Names[i], name)
			}
		}
		if !math.IsNaN(m.X.At(2, 0)) {
			t.Errorf("missing voltage cell = %v, want NaN", m.X.At(2, 0))
		}
	})

	t.Run("explicit missing column skipped", func(t *testing.T) {
		m, err := ExtractFeatures(ds, "state_of_health", []string{"voltage", "no_such_column"})
		if err != nil {
			t.Fatalf("ExtractFeatures() error = %v", err)
		}
		if len(m.Names) != 1 || m.Names[0] != "voltage" {
			t.Errorf("names = %v, want [voltage]", m.Names)
		}
	})

	t.Run("no usable columns", func(t *testing.T) {
		ds := makeDataset([]string{"soh", "notes"},
			map[string]string{"soh": "95", "notes": "fine"},
		)
		_, err := ExtractFeatures(ds, "soh", nil)
		var noFeat *NoFeaturesError
		if !errors.As(err, &noFeat) {
			t.Fatalf("error = %v, want NoFeaturesError", err)
		}
	})

	t.Run("fully non-numeric column dropped", func(t *testing.T) {
		ds := makeDataset([]string{"soh", "voltage", "grade"},
			map[string]string{"soh": "95", "voltage": "380", "grade": "A"},
			map[string]string{"soh": "94", "voltage": "379", "grade": "B"},
		)
		m, err := ExtractFeatures(ds, "soh", nil)
		if err != nil {
			t.Fatalf("ExtractFeatures() error = %v", err)
		}
		if len(m.Names) != 1 || m.Names[0] != "voltage" {
			t.Errorf("names = %v, want [voltage]", m.Names)
		}
	})
}

func TestMetadataColumn(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"id", true},
		{"vehicle_id", true},
		{"measurement_timestamp", true},
		{"created_at", true},
		{"date_recorded", true},
		{"data_source", true},
		{"notes", true},
		{"voltage", false},
		{"cycle_count", false},
		{"soh", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := metadataColumn(tt.name); got != tt.want {
				t.Errorf("metadataColumn(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestFillMissing(t *testing.T) {
	t.Run("no missing values is a no-op", func(t *testing.T) {
		m := &Matrix{X: mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}), Names: []string{"a", "b"}}
		out, stats, err := FillMissing(m)
		if err != nil {
			t.Fatalf("FillMissing() error = %v", err)
		}
		if stats.MissingCells != 0 {
			t.Errorf("MissingCells = %d, want 0", stats.MissingCells)
		}
		if out != m {
			t.Errorf("expected the same matrix back")
		}
	})

	t.Run("mostly-missing column dropped", func(t *testing.T) {
		nan := math.NaN()
		data := []float64{
			1, nan,
			2, nan,
			3, nan,
			4, 10,
			5, nan,
		}
		m := &Matrix{X: mat.NewDense(5, 2, data), Names: []string{"keep", "sparse"}}
		out, stats, err := FillMissing(m)
		if err != nil {
			t.Fatalf("FillMissing() error = %v", err)
		}
		if len(stats.DroppedColumns) != 1 || stats.DroppedColumns[0] != "sparse" {
			t.Errorf("DroppedColumns = %v, want [sparse]", stats.DroppedColumns)
		}
		if out.NumCols() != 1 || out.Names[0] != "keep" {
			t.Errorf("kept columns = %v, want [keep]", out.Names)
		}
	})

	t.Run("median fill for moderate gaps", func(t *testing.T) {
		nan := math.NaN()
		data := []float64{1, 2, 3, nan, 5, nan} // 2/6 missing > 0.2
		m := &Matrix{X: mat.NewDense(6, 1, data), Names: []string{"v"}}
		out, stats, err := FillMissing(m)
		if err != nil {
			t.Fatalf("FillMissing() error = %v", err)
		}
		if len(stats.MedianFilled) != 1 {
			t.Fatalf("MedianFilled = %v, want one column", stats.MedianFilled)
		}
		// median of {1,2,3,5} is 2.5
		if got := out.X.At(3, 0); got != 2.5 {
			t.Errorf("filled value = %v, want 2.5", got)
		}
	})

	t.Run("knn fill for small gaps with enough rows", func(t *testing.T) {
		nan := math.NaN()
		n := 12
		data := make([]float64, n*2)
		for i := 0; i < n; i++ {
			data[i*2] = float64(i)
			data[i*2+1] = float64(i) * 10
		}
		data[5*2+1] = nan // one gap, <20% missing
		m := &Matrix{X: mat.NewDense(n, 2, data), Names: []string{"x", "y"}}
		out, stats, err := FillMissing(m)
		if err != nil {
			t.Fatalf("FillMissing() error = %v", err)
		}
		if len(stats.KNNFilled) != 1 || stats.KNNFilled[0] != "y" {
			t.Errorf("KNNFilled = %v, want [y]", stats.KNNFilled)
		}
		got := out.X.At(5, 1)
		if math.IsNaN(got) || got < 30 || got > 70 {
			t.Errorf("knn-filled value = %v, want near 50", got)
		}
	})

	t.Run("all columns dropped is an error, not a panic", func(t *testing.T) {
		// One column with a single numeric value: it passes extraction but
		// the 50% drop rule removes it, leaving nothing to train on.
		nan := math.NaN()
		data := make([]float64, 10)
		for i := range data {
			data[i] = nan
		}
		data[0] = 95
		m := &Matrix{X: mat.NewDense(10, 1, data), Names: []string{"sparse"}}
		_, stats, err := FillMissing(m)
		var noFeat *NoFeaturesError
		if !errors.As(err, &noFeat) {
			t.Fatalf("error = %v, want NoFeaturesError", err)
		}
		if len(stats.DroppedColumns) != 1 || stats.DroppedColumns[0] != "sparse" {
			t.Errorf("DroppedColumns = %v, want [sparse]", stats.DroppedColumns)
		}
	})

	t.Run("no NaN survives", func(t *testing.T) {
		nan := math.NaN()
		data := []float64{1, nan, nan, 4, 5, nan, 7, 8, 9, nan}
		m := &Matrix{X: mat.NewDense(5, 2, data), Names: []string{"a", "b"}}
		out, _, err := FillMissing(m)
		if err != nil {
			t.Fatalf("FillMissing() error = %v", err)
		}
		r, c := out.X.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if math.IsNaN(out.X.At(i, j)) {
					t.Fatalf("NaN left at (%d,%d)", i, j)
				}
			}
		}
	})
}
