package ml

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func matrixWithOutlier(n int, outlierRow int, outlierValue float64) (*Matrix, []float64) {
	data := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		data[i] = 100 + float64(i%5)
		y[i] = float64(i)
	}
	data[outlierRow] = outlierValue
	return &Matrix{X: mat.NewDense(n, 1, data), Names: []string{"v"}}, y
}

func TestRemoveOutliers(t *testing.T) {
	t.Run("small datasets skipped", func(t *testing.T) {
		m, y := matrixWithOutlier(10, 3, 1e9)
		out, yOut := RemoveOutliers(m, y, "iqr")
		if out.NumRows() != 10 || len(yOut) != 10 {
			t.Errorf("rows = %d, want untouched 10 (below size floor)", out.NumRows())
		}
	})

	t.Run("iqr removes extreme row and keeps alignment", func(t *testing.T) {
		m, y := matrixWithOutlier(30, 7, 1e6)
		out, yOut := RemoveOutliers(m, y, "iqr")
		if out.NumRows() != 29 {
			t.Fatalf("rows = %d, want 29", out.NumRows())
		}
		if len(yOut) != 29 {
			t.Fatalf("len(y) = %d, want 29", len(yOut))
		}
		for _, v := range yOut {
			if v == 7 {
				t.Errorf("y for outlier row survived the filter")
			}
		}
	})

	t.Run("zscore removes extreme row", func(t *testing.T) {
		m, y := matrixWithOutlier(30, 12, 1e6)
		out, _ := RemoveOutliers(m, y, "zscore")
		if out.NumRows() != 29 {
			t.Errorf("rows = %d, want 29", out.NumRows())
		}
	})

	t.Run("clean data untouched", func(t *testing.T) {
		n := 25
		data := make([]float64, n)
		y := make([]float64, n)
		for i := range data {
			data[i] = 100 + math.Sin(float64(i))
			y[i] = float64(i)
		}
		m := &Matrix{X: mat.NewDense(n, 1, data), Names: []string{"v"}}
		out, _ := RemoveOutliers(m, y, "iqr")
		if out.NumRows() != n {
			t.Errorf("rows = %d, want %d", out.NumRows(), n)
		}
	})
}

func TestEngineerFeatures(t *testing.T) {
	t.Run("derives battery features", func(t *testing.T) {
		data := []float64{
			380, 10, 25, 200, 2.0,
			379, 12, 30, 400, 4.0,
		}
		m := &Matrix{
			X:     mat.NewDense(2, 5, data),
			Names: []string{"voltage", "current", "temperature", "cycle_count", "capacity_fade"},
		}
		out := EngineerFeatures(m)

		want := []string{
			"voltage", "current", "temperature", "cycle_count", "capacity_fade",
			"power_draw", "temperature_sq", "log_cycle_count", "fade_per_cycle",
		}
		if len(out.Names) != len(want) {
			t.Fatalf("names = %v, want %v", out.Names, want)
		}
		for i := range want {
			if out.Names[i] != want[i] {
				t.Errorf("names[%d] = %q, want %q", i, out.Names[i], want[i])
			}
		}

		if got := out.X.At(0, 5); got != 3800 {
			t.Errorf("power_draw = %v, want 3800", got)
		}
		if got := out.X.At(0, 6); got != 625 {
			t.Errorf("temperature_sq = %v, want 625", got)
		}
		if got := out.X.At(0, 7); math.Abs(got-math.Log1p(200)) > 1e-12 {
			t.Errorf("log_cycle_count = %v, want %v", got, math.Log1p(200))
		}
		if got := out.X.At(0, 8); math.Abs(got-2.0/201) > 1e-12 {
			t.Errorf("fade_per_cycle = %v, want %v", got, 2.0/201)
		}
	})

	t.Run("no matching base columns is a no-op", func(t *testing.T) {
		m := &Matrix{X: mat.NewDense(2, 1, []float64{1, 2}), Names: []string{"humidity"}}
		out := EngineerFeatures(m)
		if out.NumCols() != 1 {
			t.Errorf("cols = %d, want 1", out.NumCols())
		}
	})

	t.Run("derived feature lookup matches matrix path", func(t *testing.T) {
		base := map[string]float64{
			"voltage": 380, "current": 10, "temperature": 25,
			"cycle_count": 200, "capacity_fade": 2.0,
		}
		tests := []struct {
			name string
			want float64
		}{
			{"power_draw", 3800},
			{"temperature_sq", 625},
			{"log_cycle_count", math.Log1p(200)},
			{"fade_per_cycle", 2.0 / 201},
		}
		for _, tt := range tests {
			got, ok := DerivedFeature(tt.name, base)
			if !ok {
				t.Fatalf("DerivedFeature(%q) not derivable", tt.name)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("DerivedFeature(%q) = %v, want %v", tt.name, got, tt.want)
			}
		}
		if _, ok := DerivedFeature("power_draw", map[string]float64{"voltage": 380}); ok {
			t.Errorf("power_draw should not derive without current")
		}
		if _, ok := DerivedFeature("humidity", base); ok {
			t.Errorf("unknown names should not derive")
		}
	})

	t.Run("zero cycle count stays finite", func(t *testing.T) {
		m := &Matrix{
			X:     mat.NewDense(1, 2, []float64{0, 1.5}),
			Names: []string{"cycle_count", "capacity_fade"},
		}
		out := EngineerFeatures(m)
		r, c := out.X.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := out.X.At(i, j)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Fatalf("non-finite derived value at (%d,%d)", i, j)
				}
			}
		}
	})
}
