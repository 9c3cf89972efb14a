package ml

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestScalerKinds(t *testing.T) {
	train := mat.NewDense(4, 1, []float64{2, 4, 6, 8})

	t.Run("standard", func(t *testing.T) {
		s := NewScaler(ScaleStandard)
		out, err := s.FitTransform(train)
		if err != nil {
			t.Fatalf("FitTransform() error = %v", err)
		}
		mean := 0.0
		for i := 0; i < 4; i++ {
			mean += out.At(i, 0)
		}
		if math.Abs(mean/4) > 1e-12 {
			t.Errorf("scaled mean = %v, want 0", mean/4)
		}
	})

	t.Run("minmax maps to unit range", func(t *testing.T) {
		s := NewScaler(ScaleMinMax)
		out, err := s.FitTransform(train)
		if err != nil {
			t.Fatalf("FitTransform() error = %v", err)
		}
		if out.At(0, 0) != 0 || out.At(3, 0) != 1 {
			t.Errorf("range = [%v, %v], want [0, 1]", out.At(0, 0), out.At(3, 0))
		}
	})

	t.Run("robust centers on median", func(t *testing.T) {
		s := NewScaler(ScaleRobust)
		if err := s.Fit(train); err != nil {
			t.Fatalf("Fit() error = %v", err)
		}
		if s.Center[0] < 4 || s.Center[0] > 6 {
			t.Errorf("center = %v, want median in [4, 6]", s.Center[0])
		}
	})

	t.Run("constant column gets unit scale", func(t *testing.T) {
		s := NewScaler(ScaleStandard)
		flat := mat.NewDense(3, 1, []float64{7, 7, 7})
		out, err := s.FitTransform(flat)
		if err != nil {
			t.Fatalf("FitTransform() error = %v", err)
		}
		for i := 0; i < 3; i++ {
			if v := out.At(i, 0); v != 0 {
				t.Errorf("scaled constant = %v, want 0", v)
			}
		}
	})
}

// Test statistics must come from the training split only. Transforming
// wildly different test data must not change the fitted parameters.
func TestScalerNoLeakage(t *testing.T) {
	train := mat.NewDense(3, 1, []float64{1, 2, 3})
	test := mat.NewDense(2, 1, []float64{1000, -1000})

	s := NewScaler(ScaleStandard)
	if _, err := s.FitTransform(train); err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}
	center, scale := s.Center[0], s.Scale[0]

	if _, err := s.Transform(test); err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if s.Center[0] != center || s.Scale[0] != scale {
		t.Errorf("parameters changed after Transform: center %v->%v scale %v->%v",
			center, s.Center[0], scale, s.Scale[0])
	}
}

func TestScalerErrors(t *testing.T) {
	t.Run("transform before fit", func(t *testing.T) {
		s := NewScaler(ScaleStandard)
		if _, err := s.Transform(mat.NewDense(1, 1, []float64{1})); err == nil {
			t.Errorf("expected error for unfitted scaler")
		}
	})

	t.Run("column count mismatch", func(t *testing.T) {
		s := NewScaler(ScaleStandard)
		if err := s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})); err != nil {
			t.Fatalf("Fit() error = %v", err)
		}
		if _, err := s.Transform(mat.NewDense(1, 3, []float64{1, 2, 3})); err == nil {
			t.Errorf("expected error for mismatched columns")
		}
	})
}
