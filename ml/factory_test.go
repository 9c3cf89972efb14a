package ml

import (
	"errors"
	"testing"
)

func TestCreateModelDefaults(t *testing.T) {
	for _, modelType := range ModelTypes {
		t.Run(modelType, func(t *testing.T) {
			model, _, err := CreateModel(modelType, nil)
			if err != nil {
				t.Fatalf("CreateModel(%q) error = %v", modelType, err)
			}
			if model == nil {
				t.Fatalf("CreateModel(%q) returned nil model", modelType)
			}
		})
	}
}

func TestCreateModelUnsupported(t *testing.T) {
	_, _, err := CreateModel("quantum", nil)
	var unsup *UnsupportedModelError
	if !errors.As(err, &unsup) {
		t.Fatalf("error = %v, want UnsupportedModelError", err)
	}
	if unsup.ModelType != "quantum" {
		t.Errorf("ModelType = %q, want quantum", unsup.ModelType)
	}
}

func TestCreateModelParamOverrides(t *testing.T) {
	t.Run("polynomial degree", func(t *testing.T) {
		model, _, err := CreateModel(ModelPolynomial, Params{"degree": float64(3)})
		if err != nil {
			t.Fatalf("CreateModel() error = %v", err)
		}
		if poly := model.(*PolynomialRegression); poly.Degree != 3 {
			t.Errorf("Degree = %d, want 3", poly.Degree)
		}
	})

	t.Run("degree floor", func(t *testing.T) {
		model, _, _ := CreateModel(ModelPolynomial, Params{"degree": float64(0)})
		if poly := model.(*PolynomialRegression); poly.Degree != 1 {
			t.Errorf("Degree = %d, want clamped to 1", poly.Degree)
		}
	})

	t.Run("svm gamma default means scale", func(t *testing.T) {
		model, _, _ := CreateModel(ModelSVM, nil)
		if svr := model.(*KernelSVR); svr.Gamma != 0 {
			t.Errorf("Gamma = %v, want 0 (resolved at fit time)", svr.Gamma)
		}
	})

	t.Run("sequence length clamped", func(t *testing.T) {
		tests := []struct {
			in   float64
			want int
		}{
			{50, 20},
			{1, 3},
			{10, 10},
		}
		for _, tt := range tests {
			model, _, _ := CreateModel(ModelRNN, Params{"sequence_length": tt.in})
			if rnn := model.(*RecurrentRegressor); rnn.SequenceLength != tt.want {
				t.Errorf("SequenceLength(%v) = %d, want %d", tt.in, rnn.SequenceLength, tt.want)
			}
		}
	})

	t.Run("dropout clamped", func(t *testing.T) {
		model, _, _ := CreateModel(ModelGRU, Params{"dropout_rate": 0.9})
		if rnn := model.(*RecurrentRegressor); rnn.DropoutRate != 0.5 {
			t.Errorf("DropoutRate = %v, want clamped to 0.5", rnn.DropoutRate)
		}
	})
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		modelType string
		want      Capabilities
	}{
		{ModelLinear, Capabilities{}},
		{ModelRandomForest, Capabilities{}},
		{ModelSVM, Capabilities{NeedsExternalScaling: true}},
		{ModelSGD, Capabilities{NeedsExternalScaling: true}},
		{ModelNeuralNetwork, Capabilities{NeedsExternalScaling: true}},
		{ModelPolynomial, Capabilities{HasInternalScaling: true}},
		{ModelPerceptron, Capabilities{HasInternalScaling: true}},
		{ModelRNN, Capabilities{HasInternalScaling: true, RequiresSequences: true}},
		{ModelGRU, Capabilities{HasInternalScaling: true, RequiresSequences: true}},
	}
	for _, tt := range tests {
		t.Run(tt.modelType, func(t *testing.T) {
			caps, err := CapabilitiesFor(tt.modelType)
			if err != nil {
				t.Fatalf("CapabilitiesFor(%q) error = %v", tt.modelType, err)
			}
			if caps != tt.want {
				t.Errorf("caps = %+v, want %+v", caps, tt.want)
			}
		})
	}
}

func TestCapabilitiesMutuallyConsistent(t *testing.T) {
	for _, modelType := range ModelTypes {
		caps, err := CapabilitiesFor(modelType)
		if err != nil {
			t.Fatalf("CapabilitiesFor(%q) error = %v", modelType, err)
		}
		if caps.NeedsExternalScaling && caps.HasInternalScaling {
			t.Errorf("%s claims both external and internal scaling", modelType)
		}
	}
}
