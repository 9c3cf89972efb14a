package ml

import (
	"gonum.org/v1/gonum/mat"
)

// Supported model families.
const (
	ModelLinear        = "linear"
	ModelPolynomial    = "polynomial"
	ModelSVM           = "svm"
	ModelSGD           = "sgd"
	ModelNeuralNetwork = "neural_network"
	ModelRandomForest  = "random_forest"
	ModelPerceptron    = "perceptron"
	ModelRNN           = "rnn"
	ModelGRU           = "gru"
)

// ModelTypes lists every supported family, in presentation order.
var ModelTypes = []string{
	ModelLinear, ModelPolynomial, ModelSVM, ModelSGD, ModelNeuralNetwork,
	ModelRandomForest, ModelPerceptron, ModelRNN, ModelGRU,
}

// Model is the uniform fit/predict surface every family implements.
type Model interface {
	Fit(X *mat.Dense, y []float64) error
	Predict(X *mat.Dense) ([]float64, error)
}

// Capabilities tags how the trainer must treat a model family. Decided once
// at creation time so the trainer never inspects concrete types.
type Capabilities struct {
	NeedsExternalScaling bool `json:"needs_external_scaling"`
	HasInternalScaling   bool `json:"has_internal_scaling"`
	RequiresSequences    bool `json:"requires_sequences"`
}

// Params is the caller-supplied hyperparameter bag. Values arrive as JSON
// scalars, so numbers are float64.
type Params map[string]interface{}

func (p Params) getFloat(key string, fallback float64) float64 {
	if v, ok := p[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}

func (p Params) getInt(key string, fallback int) int {
	if v, ok := p[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return fallback
}

func (p Params) getString(key, fallback string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// CreateModel constructs an untrained model for the requested family,
// merging per-family defaults under the caller's parameters (caller wins).
func CreateModel(modelType string, params Params) (Model, Capabilities, error) {
	if params == nil {
		params = Params{}
	}

	switch modelType {
	case ModelLinear:
		return &LinearRegression{FitIntercept: true}, Capabilities{}, nil

	case ModelPolynomial:
		degree := params.getInt("degree", 2)
		if degree < 1 {
			degree = 1
		}
		return &PolynomialRegression{
			Degree: degree,
			Scaler: NewScaler(ScaleStandard),
			Linear: &LinearRegression{FitIntercept: true},
		}, Capabilities{HasInternalScaling: true}, nil

	case ModelSVM:
		return &KernelSVR{
			Kernel: params.getString("kernel", "rbf"),
			C:      params.getFloat("C", 1.0),
			Gamma:  params.getFloat("gamma", 0), // 0 means "scale"
		}, Capabilities{NeedsExternalScaling: true}, nil

	case ModelSGD:
		return &SGDRegressor{
			Eta0:    params.getFloat("eta0", 0.01),
			Alpha:   params.getFloat("alpha", 0.0001),
			MaxIter: params.getInt("max_iter", 1000),
			Seed:    int64(params.getInt("random_state", 42)),
		}, Capabilities{NeedsExternalScaling: true}, nil

	case ModelNeuralNetwork:
		return &MLPRegressor{
			HiddenSizes:  []int{params.getInt("hidden_units_1", 100), params.getInt("hidden_units_2", 50)},
			LearningRate: params.getFloat("learning_rate", 0.001),
			MaxIter:      params.getInt("max_iter", 500),
			Seed:         int64(params.getInt("random_state", 42)),
		}, Capabilities{NeedsExternalScaling: true}, nil

	case ModelRandomForest:
		return &RandomForest{
			NEstimators:     params.getInt("n_estimators", 100),
			MaxDepth:        params.getInt("max_depth", 10),
			MinSamplesSplit: params.getInt("min_samples_split", 2),
			Seed:            int64(params.getInt("random_state", 42)),
		}, Capabilities{}, nil

	case ModelPerceptron:
		// Perceptron is classification-oriented; the wrapper scales both
		// inputs and outputs so it can regress.
		return &PerceptronRegressor{
			LearningRate: params.getFloat("learning_rate", 0.01),
			MaxIter:      params.getInt("max_iter", 1000),
			Seed:         int64(params.getInt("random_state", 42)),
		}, Capabilities{HasInternalScaling: true}, nil

	case ModelRNN, ModelGRU:
		cell := CellLSTM
		if modelType == ModelGRU {
			cell = CellGRU
		}
		return &RecurrentRegressor{
			Cell:           cell,
			SequenceLength: clampInt(params.getInt("sequence_length", 10), 3, 20),
			Units:          params.getInt("units", 50),
			DenseUnits:     params.getInt("dense_units", 25),
			DropoutRate:    clampFloat(params.getFloat("dropout_rate", 0.2), 0, 0.5),
			LearningRate:   params.getFloat("learning_rate", 0.001),
			Epochs:         params.getInt("epochs", 100),
			BatchSize:      params.getInt("batch_size", 32),
			Seed:           int64(params.getInt("random_state", 42)),
		}, Capabilities{HasInternalScaling: true, RequiresSequences: true}, nil
	}

	return nil, Capabilities{}, &UnsupportedModelError{ModelType: modelType}
}

// CapabilitiesFor returns the capability tags for a model type without
// constructing the model.
func CapabilitiesFor(modelType string) (Capabilities, error) {
	_, caps, err := CreateModel(modelType, nil)
	return caps, err
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
