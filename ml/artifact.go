package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Artifact is the on-disk form of a trained model: the fitted estimator
// state, the shared scaler when one was used, and enough metadata to
// reconstruct the exact prediction path. Immutable once written.
type Artifact struct {
	ModelType    string          `json:"model_type"`
	FeatureNames []string        `json:"feature_names"`
	TargetColumn string          `json:"target_column"`
	Capabilities Capabilities    `json:"capabilities"`
	Scaler       *Scaler         `json:"scaler,omitempty"`
	Model        json.RawMessage `json:"model"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SaveArtifact serializes a training result to path. The directory is
// created if missing; the file is written atomically via rename.
func SaveArtifact(path string, res *TrainingResult, targetColumn string) error {
	raw, err := json.Marshal(res.Model)
	if err != nil {
		return fmt.Errorf("encode model state: %w", err)
	}
	art := Artifact{
		ModelType:    res.ModelType,
		FeatureNames: res.FeatureNames,
		TargetColumn: targetColumn,
		Capabilities: res.Capabilities,
		Scaler:       res.Scaler,
		Model:        raw,
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(art)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadArtifact reads an artifact back and reconstructs the concrete model
// for its family.
func LoadArtifact(path string) (*Artifact, Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read artifact: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, nil, fmt.Errorf("decode artifact: %w", err)
	}
	model, err := decodeModel(art.ModelType, art.Model)
	if err != nil {
		return nil, nil, err
	}
	return &art, model, nil
}

func decodeModel(modelType string, raw json.RawMessage) (Model, error) {
	var model Model
	switch modelType {
	case ModelLinear:
		model = &LinearRegression{}
	case ModelPolynomial:
		model = &PolynomialRegression{}
	case ModelSVM:
		model = &KernelSVR{}
	case ModelSGD:
		model = &SGDRegressor{}
	case ModelNeuralNetwork:
		model = &MLPRegressor{}
	case ModelRandomForest:
		model = &RandomForest{}
	case ModelPerceptron:
		model = &PerceptronRegressor{}
	case ModelRNN, ModelGRU:
		model = &RecurrentRegressor{}
	default:
		return nil, &UnsupportedModelError{ModelType: modelType}
	}
	if err := json.Unmarshal(raw, model); err != nil {
		return nil, fmt.Errorf("decode %s model state: %w", modelType, err)
	}
	return model, nil
}
