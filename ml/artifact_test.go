package ml

import (
	"errors"
	"math"
	"path/filepath"
	"strconv"
	"testing"
)

// A reloaded artifact must predict exactly what the in-memory model did.
func TestArtifactRoundTrip(t *testing.T) {
	families := []struct {
		modelType string
		params    Params
	}{
		{ModelLinear, nil},
		{ModelPolynomial, Params{"degree": float64(2)}},
		{ModelSVM, nil},
		{ModelSGD, Params{"max_iter": float64(50)}},
		{ModelRandomForest, Params{"n_estimators": float64(5)}},
		{ModelPerceptron, Params{"max_iter": float64(50)}},
		{ModelGRU, Params{"sequence_length": float64(5), "units": float64(6), "dense_units": float64(3), "epochs": float64(2)}},
	}

	m, y := lineMatrix(30)
	for _, tt := range families {
		t.Run(tt.modelType, func(t *testing.T) {
			res, err := Train(tt.modelType, tt.params, m, y, 0.2)
			if err != nil {
				t.Fatalf("Train() error = %v", err)
			}

			path := filepath.Join(t.TempDir(), "model.json")
			if err := SaveArtifact(path, res, "state_of_health"); err != nil {
				t.Fatalf("SaveArtifact() error = %v", err)
			}

			art, loaded, err := LoadArtifact(path)
			if err != nil {
				t.Fatalf("LoadArtifact() error = %v", err)
			}
			if art.ModelType != tt.modelType {
				t.Errorf("ModelType = %q, want %q", art.ModelType, tt.modelType)
			}
			if art.TargetColumn != "state_of_health" {
				t.Errorf("TargetColumn = %q, want state_of_health", art.TargetColumn)
			}
			if len(art.FeatureNames) != 1 || art.FeatureNames[0] != "x" {
				t.Errorf("FeatureNames = %v, want [x]", art.FeatureNames)
			}

			X := m.X
			if art.Scaler != nil {
				X, err = art.Scaler.Transform(m.X)
				if err != nil {
					t.Fatalf("Transform() error = %v", err)
				}
			}
			want, err := res.Model.Predict(X)
			if err != nil {
				t.Fatalf("original Predict() error = %v", err)
			}
			got, err := loaded.Predict(X)
			if err != nil {
				t.Fatalf("reloaded Predict() error = %v", err)
			}
			for i := range want {
				if math.Abs(got[i]-want[i]) > 1e-9 {
					t.Fatalf("prediction %d = %v, want %v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestArtifactCarriesScaler(t *testing.T) {
	m, y := lineMatrix(30)
	res, err := Train(ModelSVM, nil, m, y, 0.2)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := SaveArtifact(path, res, "soh"); err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}
	art, _, err := LoadArtifact(path)
	if err != nil {
		t.Fatalf("LoadArtifact() error = %v", err)
	}
	if art.Scaler == nil {
		t.Fatalf("Scaler = nil, want the fitted robust scaler")
	}
	if art.Scaler.Kind != ScaleRobust {
		t.Errorf("Scaler.Kind = %q, want %q", art.Scaler.Kind, ScaleRobust)
	}
	if !art.Capabilities.NeedsExternalScaling {
		t.Errorf("Capabilities = %+v, want NeedsExternalScaling", art.Capabilities)
	}
}

func TestLoadArtifactMissingFile(t *testing.T) {
	_, _, err := LoadArtifact(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatalf("expected error for a missing artifact")
	}
}

func TestDecodeModelUnknownType(t *testing.T) {
	_, err := decodeModel("quantum", []byte(`{}`))
	var unsup *UnsupportedModelError
	if !errors.As(err, &unsup) {
		t.Fatalf("error = %v, want UnsupportedModelError", err)
	}
}

func TestPrepareTrainingData(t *testing.T) {
	cols := []string{"state_of_health", "voltage", "current", "cycle_count", "notes"}
	var rows []map[string]string
	for i := 0; i < 25; i++ {
		rows = append(rows, map[string]string{
			"state_of_health": formatFloat(100 - float64(i)*0.5),
			"voltage":         formatFloat(380 - float64(i)*0.1),
			"current":         formatFloat(10 + float64(i)*0.2),
			"cycle_count":     formatFloat(float64(i * 10)),
			"notes":           "routine",
		})
	}
	ds := makeDataset(cols, rows...)

	m, y, stats, err := PrepareTrainingData(ds, "state_of_health", nil, "iqr")
	if err != nil {
		t.Fatalf("PrepareTrainingData() error = %v", err)
	}
	if m.NumRows() != len(y) {
		t.Fatalf("rows = %d, targets = %d, must align", m.NumRows(), len(y))
	}
	if stats.RowsIn != 25 {
		t.Errorf("RowsIn = %d, want 25", stats.RowsIn)
	}
	// Base features plus engineered power_draw and log_cycle_count.
	wantNames := map[string]bool{
		"voltage": true, "current": true, "cycle_count": true,
		"power_draw": true, "log_cycle_count": true,
	}
	if len(m.Names) != len(wantNames) {
		t.Fatalf("features = %v, want %v", m.Names, wantNames)
	}
	for _, name := range m.Names {
		if !wantNames[name] {
			t.Errorf("unexpected feature %q", name)
		}
	}
	for i := 0; i < m.NumRows(); i++ {
		for j := 0; j < m.NumCols(); j++ {
			if v := m.X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite cell at (%d,%d)", i, j)
			}
		}
	}
}

func TestPrepareTrainingDataAllColumnsSparse(t *testing.T) {
	// A single feature column with one numeric cell survives extraction but
	// is dropped by imputation; the pipeline must refuse the dataset instead
	// of panicking on an empty matrix.
	cols := []string{"state_of_health", "voltage"}
	var rows []map[string]string
	for i := 0; i < 10; i++ {
		row := map[string]string{
			"state_of_health": formatFloat(100 - float64(i)*0.5),
			"voltage":         "",
		}
		if i == 0 {
			row["voltage"] = "380"
		}
		rows = append(rows, row)
	}
	ds := makeDataset(cols, rows...)

	_, _, _, err := PrepareTrainingData(ds, "state_of_health", nil, "iqr")
	var noFeat *NoFeaturesError
	if !errors.As(err, &noFeat) {
		t.Fatalf("error = %v, want NoFeaturesError", err)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
