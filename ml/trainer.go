package ml

import (
	"errors"
	"log"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// DefaultTestSize is the held-out fraction when the caller does not supply one.
const DefaultTestSize = 0.2

// TrainingResult carries everything the caller needs to persist a fitted
// model and report on it.
type TrainingResult struct {
	ModelType    string       `json:"model_type"`
	FeatureNames []string     `json:"feature_names"`
	TrainScore   float64      `json:"train_score"`
	TestScore    float64      `json:"test_score"`
	TrainMetrics Metrics      `json:"train_metrics"`
	TestMetrics  Metrics      `json:"test_metrics"`
	TrainRows    int          `json:"train_rows"`
	TestRows     int          `json:"test_rows"`
	TestActual   []float64    `json:"test_actual"`
	TestPred     []float64    `json:"test_predicted"`
	Model        Model        `json:"-"`
	Capabilities Capabilities `json:"capabilities"`
	Scaler       *Scaler      `json:"-"`
}

// testRowCount clamps the requested held-out fraction so there is always at
// least one test row and at least three training rows left over.
func testRowCount(n int, testSize float64) int {
	if testSize <= 0 || testSize >= 1 {
		testSize = DefaultTestSize
	}
	k := int(math.Round(testSize * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n-3 {
		k = n - 3
	}
	return k
}

// Train fits a model of the given family on the prepared feature matrix.
// Sequence models get a temporal tail split; everything else a seeded
// shuffle. Scaling is fitted on the training split only.
func Train(modelType string, params Params, m *Matrix, y []float64, testSize float64) (*TrainingResult, error) {
	n := m.NumRows()
	if n != len(y) {
		return nil, &TrainingFailure{Err: errors.New("feature matrix and target length mismatch")}
	}
	if n < MinTrainingRows {
		return nil, &InsufficientDataError{Rows: n, Min: MinTrainingRows}
	}

	model, caps, err := CreateModel(modelType, params)
	if err != nil {
		return nil, err
	}

	nTest := testRowCount(n, testSize)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if !caps.RequiresSequences {
		rng := rand.New(rand.NewSource(42))
		rng.Shuffle(n, func(a, b int) { order[a], order[b] = order[b], order[a] })
	}
	trainIdx, testIdx := order[:n-nTest], order[n-nTest:]

	XTrain := selectRows(m.X, trainIdx)
	XTest := selectRows(m.X, testIdx)
	yTrain := selectVals(y, trainIdx)
	yTest := selectVals(y, testIdx)

	var scaler *Scaler
	fitTrain, fitTest := XTrain, XTest
	if caps.NeedsExternalScaling {
		scaler = NewScaler(ScaleRobust)
		fitTrain, err = scaler.FitTransform(XTrain)
		if err != nil {
			return nil, &TrainingFailure{Err: err}
		}
		fitTest, err = scaler.Transform(XTest)
		if err != nil {
			return nil, &TrainingFailure{Err: err}
		}
	}

	if err := model.Fit(fitTrain, yTrain); err != nil {
		var seqErr *InsufficientSequenceDataError
		if errors.As(err, &seqErr) {
			return nil, seqErr
		}
		return nil, &TrainingFailure{Err: err}
	}

	trainPred, err := model.Predict(fitTrain)
	if err != nil {
		return nil, &TrainingFailure{Err: err}
	}
	testPred, err := model.Predict(fitTest)
	if err != nil {
		return nil, &TrainingFailure{Err: err}
	}

	if patched := patchNaNPredictions(trainPred, yTrain); patched > 0 {
		log.Printf("train %s: %d non-finite train predictions replaced with split mean", modelType, patched)
	}
	if patched := patchNaNPredictions(testPred, yTest); patched > 0 {
		log.Printf("train %s: %d non-finite test predictions replaced with split mean", modelType, patched)
	}

	trainMetrics := computeMetrics(yTrain, trainPred)
	testMetrics := computeMetrics(yTest, testPred)

	return &TrainingResult{
		ModelType:    modelType,
		FeatureNames: append([]string(nil), m.Names...),
		TrainScore:   trainMetrics.R2,
		TestScore:    testMetrics.R2,
		TrainMetrics: trainMetrics,
		TestMetrics:  testMetrics,
		TrainRows:    len(trainIdx),
		TestRows:     len(testIdx),
		TestActual:   yTest,
		TestPred:     testPred,
		Model:        model,
		Capabilities: caps,
		Scaler:       scaler,
	}, nil
}

func selectRows(X *mat.Dense, idx []int) *mat.Dense {
	_, cols := X.Dims()
	out := mat.NewDense(len(idx), cols, nil)
	for r, i := range idx {
		for j := 0; j < cols; j++ {
			out.Set(r, j, X.At(i, j))
		}
	}
	return out
}

func selectVals(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for r, i := range idx {
		out[r] = y[i]
	}
	return out
}
