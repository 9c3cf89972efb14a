package ml

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

// decayConst is the analytic fallback's time constant in days. It reproduces
// a 0.2 fractional loss over ten years of elapsed time.
const decayConst = 18250.0

// forecastFloor terminates projection early: below 20% SOH a pack is
// end-of-life and further extrapolation is noise.
const forecastFloor = 20.0

// DefaultThresholds are the SOH crossing levels reported by every forecast.
var DefaultThresholds = []float64{70, 50, 20}

// ThresholdCrossing records the first step at which the projected value
// reached a threshold.
type ThresholdCrossing struct {
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Forecast is an ordered projection of future SOH values with the first
// crossing of each configured threshold.
type Forecast struct {
	Timestamps   []time.Time                   `json:"timestamps"`
	Values       []float64                     `json:"predictions"`
	CurrentValue float64                       `json:"current_value"`
	Crossings    map[string]*ThresholdCrossing `json:"threshold_crossings"`
	FallbackUsed bool                          `json:"fallback_used"`
	TotalSteps   int                           `json:"total_steps"`
	TotalDays    int                           `json:"total_days"`
}

// trendBand is the total change, in SOH points, below which a forecast is
// labeled stable.
const trendBand = 2.0

// Trend labels the forecast's overall direction: the projected end value
// against the current value, with a dead band for noise.
func (fc *Forecast) Trend() string {
	if len(fc.Values) == 0 {
		return "stable"
	}
	delta := fc.Values[len(fc.Values)-1] - fc.CurrentValue
	switch {
	case delta < -trendBand:
		return "declining"
	case delta > trendBand:
		return "improving"
	default:
		return "stable"
	}
}

// Forecaster projects a trained model forward in time from the most recent
// feature row. When the model cannot produce a value the forecaster falls
// back to an exponential decay curve and flags that in the output.
type Forecaster struct {
	Model      Model
	Scaler     *Scaler
	Thresholds []float64
	Seed       int64
	// DriftStd is the relative standard deviation of per-step Gaussian
	// feature perturbation, simulating measurement drift between readings.
	DriftStd float64
}

// Run projects from lastRow out to horizonDays in stepDays increments.
// The value sequence is clamped to [0, 100] and stops early once it hits
// the end-of-life floor.
func (f *Forecaster) Run(lastRow []float64, currentValue float64, horizonDays, stepDays int, start time.Time) (*Forecast, error) {
	if stepDays <= 0 {
		stepDays = 30
	}
	if horizonDays <= 0 {
		horizonDays = 365
	}
	thresholds := f.Thresholds
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	driftStd := f.DriftStd
	if driftStd <= 0 {
		driftStd = 0.01
	}

	steps := horizonDays / stepDays
	if steps < 1 {
		steps = 1
	}

	rng := rand.New(rand.NewSource(f.Seed))
	features := append([]float64(nil), lastRow...)

	out := &Forecast{
		CurrentValue: currentValue,
		Crossings:    make(map[string]*ThresholdCrossing, len(thresholds)),
	}
	for _, t := range thresholds {
		out.Crossings[thresholdKey(t)] = nil
	}

	fallbackLogged := false
	for step := 1; step <= steps; step++ {
		elapsed := float64(step * stepDays)
		ts := start.AddDate(0, 0, step*stepDays)

		value, err := f.stepPredict(features)
		if err != nil {
			value = currentValue * math.Exp(-elapsed/decayConst)
			out.FallbackUsed = true
			if !fallbackLogged {
				log.Printf("forecast: model prediction unavailable, using decay fallback: %v", err)
				fallbackLogged = true
			}
		}
		value = clampFloat(value, 0, 100)

		out.Timestamps = append(out.Timestamps, ts)
		out.Values = append(out.Values, value)

		if value <= forecastFloor {
			break
		}
		perturbFeatures(features, driftStd, rng)
	}

	out.TotalSteps = len(out.Values)
	out.TotalDays = out.TotalSteps * stepDays

	for _, t := range thresholds {
		for i, v := range out.Values {
			if v <= t {
				out.Crossings[thresholdKey(t)] = &ThresholdCrossing{
					Step:      i,
					Timestamp: out.Timestamps[i],
					Value:     v,
				}
				break
			}
		}
	}
	return out, nil
}

func (f *Forecaster) stepPredict(features []float64) (float64, error) {
	if f.Model == nil {
		return 0, fmt.Errorf("no model loaded")
	}
	X := mat.NewDense(1, len(features), append([]float64(nil), features...))
	if f.Scaler != nil {
		scaled, err := f.Scaler.Transform(X)
		if err != nil {
			return 0, err
		}
		X = scaled
	}
	pred, err := f.Model.Predict(X)
	if err != nil {
		return 0, err
	}
	if len(pred) == 0 || math.IsNaN(pred[0]) || math.IsInf(pred[0], 0) {
		return 0, fmt.Errorf("non-finite prediction")
	}
	return pred[0], nil
}

// perturbFeatures applies small relative Gaussian noise in place.
func perturbFeatures(features []float64, std float64, rng *rand.Rand) {
	for i, v := range features {
		scale := math.Abs(v)
		if scale == 0 {
			scale = 1
		}
		features[i] = v + rng.NormFloat64()*std*scale
	}
}

func thresholdKey(t float64) string {
	return fmt.Sprintf("%g%%", t)
}

// FailureAnalysis summarizes time-to-failure derived from a forecast. A pack
// is considered failed at the end-of-life floor.
type FailureAnalysis struct {
	CurrentSOH         float64    `json:"current_soh"`
	FailureProbability float64    `json:"failure_probability"`
	DaysToFailure      *int       `json:"days_to_failure"`
	FailureDate        *time.Time `json:"failure_date"`
	DegradationPerYear float64    `json:"degradation_rate_per_year"`
}

// AnalyzeFailure derives failure statistics from a forecast. The probability
// scales with proximity to the floor rather than a model posterior.
func AnalyzeFailure(fc *Forecast, stepDays int) *FailureAnalysis {
	fa := &FailureAnalysis{CurrentSOH: fc.CurrentValue}

	if fc.CurrentValue <= forecastFloor {
		fa.FailureProbability = 1
	} else {
		fa.FailureProbability = clampFloat((100-fc.CurrentValue)/(100-forecastFloor), 0, 1)
	}

	if cross := fc.Crossings[thresholdKey(forecastFloor)]; cross != nil {
		days := (cross.Step + 1) * stepDays
		fa.DaysToFailure = &days
		ts := cross.Timestamp
		fa.FailureDate = &ts
	}

	if n := len(fc.Values); n > 1 && fc.TotalDays > 0 {
		totalDrop := fc.CurrentValue - fc.Values[n-1]
		fa.DegradationPerYear = totalDrop / float64(fc.TotalDays) * 365
	}
	return fa
}
