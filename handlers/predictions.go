package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"battery-soh-api/middleware"
	"battery-soh-api/ml"
	"battery-soh-api/models"
	"battery-soh-api/services"

	"github.com/gin-gonic/gin"
	"gonum.org/v1/gonum/mat"
	"gorm.io/gorm"
)

type PredictionHandler struct {
	db           *gorm.DB
	cache        *services.CacheService
	forecastDays int
	forecastStep int
}

func NewPredictionHandler(db *gorm.DB, cache *services.CacheService, forecastDays, forecastStep int) *PredictionHandler {
	return &PredictionHandler{db: db, cache: cache, forecastDays: forecastDays, forecastStep: forecastStep}
}

type PredictRequest struct {
	ModelID  uint               `json:"model_id" binding:"required"`
	Features map[string]float64 `json:"features" binding:"required"`
}

// Predict runs one inference against a completed model's artifact.
func (h *PredictionHandler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model, art, fitted, ok := h.loadCompletedModel(c, req.ModelID)
	if !ok {
		return
	}

	row, missing := featureRow(art.FeatureNames, req.Features)
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":            "missing feature values",
			"missing_features": missing,
			"expected":         art.FeatureNames,
		})
		return
	}

	X := mat.NewDense(1, len(row), row)
	if art.Scaler != nil {
		scaled, err := art.Scaler.Transform(X)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "scaler mismatch in stored artifact"})
			return
		}
		X = scaled
	}
	pred, err := fitted.Predict(X)
	if err != nil || len(pred) == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed"})
		return
	}
	value := pred[0]
	if math.IsNaN(value) || math.IsInf(value, 0) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "model produced a non-finite prediction"})
		return
	}

	// A fixed +-5 point band clamped to the SOH range; the families here do
	// not expose a posterior to derive a real interval from.
	lower := math.Max(value-5, 0)
	upper := math.Min(value+5, 100)

	h.record(c, model, models.PredictionSingle, req, gin.H{"predicted_value": value}, &value)
	c.JSON(http.StatusOK, gin.H{
		"model_id":            model.ID,
		"target_column":       art.TargetColumn,
		"predicted_value":     value,
		"confidence_interval": gin.H{"lower": lower, "upper": upper},
	})
}

type ForecastRequest struct {
	ModelID      uint               `json:"model_id" binding:"required"`
	Features     map[string]float64 `json:"features" binding:"required"`
	CurrentValue float64            `json:"current_value" binding:"required"`
	HorizonDays  int                `json:"horizon_days"`
	StepDays     int                `json:"step_days"`
}

// Forecast projects the model forward and reports threshold crossings.
func (h *PredictionHandler) Forecast(c *gin.Context) {
	req, fc, model, ok := h.runForecast(c)
	if !ok {
		return
	}

	h.record(c, model, models.PredictionForecast, req, fc, &fc.CurrentValue)
	c.JSON(http.StatusOK, gin.H{
		"model_id": model.ID,
		"forecast": fc,
		"trend":    fc.Trend(),
	})
}

// FailureAnalysis derives failure probability and time-to-failure from a
// forecast of the model.
func (h *PredictionHandler) FailureAnalysis(c *gin.Context) {
	req, fc, model, ok := h.runForecast(c)
	if !ok {
		return
	}

	stepDays := req.StepDays
	if stepDays <= 0 {
		stepDays = h.forecastStep
	}
	fa := ml.AnalyzeFailure(fc, stepDays)

	h.record(c, model, models.PredictionFailure, req, fa, &fa.CurrentSOH)
	c.JSON(http.StatusOK, gin.H{
		"model_id":      model.ID,
		"analysis":      fa,
		"fallback_used": fc.FallbackUsed,
	})
}

// History lists the caller's stored prediction requests, newest first.
func (h *PredictionHandler) History(c *gin.Context) {
	userID := middleware.UserID(c)
	p := ParsePagination(c)

	query := h.db.Model(&models.Prediction{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("created_at < ?", *p.Before)
	}
	if kind := c.Query("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if modelID := c.Query("model_id"); modelID != "" {
		query = query.Where("model_id = ?", modelID)
	}

	var records []models.Prediction
	if err := query.Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	hasMore := len(records) > p.Limit
	if hasMore {
		records = records[:p.Limit]
	}
	var nextCursor string
	if hasMore && len(records) > 0 {
		nextCursor = records[len(records)-1].CreatedAt.Format(time.RFC3339Nano)
	}

	c.JSON(http.StatusOK, CursorResponse{Data: records, NextCursor: nextCursor, HasMore: hasMore})
}

func (h *PredictionHandler) runForecast(c *gin.Context) (*ForecastRequest, *ml.Forecast, *models.MLModel, bool) {
	var req ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, nil, nil, false
	}

	model, art, fitted, ok := h.loadCompletedModel(c, req.ModelID)
	if !ok {
		return nil, nil, nil, false
	}

	row, missing := featureRow(art.FeatureNames, req.Features)
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":            "missing feature values",
			"missing_features": missing,
			"expected":         art.FeatureNames,
		})
		return nil, nil, nil, false
	}

	horizonDays := req.HorizonDays
	if horizonDays <= 0 {
		horizonDays = h.forecastDays
	}
	stepDays := req.StepDays
	if stepDays <= 0 {
		stepDays = h.forecastStep
	}

	forecaster := &ml.Forecaster{
		Model:  fitted,
		Scaler: art.Scaler,
		Seed:   time.Now().UnixNano(),
	}
	fc, err := forecaster.Run(row, req.CurrentValue, horizonDays, stepDays, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "forecast failed"})
		return nil, nil, nil, false
	}
	return &req, fc, model, true
}

// loadCompletedModel enforces the status precondition: predictions are only
// served from models whose training completed.
func (h *PredictionHandler) loadCompletedModel(c *gin.Context, modelID uint) (*models.MLModel, *ml.Artifact, ml.Model, bool) {
	userID := middleware.UserID(c)
	var model models.MLModel
	if err := h.db.Where("id = ? AND user_id = ?", modelID, userID).First(&model).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
		return nil, nil, nil, false
	}
	if model.Status != models.ModelStatusCompleted {
		c.JSON(http.StatusPreconditionFailed, gin.H{
			"error":  fmt.Sprintf("model is %s, not completed", model.Status),
			"status": model.Status,
		})
		return nil, nil, nil, false
	}

	art, fitted, err := ml.LoadArtifact(model.ArtifactPath)
	if err != nil {
		log.Printf("prediction: artifact load failed for model %d: %v", model.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stored model artifact is unreadable"})
		return nil, nil, nil, false
	}
	return &model, art, fitted, true
}

// record persists the prediction exchange for later inspection. Failures are
// logged, never surfaced: history is a convenience, not part of the result.
func (h *PredictionHandler) record(c *gin.Context, model *models.MLModel, kind string, input, output interface{}, value *float64) {
	in, _ := json.Marshal(input)
	out, _ := json.Marshal(output)
	rec := models.Prediction{
		ModelID:        model.ID,
		UserID:         middleware.UserID(c),
		Kind:           kind,
		Input:          string(in),
		Output:         string(out),
		PredictedValue: value,
	}
	if err := h.db.Create(&rec).Error; err != nil {
		log.Printf("prediction: failed to record %s for model %d: %v", kind, model.ID, err)
	}
}

// featureRow orders the request's feature map to match the artifact's
// training-time column order. Engineered columns absent from the request are
// derived from the base measurements.
func featureRow(names []string, features map[string]float64) ([]float64, []string) {
	row := make([]float64, len(names))
	var missing []string
	for i, name := range names {
		if v, ok := features[name]; ok {
			row[i] = v
			continue
		}
		if v, ok := ml.DerivedFeature(name, features); ok {
			row[i] = v
			continue
		}
		missing = append(missing, name)
	}
	return row, missing
}
