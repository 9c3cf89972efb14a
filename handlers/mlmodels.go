package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"battery-soh-api/middleware"
	"battery-soh-api/ml"
	"battery-soh-api/models"
	"battery-soh-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ModelHandler struct {
	db       *gorm.DB
	cache    *services.CacheService
	training *services.TrainingService
}

func NewModelHandler(db *gorm.DB, cache *services.CacheService, training *services.TrainingService) *ModelHandler {
	return &ModelHandler{db: db, cache: cache, training: training}
}

type CreateModelRequest struct {
	Name           string                 `json:"name" binding:"required"`
	ModelType      string                 `json:"model_type" binding:"required"`
	TargetColumn   string                 `json:"target_column" binding:"required"`
	FeatureColumns []string               `json:"feature_columns"`
	Params         map[string]interface{} `json:"params"`
	VehicleID      *uint                  `json:"vehicle_id"`
	FileID         *uint                  `json:"file_id"`
}

func (h *ModelHandler) Create(c *gin.Context) {
	userID := middleware.UserID(c)

	var req CreateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := ml.CapabilitiesFor(req.ModelType); err != nil {
		status, payload := mlErrorResponse(err)
		c.JSON(status, payload)
		return
	}
	if req.VehicleID == nil && req.FileID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either vehicle_id or file_id is required"})
		return
	}
	if !h.ownsDataSource(c, userID, req.VehicleID, req.FileID) {
		return
	}

	featureColumns, _ := json.Marshal(req.FeatureColumns)
	params, _ := json.Marshal(req.Params)

	model := models.MLModel{
		UserID:         userID,
		VehicleID:      req.VehicleID,
		FileID:         req.FileID,
		Name:           req.Name,
		ModelType:      req.ModelType,
		TargetColumn:   req.TargetColumn,
		FeatureColumns: string(featureColumns),
		Params:         string(params),
		Status:         models.ModelStatusPending,
	}
	if err := h.db.Create(&model).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create model"})
		return
	}
	go h.cache.Delete(context.Background(), h.listKey(userID))

	c.JSON(http.StatusCreated, model)
}

func (h *ModelHandler) List(c *gin.Context) {
	userID := middleware.UserID(c)
	p := ParsePagination(c)

	// Only the first default-sized page is cached; it is what the UI polls,
	// and a single key keeps invalidation exact.
	cacheable := p.Before == nil && p.Limit == DefaultLimit
	if cacheable {
		var cached CursorResponse
		if err := h.cache.Get(c.Request.Context(), h.listKey(userID), &cached); err == nil && cached.Data != nil {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	query := h.db.Model(&models.MLModel{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("created_at < ?", *p.Before)
	}

	var records []models.MLModel
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

	resp := CursorResponse{Data: records, NextCursor: nextCursor, HasMore: hasMore}
	if cacheable {
		go h.cache.Set(context.Background(), h.listKey(userID), resp, 30*time.Second)
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ModelHandler) Get(c *gin.Context) {
	model, ok := h.ownedModel(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, model)
}

func (h *ModelHandler) Delete(c *gin.Context) {
	model, ok := h.ownedModel(c)
	if !ok {
		return
	}
	if model.Status == models.ModelStatusTraining {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot delete a model while it is training"})
		return
	}
	if err := h.db.Delete(&models.MLModel{}, model.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete model"})
		return
	}
	// The artifact belongs to the record and dies with it.
	if model.ArtifactPath != "" {
		os.Remove(model.ArtifactPath)
	}
	go h.cache.Delete(context.Background(), h.listKey(middleware.UserID(c)))

	c.JSON(http.StatusOK, gin.H{"message": "model deleted"})
}

type TrainRequest struct {
	TestSize float64 `json:"test_size"`
}

// Train queues an asynchronous training run. Returns 202 with a task id, or
// 409 when a run for this model is already in flight.
func (h *ModelHandler) Train(c *gin.Context) {
	model, ok := h.ownedModel(c)
	if !ok {
		return
	}

	var req TrainRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	taskID, err := h.training.Submit(c.Request.Context(), model.ID, req.TestSize)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTrainingInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrModelNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrQueueFull):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue training"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id":  taskID,
		"model_id": model.ID,
		"status":   "queued",
	})
}

// TaskStatus reports the state of a queued or running training task.
func (h *ModelHandler) TaskStatus(c *gin.Context) {
	status, err := h.training.TaskStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read task status"})
		return
	}
	if status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// ModelTypes lists the supported families with their capability tags, for
// UI selection.
func (h *ModelHandler) ModelTypes(c *gin.Context) {
	types := make([]gin.H, 0, len(ml.ModelTypes))
	for _, mt := range ml.ModelTypes {
		caps, err := ml.CapabilitiesFor(mt)
		if err != nil {
			continue
		}
		types = append(types, gin.H{"model_type": mt, "capabilities": caps})
	}
	c.JSON(http.StatusOK, gin.H{"model_types": types})
}

func (h *ModelHandler) ownedModel(c *gin.Context) (*models.MLModel, bool) {
	userID := middleware.UserID(c)
	var model models.MLModel
	if err := h.db.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&model).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
		return nil, false
	}
	return &model, true
}

func (h *ModelHandler) ownsDataSource(c *gin.Context, userID uint, vehicleID, fileID *uint) bool {
	if vehicleID != nil {
		var count int64
		h.db.Model(&models.Vehicle{}).Where("id = ? AND user_id = ?", *vehicleID, userID).Count(&count)
		if count == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
			return false
		}
	}
	if fileID != nil {
		var count int64
		h.db.Model(&models.UploadedFile{}).Where("id = ? AND user_id = ?", *fileID, userID).Count(&count)
		if count == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return false
		}
	}
	return true
}

func (h *ModelHandler) listKey(userID uint) string {
	return fmt.Sprintf("models:user:%d", userID)
}
