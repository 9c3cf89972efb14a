package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"battery-soh-api/config"
	"battery-soh-api/middleware"
	"battery-soh-api/ml"
	"battery-soh-api/models"
	"battery-soh-api/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FileHandler struct {
	db    *gorm.DB
	cache *services.CacheService
	cfg   config.UploadConfig
}

func NewFileHandler(db *gorm.DB, cache *services.CacheService, cfg config.UploadConfig) *FileHandler {
	return &FileHandler{db: db, cache: cache, cfg: cfg}
}

// Upload stores a CSV file on disk and records its shape. The file is parsed
// once at upload time so bad files are rejected immediately.
func (h *FileHandler) Upload(c *gin.Context) {
	userID := middleware.UserID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only CSV files are accepted"})
		return
	}
	maxBytes := int64(h.cfg.MaxSizeMB) * 1024 * 1024
	if fileHeader.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds %d MB limit", h.cfg.MaxSizeMB),
		})
		return
	}

	if err := os.MkdirAll(h.cfg.Dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare upload directory"})
		return
	}
	storedPath := filepath.Join(h.cfg.Dir, uuid.NewString()+".csv")
	if err := c.SaveUploadedFile(fileHeader, storedPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	f, err := os.Open(storedPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stored file"})
		return
	}
	ds, stats, err := ml.ReadCSV(f)
	f.Close()
	if err != nil {
		os.Remove(storedPath)
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid CSV: %v", err)})
		return
	}
	if ds.NumRows() == 0 {
		os.Remove(storedPath)
		c.JSON(http.StatusBadRequest, gin.H{"error": "file contains no data rows"})
		return
	}

	columns, _ := json.Marshal(ds.Columns)
	file := models.UploadedFile{
		UserID:     userID,
		Filename:   fileHeader.Filename,
		StoredPath: storedPath,
		SizeBytes:  fileHeader.Size,
		RowCount:   ds.NumRows(),
		Columns:    string(columns),
	}
	if err := h.db.Create(&file).Error; err != nil {
		os.Remove(storedPath)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record file"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"file":         file,
		"rows_read":    stats.RowsRead,
		"rows_kept":    stats.RowsKept,
		"rows_skipped": stats.RowsSkipped,
	})
}

func (h *FileHandler) List(c *gin.Context) {
	userID := middleware.UserID(c)
	p := ParsePagination(c)

	query := h.db.Model(&models.UploadedFile{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("created_at < ?", *p.Before)
	}

	var files []models.UploadedFile
	if err := query.Find(&files).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	hasMore := len(files) > p.Limit
	if hasMore {
		files = files[:p.Limit]
	}
	var nextCursor string
	if hasMore && len(files) > 0 {
		nextCursor = files[len(files)-1].CreatedAt.Format(time.RFC3339Nano)
	}

	c.JSON(http.StatusOK, CursorResponse{Data: files, NextCursor: nextCursor, HasMore: hasMore})
}

func (h *FileHandler) Get(c *gin.Context) {
	file, ok := h.ownedFile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, file)
}

func (h *FileHandler) Delete(c *gin.Context) {
	file, ok := h.ownedFile(c)
	if !ok {
		return
	}
	if err := h.db.Delete(&models.UploadedFile{}, file.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete file record"})
		return
	}
	os.Remove(strings.TrimSuffix(file.StoredPath, ".csv") + "_processed.csv")
	if err := os.Remove(file.StoredPath); err != nil && !os.IsNotExist(err) {
		// Record is gone; the orphan on disk is logged by the OS layer.
		c.JSON(http.StatusOK, gin.H{"message": "file record deleted, stored file cleanup pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "file deleted"})
}

type PreprocessRequest struct {
	TargetColumn   string   `json:"target_column" binding:"required"`
	FeatureColumns []string `json:"feature_columns"`
	OutlierMethod  string   `json:"outlier_method"`
}

// Preprocess runs the training pipeline without fitting a model, returning
// per-stage statistics and the resulting feature set. Lets the user validate
// a file before spending a training run on it.
func (h *FileHandler) Preprocess(c *gin.Context) {
	file, ok := h.ownedFile(c)
	if !ok {
		return
	}

	var req PreprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := os.Open(file.StoredPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open stored file"})
		return
	}
	defer f.Close()
	ds, _, err := ml.ReadCSV(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to parse stored file"})
		return
	}

	m, y, stats, err := ml.PrepareTrainingData(ds, req.TargetColumn, req.FeatureColumns, req.OutlierMethod)
	if err != nil {
		status, payload := mlErrorResponse(err)
		c.JSON(status, payload)
		return
	}

	processedPath := strings.TrimSuffix(file.StoredPath, ".csv") + "_processed.csv"
	if err := writeProcessedCSV(processedPath, m, y, req.TargetColumn); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write processed file"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":          stats,
		"features":       m.Names,
		"rows":           m.NumRows(),
		"target_rows":    len(y),
		"processed_file": filepath.Base(processedPath),
	})
}

// writeProcessedCSV dumps the pipeline output as a CSV with the target as the
// last column, so a cleaned dataset can be re-uploaded or inspected.
func writeProcessedCSV(path string, m *ml.Matrix, y []float64, targetColumn string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append(append([]string(nil), m.Names...), targetColumn)); err != nil {
		return err
	}
	record := make([]string, len(m.Names)+1)
	for i := 0; i < m.NumRows(); i++ {
		for j := range m.Names {
			record[j] = strconv.FormatFloat(m.X.At(i, j), 'g', -1, 64)
		}
		record[len(m.Names)] = strconv.FormatFloat(y[i], 'g', -1, 64)
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (h *FileHandler) ownedFile(c *gin.Context) (*models.UploadedFile, bool) {
	userID := middleware.UserID(c)
	var file models.UploadedFile
	if err := h.db.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&file).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return nil, false
	}
	return &file, true
}
