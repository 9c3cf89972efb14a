package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"battery-soh-api/ml"
	"battery-soh-api/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// TrainingChannel is the Redis pub/sub channel carrying task status updates.
const TrainingChannel = "battery:training"

const taskKeyTTL = 24 * time.Hour

var (
	ErrModelNotFound      = errors.New("model not found")
	ErrTrainingInProgress = errors.New("model is already training")
	ErrQueueFull          = errors.New("training queue is full")
)

var (
	trainingsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batterysoh_trainings_started_total",
		Help: "Total number of training tasks started.",
	})
	trainingsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batterysoh_trainings_completed_total",
		Help: "Total number of training tasks completed successfully.",
	})
	trainingsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batterysoh_trainings_failed_total",
		Help: "Total number of training tasks that failed.",
	})
	trainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batterysoh_training_duration_seconds",
		Help:    "Duration of a full training task.",
		Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0},
	})
)

// TrainingTask is one queued training request.
type TrainingTask struct {
	TaskID   string  `json:"task_id"`
	ModelID  uint    `json:"model_id"`
	TestSize float64 `json:"test_size"`
}

// TrainingStatus is the externally visible state of a task, stored in Redis
// and published on TrainingChannel at every transition.
type TrainingStatus struct {
	TaskID     string    `json:"task_id"`
	ModelID    uint      `json:"model_id"`
	Status     string    `json:"status"` // queued, running, completed, failed
	Error      string    `json:"error,omitempty"`
	TrainScore *float64  `json:"train_score,omitempty"`
	TestScore  *float64  `json:"test_score,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TrainingService runs model training on a bounded worker pool, keeping at
// most one in-flight training per model record.
type TrainingService struct {
	db           *gorm.DB
	cache        *CacheService
	artifactsDir string
	testSize     float64
	tasks        chan TrainingTask
	wg           sync.WaitGroup
}

func NewTrainingService(db *gorm.DB, cache *CacheService, artifactsDir string, defaultTestSize float64) *TrainingService {
	return &TrainingService{
		db:           db,
		cache:        cache,
		artifactsDir: artifactsDir,
		testSize:     defaultTestSize,
		tasks:        make(chan TrainingTask, 100),
	}
}

// Start launches the worker pool. Workers drain the queue until ctx is done.
func (s *TrainingService) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-s.tasks:
					s.run(ctx, task)
				}
			}
		}(i)
	}
	log.Printf("training service: %d workers started", workers)
}

// Wait blocks until all workers have exited.
func (s *TrainingService) Wait() { s.wg.Wait() }

// Submit queues a training run for the model. The status flip to "training"
// is a conditional update so two concurrent submissions cannot both win.
func (s *TrainingService) Submit(ctx context.Context, modelID uint, testSize float64) (string, error) {
	var model models.MLModel
	if err := s.db.WithContext(ctx).First(&model, modelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrModelNotFound
		}
		return "", err
	}

	res := s.db.WithContext(ctx).Model(&models.MLModel{}).
		Where("id = ? AND status <> ?", modelID, models.ModelStatusTraining).
		Updates(map[string]interface{}{
			"status":        models.ModelStatusTraining,
			"error_message": "",
		})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", ErrTrainingInProgress
	}

	if testSize <= 0 || testSize >= 1 {
		testSize = s.testSize
	}
	task := TrainingTask{TaskID: uuid.NewString(), ModelID: modelID, TestSize: testSize}

	select {
	case s.tasks <- task:
	default:
		s.db.Model(&models.MLModel{}).Where("id = ?", modelID).
			Update("status", models.ModelStatusPending)
		return "", ErrQueueFull
	}

	s.setStatus(ctx, TrainingStatus{TaskID: task.TaskID, ModelID: modelID, Status: "queued"})
	return task.TaskID, nil
}

// TaskStatus reads a task's state from Redis. Returns nil when the task is
// unknown or has expired.
func (s *TrainingService) TaskStatus(ctx context.Context, taskID string) (*TrainingStatus, error) {
	var status TrainingStatus
	if err := s.cache.Get(ctx, taskKey(taskID), &status); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if status.TaskID == "" {
		return nil, nil
	}
	return &status, nil
}

func (s *TrainingService) run(ctx context.Context, task TrainingTask) {
	trainingsStarted.Inc()
	start := time.Now()
	s.setStatus(ctx, TrainingStatus{TaskID: task.TaskID, ModelID: task.ModelID, Status: "running"})

	res, err := s.train(ctx, task)
	trainingDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		trainingsFailed.Inc()
		log.Printf("training task %s (model %d) failed: %v", task.TaskID, task.ModelID, err)
		s.db.Model(&models.MLModel{}).Where("id = ?", task.ModelID).
			Updates(map[string]interface{}{
				"status":        models.ModelStatusFailed,
				"error_message": err.Error(),
			})
		s.setStatus(ctx, TrainingStatus{
			TaskID: task.TaskID, ModelID: task.ModelID,
			Status: "failed", Error: err.Error(),
		})
		return
	}

	trainingsCompleted.Inc()
	log.Printf("training task %s (model %d) completed: train R2=%.4f test R2=%.4f in %s",
		task.TaskID, task.ModelID, res.TrainScore, res.TestScore, time.Since(start))
	s.setStatus(ctx, TrainingStatus{
		TaskID: task.TaskID, ModelID: task.ModelID, Status: "completed",
		TrainScore: &res.TrainScore, TestScore: &res.TestScore,
	})
}

// train executes the preprocessing and fitting pipeline for one model record
// and persists the outcome. A panic in the numeric code is converted into a
// failed task so one bad dataset cannot take a worker down.
func (s *TrainingService) train(ctx context.Context, task TrainingTask) (res *ml.TrainingResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("training panicked: %v", r)
		}
	}()
	return s.trainPipeline(ctx, task)
}

func (s *TrainingService) trainPipeline(ctx context.Context, task TrainingTask) (*ml.TrainingResult, error) {
	var model models.MLModel
	if err := s.db.WithContext(ctx).First(&model, task.ModelID).Error; err != nil {
		return nil, fmt.Errorf("load model record: %w", err)
	}

	ds, err := s.loadDataset(ctx, &model)
	if err != nil {
		return nil, err
	}

	var featureColumns []string
	if model.FeatureColumns != "" {
		if err := json.Unmarshal([]byte(model.FeatureColumns), &featureColumns); err != nil {
			return nil, fmt.Errorf("parse feature_columns: %w", err)
		}
	}
	var params ml.Params
	if model.Params != "" {
		if err := json.Unmarshal([]byte(model.Params), &params); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
	}

	m, y, _, err := ml.PrepareTrainingData(ds, model.TargetColumn, featureColumns, "iqr")
	if err != nil {
		return nil, err
	}

	res, err := ml.Train(model.ModelType, params, m, y, task.TestSize)
	if err != nil {
		return nil, err
	}

	artifactPath := filepath.Join(s.artifactsDir, fmt.Sprintf("model_%d_%s.json", model.ID, task.TaskID))
	if err := ml.SaveArtifact(artifactPath, res, model.TargetColumn); err != nil {
		return nil, err
	}

	metrics, err := json.Marshal(map[string]ml.Metrics{
		"train": res.TrainMetrics,
		"test":  res.TestMetrics,
	})
	if err != nil {
		return nil, err
	}
	featureNames, _ := json.Marshal(res.FeatureNames)

	now := time.Now().UTC()
	update := s.db.Model(&models.MLModel{}).Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"status":          models.ModelStatusCompleted,
			"train_score":     res.TrainScore,
			"test_score":      res.TestScore,
			"metrics":         string(metrics),
			"feature_columns": string(featureNames),
			"artifact_path":   artifactPath,
			"trained_at":      now,
		})
	if update.Error != nil {
		// Remove the orphaned artifact so disk state matches the DB.
		os.Remove(artifactPath)
		return nil, update.Error
	}

	// Completed models invalidate any cached listing.
	go s.cache.Delete(context.Background(), fmt.Sprintf("models:user:%d", model.UserID))

	return res, nil
}

// loadDataset builds the training dataset from the model's data source:
// an uploaded CSV file or a vehicle's stored readings.
func (s *TrainingService) loadDataset(ctx context.Context, model *models.MLModel) (*ml.Dataset, error) {
	switch {
	case model.FileID != nil:
		var file models.UploadedFile
		if err := s.db.WithContext(ctx).First(&file, *model.FileID).Error; err != nil {
			return nil, fmt.Errorf("load file record: %w", err)
		}
		f, err := os.Open(file.StoredPath)
		if err != nil {
			return nil, fmt.Errorf("open uploaded file: %w", err)
		}
		defer f.Close()
		ds, _, err := ml.ReadCSV(f)
		return ds, err

	case model.VehicleID != nil:
		var readings []models.BatteryReading
		if err := s.db.WithContext(ctx).
			Where("vehicle_id = ?", *model.VehicleID).
			Order("measurement_timestamp ASC").
			Find(&readings).Error; err != nil {
			return nil, fmt.Errorf("load readings: %w", err)
		}
		return DatasetFromReadings(readings), nil

	default:
		return nil, errors.New("model has neither a file nor a vehicle data source")
	}
}

// DatasetFromReadings converts stored readings into the tabular form the
// pipeline consumes. Nil sensor fields become missing cells.
func DatasetFromReadings(readings []models.BatteryReading) *ml.Dataset {
	columns := []string{
		"state_of_health", "state_of_charge", "voltage", "current",
		"temperature", "cycle_count", "capacity_fade", "internal_resistance",
		"measurement_timestamp",
	}
	ds := &ml.Dataset{Columns: columns}
	for _, r := range readings {
		row := map[string]string{
			"state_of_health":       floatCell(r.StateOfHealth),
			"state_of_charge":       floatCell(r.StateOfCharge),
			"voltage":               floatCell(r.Voltage),
			"current":               floatCell(r.Current),
			"temperature":           floatCell(r.Temperature),
			"cycle_count":           floatCell(r.CycleCount),
			"capacity_fade":         floatCell(r.CapacityFade),
			"internal_resistance":   floatCell(r.InternalResistance),
			"measurement_timestamp": r.MeasurementTimestamp.Format(time.RFC3339),
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func (s *TrainingService) setStatus(ctx context.Context, status TrainingStatus) {
	status.UpdatedAt = time.Now().UTC()
	if err := s.cache.Set(ctx, taskKey(status.TaskID), status, taskKeyTTL); err != nil {
		log.Printf("training service: cache set failed for task %s: %v", status.TaskID, err)
	}
	if err := s.cache.Publish(ctx, TrainingChannel, status); err != nil {
		log.Printf("training service: publish failed for task %s: %v", status.TaskID, err)
	}
}

func taskKey(taskID string) string {
	return "training:task:" + taskID
}
