package models

import "time"

// Model lifecycle states. Transitions: pending -> training -> completed|failed.
const (
	ModelStatusPending   = "pending"
	ModelStatusTraining  = "training"
	ModelStatusCompleted = "completed"
	ModelStatusFailed    = "failed"
)

type MLModel struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"column:user_id;index;not null" json:"user_id"`
	VehicleID      *uint      `gorm:"column:vehicle_id;index" json:"vehicle_id"`
	FileID         *uint      `gorm:"column:file_id;index" json:"file_id"`
	Name           string     `gorm:"column:name;not null" json:"name"`
	ModelType      string     `gorm:"column:model_type;not null" json:"model_type"`
	TargetColumn   string     `gorm:"column:target_column;not null" json:"target_column"`
	FeatureColumns string     `gorm:"column:feature_columns;type:text" json:"feature_columns"` // JSON array
	Params         string     `gorm:"column:params;type:text" json:"params"`                   // JSON object
	Status         string     `gorm:"column:status;default:pending;index" json:"status"`
	TrainScore     *float64   `gorm:"column:train_score" json:"train_score"`
	TestScore      *float64   `gorm:"column:test_score" json:"test_score"`
	Metrics        string     `gorm:"column:metrics;type:text" json:"metrics"` // JSON: per-split MAE/MSE/RMSE/R2
	ArtifactPath   string     `gorm:"column:artifact_path" json:"-"`
	ErrorMessage   string     `gorm:"column:error_message" json:"error_message,omitempty"`
	TrainedAt      *time.Time `gorm:"column:trained_at" json:"trained_at"`
	CreatedAt      time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (MLModel) TableName() string { return "ml_models" }
