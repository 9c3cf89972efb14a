package models

import "time"

// Prediction kinds.
const (
	PredictionSingle   = "single"
	PredictionForecast = "forecast"
	PredictionFailure  = "failure_analysis"
)

type Prediction struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ModelID        uint      `gorm:"column:model_id;index;not null" json:"model_id"`
	UserID         uint      `gorm:"column:user_id;index;not null" json:"user_id"`
	Kind           string    `gorm:"column:kind;not null" json:"kind"`
	Input          string    `gorm:"column:input;type:text" json:"input"`   // JSON request payload
	Output         string    `gorm:"column:output;type:text" json:"output"` // JSON response payload
	PredictedValue *float64  `gorm:"column:predicted_value" json:"predicted_value"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Prediction) TableName() string { return "predictions" }
