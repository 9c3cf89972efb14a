package models

import "time"

type Vehicle struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"column:user_id;index;not null" json:"user_id"`
	Name               string    `gorm:"column:name;not null" json:"name"`
	Make               string    `gorm:"column:make" json:"make"`
	Model              string    `gorm:"column:model" json:"model"`
	Year               int       `gorm:"column:year" json:"year"`
	VIN                string    `gorm:"column:vin" json:"vin"`
	BatteryCapacityKWh *float64  `gorm:"column:battery_capacity_kwh" json:"battery_capacity_kwh"`
	CreatedAt          time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Vehicle) TableName() string { return "vehicles" }
