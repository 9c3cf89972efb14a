package models

import "time"

type BatteryReading struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	VehicleID            uint      `gorm:"column:vehicle_id;index;not null" json:"vehicle_id"`
	StateOfHealth        *float64  `gorm:"column:state_of_health" json:"state_of_health"`
	StateOfCharge        *float64  `gorm:"column:state_of_charge" json:"state_of_charge"`
	Voltage              *float64  `gorm:"column:voltage" json:"voltage"`
	Current              *float64  `gorm:"column:current" json:"current"`
	Temperature          *float64  `gorm:"column:temperature" json:"temperature"`
	CycleCount           *float64  `gorm:"column:cycle_count" json:"cycle_count"`
	CapacityFade         *float64  `gorm:"column:capacity_fade" json:"capacity_fade"`
	InternalResistance   *float64  `gorm:"column:internal_resistance" json:"internal_resistance"`
	MeasurementTimestamp time.Time `gorm:"column:measurement_timestamp;index" json:"measurement_timestamp"`
	CreatedAt            time.Time `gorm:"column:created_at" json:"created_at"`
}

func (BatteryReading) TableName() string { return "battery_readings" }
