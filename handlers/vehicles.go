package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"battery-soh-api/middleware"
	"battery-soh-api/ml"
	"battery-soh-api/models"
	"battery-soh-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type VehicleHandler struct {
	db    *gorm.DB
	cache *services.CacheService
}

func NewVehicleHandler(db *gorm.DB, cache *services.CacheService) *VehicleHandler {
	return &VehicleHandler{db: db, cache: cache}
}

type VehicleRequest struct {
	Name               string   `json:"name" binding:"required"`
	Make               string   `json:"make"`
	Model              string   `json:"model"`
	Year               int      `json:"year"`
	VIN                string   `json:"vin"`
	BatteryCapacityKWh *float64 `json:"battery_capacity_kwh"`
}

func (h *VehicleHandler) Create(c *gin.Context) {
	var req VehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vehicle := models.Vehicle{
		UserID:             middleware.UserID(c),
		Name:               req.Name,
		Make:               req.Make,
		Model:              req.Model,
		Year:               req.Year,
		VIN:                req.VIN,
		BatteryCapacityKWh: req.BatteryCapacityKWh,
	}
	if err := h.db.Create(&vehicle).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create vehicle"})
		return
	}
	c.JSON(http.StatusCreated, vehicle)
}

func (h *VehicleHandler) List(c *gin.Context) {
	userID := middleware.UserID(c)
	p := ParsePagination(c)

	query := h.db.Model(&models.Vehicle{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("created_at < ?", *p.Before)
	}

	var vehicles []models.Vehicle
	if err := query.Find(&vehicles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	hasMore := len(vehicles) > p.Limit
	if hasMore {
		vehicles = vehicles[:p.Limit]
	}
	var nextCursor string
	if hasMore && len(vehicles) > 0 {
		nextCursor = vehicles[len(vehicles)-1].CreatedAt.Format(time.RFC3339Nano)
	}

	c.JSON(http.StatusOK, CursorResponse{Data: vehicles, NextCursor: nextCursor, HasMore: hasMore})
}

func (h *VehicleHandler) Get(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, vehicle)
}

func (h *VehicleHandler) Update(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}

	var req VehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vehicle.Name = req.Name
	vehicle.Make = req.Make
	vehicle.Model = req.Model
	vehicle.Year = req.Year
	vehicle.VIN = req.VIN
	vehicle.BatteryCapacityKWh = req.BatteryCapacityKWh
	if err := h.db.Save(vehicle).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update vehicle"})
		return
	}
	c.JSON(http.StatusOK, vehicle)
}

func (h *VehicleHandler) Delete(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("vehicle_id = ?", vehicle.ID).Delete(&models.BatteryReading{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Vehicle{}, vehicle.ID).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete vehicle"})
		return
	}
	go h.cache.Delete(context.Background(), readingsKey(vehicle.ID))
	c.JSON(http.StatusOK, gin.H{"message": "vehicle deleted"})
}

type ReadingRequest struct {
	StateOfHealth        *float64  `json:"state_of_health"`
	StateOfCharge        *float64  `json:"state_of_charge"`
	Voltage              *float64  `json:"voltage"`
	Current              *float64  `json:"current"`
	Temperature          *float64  `json:"temperature"`
	CycleCount           *float64  `json:"cycle_count"`
	CapacityFade         *float64  `json:"capacity_fade"`
	InternalResistance   *float64  `json:"internal_resistance"`
	MeasurementTimestamp time.Time `json:"measurement_timestamp" binding:"required"`
}

// AddReadings batch-imports telemetry rows for a vehicle.
func (h *VehicleHandler) AddReadings(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}

	var reqs []ReadingRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(reqs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty readings batch"})
		return
	}

	readings := make([]models.BatteryReading, len(reqs))
	for i, r := range reqs {
		readings[i] = models.BatteryReading{
			VehicleID:            vehicle.ID,
			StateOfHealth:        r.StateOfHealth,
			StateOfCharge:        r.StateOfCharge,
			Voltage:              r.Voltage,
			Current:              r.Current,
			Temperature:          r.Temperature,
			CycleCount:           r.CycleCount,
			CapacityFade:         r.CapacityFade,
			InternalResistance:   r.InternalResistance,
			MeasurementTimestamp: r.MeasurementTimestamp,
		}
	}
	if err := h.db.CreateInBatches(readings, 500).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store readings"})
		return
	}
	go h.cache.Delete(context.Background(), readingsKey(vehicle.ID))
	c.JSON(http.StatusCreated, gin.H{"imported": len(readings)})
}

// ImportReadings loads an uploaded CSV into the vehicle's reading history.
// Rows without a parseable timestamp are skipped and counted.
func (h *VehicleHandler) ImportReadings(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}

	fileID := c.Query("file_id")
	if fileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_id query parameter is required"})
		return
	}
	userID := middleware.UserID(c)
	var file models.UploadedFile
	if err := h.db.Where("id = ? AND user_id = ?", fileID, userID).First(&file).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
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

	readings, skipped := readingsFromDataset(vehicle.ID, ds)
	if len(readings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no rows with a valid measurement_timestamp"})
		return
	}
	if err := h.db.CreateInBatches(readings, 500).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store readings"})
		return
	}
	go h.cache.Delete(context.Background(), readingsKey(vehicle.ID))
	c.JSON(http.StatusCreated, gin.H{"imported": len(readings), "skipped": skipped})
}

var readingColumns = map[string]func(*models.BatteryReading, *float64){
	"state_of_health":     func(r *models.BatteryReading, v *float64) { r.StateOfHealth = v },
	"state_of_charge":     func(r *models.BatteryReading, v *float64) { r.StateOfCharge = v },
	"voltage":             func(r *models.BatteryReading, v *float64) { r.Voltage = v },
	"current":             func(r *models.BatteryReading, v *float64) { r.Current = v },
	"temperature":         func(r *models.BatteryReading, v *float64) { r.Temperature = v },
	"cycle_count":         func(r *models.BatteryReading, v *float64) { r.CycleCount = v },
	"capacity_fade":       func(r *models.BatteryReading, v *float64) { r.CapacityFade = v },
	"internal_resistance": func(r *models.BatteryReading, v *float64) { r.InternalResistance = v },
}

func readingsFromDataset(vehicleID uint, ds *ml.Dataset) ([]models.BatteryReading, int) {
	var readings []models.BatteryReading
	skipped := 0
	for _, row := range ds.Rows {
		ts, ok := parseTimestamp(row["measurement_timestamp"])
		if !ok {
			skipped++
			continue
		}
		reading := models.BatteryReading{VehicleID: vehicleID, MeasurementTimestamp: ts}
		for column, set := range readingColumns {
			if cell, ok := row[column]; ok && cell != "" {
				if v, err := strconv.ParseFloat(cell, 64); err == nil {
					val := v
					set(&reading, &val)
				}
			}
		}
		readings = append(readings, reading)
	}
	return readings, skipped
}

func parseTimestamp(cell string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, cell); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (h *VehicleHandler) ListReadings(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}
	p := ParsePagination(c)

	// Same single-key scheme as the model listing: only the first default
	// page is cached so writes can invalidate exactly.
	cacheable := p.Before == nil && p.Limit == DefaultLimit
	if cacheable {
		var cached CursorResponse
		if err := h.cache.Get(c.Request.Context(), readingsKey(vehicle.ID), &cached); err == nil && cached.Data != nil {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	query := h.db.Model(&models.BatteryReading{}).
		Where("vehicle_id = ?", vehicle.ID).
		Order("measurement_timestamp DESC").
		Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("measurement_timestamp < ?", *p.Before)
	}

	var readings []models.BatteryReading
	if err := query.Find(&readings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	hasMore := len(readings) > p.Limit
	if hasMore {
		readings = readings[:p.Limit]
	}
	var nextCursor string
	if hasMore && len(readings) > 0 {
		nextCursor = readings[len(readings)-1].MeasurementTimestamp.Format(time.RFC3339Nano)
	}

	resp := CursorResponse{Data: readings, NextCursor: nextCursor, HasMore: hasMore}
	if cacheable {
		go h.cache.Set(context.Background(), readingsKey(vehicle.ID), resp, 30*time.Second)
	}

	c.JSON(http.StatusOK, resp)
}

func readingsKey(vehicleID uint) string {
	return fmt.Sprintf("readings:vehicle:%d", vehicleID)
}

func (h *VehicleHandler) ownedVehicle(c *gin.Context) (*models.Vehicle, bool) {
	userID := middleware.UserID(c)
	var vehicle models.Vehicle
	if err := h.db.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&vehicle).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
		return nil, false
	}
	return &vehicle, true
}
