package handlers

import (
	"testing"
	"time"

	"battery-soh-api/ml"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		cell string
		ok   bool
	}{
		{"rfc3339", "2026-02-01T10:00:00Z", true},
		{"datetime", "2026-02-01 10:00:00", true},
		{"date only", "2026-02-01", true},
		{"empty", "", false},
		{"garbage", "yesterday", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := parseTimestamp(tt.cell)
			if ok != tt.ok {
				t.Errorf("parseTimestamp(%q) ok = %v, want %v", tt.cell, ok, tt.ok)
			}
		})
	}
}

func TestReadingsFromDataset(t *testing.T) {
	ds := &ml.Dataset{
		Columns: []string{"state_of_health", "voltage", "measurement_timestamp"},
		Rows: []map[string]string{
			{"state_of_health": "95.5", "voltage": "380", "measurement_timestamp": "2026-01-01T00:00:00Z"},
			{"state_of_health": "95.1", "voltage": "", "measurement_timestamp": "2026-01-02"},
			{"state_of_health": "94.8", "voltage": "379", "measurement_timestamp": "not a time"},
		},
	}

	readings, skipped := readingsFromDataset(7, ds)
	if len(readings) != 2 {
		t.Fatalf("imported = %d, want 2", len(readings))
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}

	first := readings[0]
	if first.VehicleID != 7 {
		t.Errorf("VehicleID = %d, want 7", first.VehicleID)
	}
	if first.StateOfHealth == nil || *first.StateOfHealth != 95.5 {
		t.Errorf("StateOfHealth = %v, want 95.5", first.StateOfHealth)
	}
	if first.Voltage == nil || *first.Voltage != 380 {
		t.Errorf("Voltage = %v, want 380", first.Voltage)
	}
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if !first.MeasurementTimestamp.Equal(want) {
		t.Errorf("MeasurementTimestamp = %v, want %v", first.MeasurementTimestamp, want)
	}

	// Empty cell stays nil rather than zero.
	if readings[1].Voltage != nil {
		t.Errorf("empty voltage cell produced %v, want nil", *readings[1].Voltage)
	}
}
