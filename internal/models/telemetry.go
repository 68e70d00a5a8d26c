package models

import (
	"certification-service/internal/utils"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// VEHICLES & HOURLY TELEMETRY (TIME-SERIES)
// ============================================================================

type Vehicle struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	CompanyID *uuid.UUID `json:"company_id,omitempty" db:"company_id"`
	Brand     string     `json:"brand" db:"brand"`
	VIN       string     `json:"vin" db:"vin"`
	Active    bool       `json:"active" db:"active"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// TelemetryRecord is one hourly snapshot fetched from the fleet API.
// RecordTimestamp is truncated to the hour on ingestion.
type TelemetryRecord struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	VehicleID       uuid.UUID     `json:"vehicle_id" db:"vehicle_id"`
	RecordTimestamp int64         `json:"record_timestamp" db:"record_timestamp"`
	BatteryLevel    *float64      `json:"battery_level,omitempty" db:"battery_level"`
	OdometerKm      *float64      `json:"odometer_km,omitempty" db:"odometer_km"`
	RawPayload      utils.JSONMap `json:"raw_payload" db:"raw_payload"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

// ReportPeriod is the half-open hourly range [Start, End) a certification
// run must account for.
type ReportPeriod struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Hours returns the number of expected hourly records in the period.
func (p ReportPeriod) Hours() int {
	if p.End <= p.Start {
		return 0
	}
	return int((p.End - p.Start) / 3600)
}
