package models

import (
	"time"

	"github.com/google/uuid"
)

// OutagePeriod is a known interval of vehicle- or fleet-API-level
// unavailability. An open-ended period (EndTimestamp == nil) is ongoing and
// only covers hours up to "now".
type OutagePeriod struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	OutageType     OutageType `json:"outage_type" db:"outage_type"`
	Brand          string     `json:"brand" db:"brand"`
	VehicleID      *uuid.UUID `json:"vehicle_id,omitempty" db:"vehicle_id"`
	CompanyID      *uuid.UUID `json:"company_id,omitempty" db:"company_id"`
	StartTimestamp int64      `json:"start_timestamp" db:"start_timestamp"`
	EndTimestamp   *int64     `json:"end_timestamp,omitempty" db:"end_timestamp"`
	AutoDetected   bool       `json:"auto_detected" db:"auto_detected"`
	EvidenceNote   *string    `json:"evidence_note,omitempty" db:"evidence_note"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Duration returns the covered span in seconds, measuring an open-ended
// outage up to now.
func (o OutagePeriod) Duration(now int64) int64 {
	end := now
	if o.EndTimestamp != nil {
		end = *o.EndTimestamp
	}
	if end < o.StartTimestamp {
		return 0
	}
	return end - o.StartTimestamp
}

// Covers reports whether the gap hour [hour, hour+3600) lies inside the
// outage. Full credit only applies to hours strictly inside [start, end];
// an ongoing outage covers hours up to now.
func (o OutagePeriod) Covers(hour, now int64) bool {
	if hour < o.StartTimestamp {
		return false
	}
	end := now
	if o.EndTimestamp != nil {
		end = *o.EndTimestamp
	}
	return hour+3600 <= end
}

// FetchFailureLog is one row per failed telemetry fetch attempt.
type FetchFailureLog struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	VehicleID      uuid.UUID     `json:"vehicle_id" db:"vehicle_id"`
	AttemptedAt    int64         `json:"attempted_at" db:"attempted_at"`
	Reason         FailureReason `json:"reason" db:"reason"`
	ErrorDetail    *string       `json:"error_detail,omitempty" db:"error_detail"`
	HTTPStatus     *int          `json:"http_status,omitempty" db:"http_status"`
	ResponseTimeMs *int          `json:"response_time_ms,omitempty" db:"response_time_ms"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// ProfilingWindow is a consent-based time range during which a specific
// authorized user is known to be actively using the vehicle.
type ProfilingWindow struct {
	ID             uuid.UUID `json:"id" db:"id"`
	VehicleID      uuid.UUID `json:"vehicle_id" db:"vehicle_id"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	StartTimestamp int64     `json:"start_timestamp" db:"start_timestamp"`
	EndTimestamp   int64     `json:"end_timestamp" db:"end_timestamp"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Contains reports whether the gap hour falls inside the window.
func (w ProfilingWindow) Contains(hour int64) bool {
	return hour >= w.StartTimestamp && hour < w.EndTimestamp
}
