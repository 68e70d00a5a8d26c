package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertMetrics is the metrics snapshot stored with an alert. It is a
// concrete struct tagged by alert type; the type-specific fields are
// pointers and only set for the alert type they belong to. Serialization to
// JSONB happens at the storage boundary only.
type AlertMetrics struct {
	WindowStart       int64   `json:"window_start"`
	WindowEnd         int64   `json:"window_end"`
	AverageConfidence float64 `json:"average_confidence"`
	GapHours          int     `json:"gap_hours"`
	GapPercent        float64 `json:"gap_percent"`
	OutageMatchedGaps int     `json:"outage_matched_gaps"`

	// low_confidence
	LowestConfidence *float64 `json:"lowest_confidence,omitempty"`
	// consecutive_gaps
	LongestRunHours *int `json:"longest_run_hours,omitempty"`
	// profiled_anomaly
	ProfiledGapCount *int `json:"profiled_gap_count,omitempty"`
	// monthly_threshold
	MonthlyDowntimePercent *float64 `json:"monthly_downtime_percent,omitempty"`
}

func (m AlertMetrics) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *AlertMetrics) Scan(value any) error {
	if value == nil {
		*m = AlertMetrics{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("AlertMetrics: Scan failed, expected []byte but got %T", value)
	}
	return json.Unmarshal(b, m)
}

// GapAlert is a detected anomaly aggregating one or more gap records for a
// vehicle/report. Created only by the alert engine; mutated only through
// lifecycle transitions; never deleted.
type GapAlert struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	VehicleID        uuid.UUID     `json:"vehicle_id" db:"vehicle_id"`
	ReportID         *uuid.UUID    `json:"report_id,omitempty" db:"report_id"`
	AlertType        AlertType     `json:"alert_type" db:"alert_type"`
	Severity         AlertSeverity `json:"severity" db:"severity"`
	Status           AlertStatus   `json:"status" db:"status"`
	DetectedAt       time.Time     `json:"detected_at" db:"detected_at"`
	Description      string        `json:"description" db:"description"`
	Metrics          AlertMetrics  `json:"metrics" db:"metrics"`
	ContractRelevant bool          `json:"contract_relevant" db:"contract_relevant"`
	DocumentObject   *string       `json:"document_object,omitempty" db:"document_object"`
	DocumentHash     *string       `json:"document_hash,omitempty" db:"document_hash"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolutionNotes  *string       `json:"resolution_notes,omitempty" db:"resolution_notes"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// GapAuditLog is the append-only ledger of actions taken against an alert
// or a certification. Every status transition writes exactly one row in the
// same transaction; the ledger is the source of truth for why a status
// changed. Actor is nil for system actions.
type GapAuditLog struct {
	ID            uuid.UUID            `json:"id" db:"id"`
	AlertID       *uuid.UUID           `json:"alert_id,omitempty" db:"alert_id"`
	VehicleID     uuid.UUID            `json:"vehicle_id" db:"vehicle_id"`
	Action        AuditAction          `json:"action" db:"action"`
	Actor         *string              `json:"actor,omitempty" db:"actor"`
	Notes         *string              `json:"notes,omitempty" db:"notes"`
	Verification  *VerificationOutcome `json:"verification,omitempty" db:"verification"`
	FinalDecision *string              `json:"final_decision,omitempty" db:"final_decision"`
	CreatedAt     time.Time            `json:"created_at" db:"created_at"`
}
