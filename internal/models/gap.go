package models

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AnalysisFactors captures the structured evidence behind one confidence
// score. If an outage match exists, OutageBonusApplied always equals the
// configured bonus for that outage type.
type AnalysisFactors struct {
	HasPreviousRecord   bool           `json:"has_previous_record"`
	HasNextRecord       bool           `json:"has_next_record"`
	BatteryDeltaPrev    *float64       `json:"battery_delta_prev,omitempty"`
	BatteryDeltaNext    *float64       `json:"battery_delta_next,omitempty"`
	OdometerDeltaKm     *float64       `json:"odometer_delta_km,omitempty"`
	WithinTypicalUsage  bool           `json:"within_typical_usage"`
	ConsecutiveGapHours int            `json:"consecutive_gap_hours"`
	FailureReason       *FailureReason `json:"failure_reason,omitempty"`
	TechnicalFailure    bool           `json:"technical_failure"`
	OutageID            *uuid.UUID     `json:"outage_id,omitempty"`
	OutageType          *OutageType    `json:"outage_type,omitempty"`
	OutageBrand         *string        `json:"outage_brand,omitempty"`
	OutageBonusApplied  float64        `json:"outage_bonus_applied"`
	ProfiledPeriod      bool           `json:"profiled_period"`
}

func (f AnalysisFactors) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *AnalysisFactors) Scan(value any) error {
	if value == nil {
		*f = AnalysisFactors{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("AnalysisFactors: Scan failed, expected []byte but got %T", value)
	}
	return json.Unmarshal(b, f)
}

// GapRecord is the scored, justified, hashed certification produced for one
// missing hourly record. Immutable once created; a regenerated report
// supersedes it with a new record.
type GapRecord struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	VehicleID     uuid.UUID       `json:"vehicle_id" db:"vehicle_id"`
	GapTimestamp  int64           `json:"gap_timestamp" db:"gap_timestamp"`
	Confidence    float64         `json:"confidence" db:"confidence"`
	Justification string          `json:"justification" db:"justification"`
	Factors       AnalysisFactors `json:"factors" db:"factors"`
	ReportID      *uuid.UUID      `json:"report_id,omitempty" db:"report_id"`
	CertifiedAt   time.Time       `json:"certified_at" db:"certified_at"`
	IntegrityHash string          `json:"integrity_hash" db:"integrity_hash"`
}

// CanonicalString serializes the score and factors in a fixed field order
// with fixed float formatting. Two runs over identical input produce
// byte-identical output, which the integrity hash depends on.
func (r GapRecord) CanonicalString() string {
	var b strings.Builder
	b.WriteString(r.VehicleID.String())
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(r.GapTimestamp, 10))
	b.WriteByte('|')
	b.WriteString(formatScore(r.Confidence))
	b.WriteByte('|')
	f := r.Factors
	b.WriteString(strconv.FormatBool(f.HasPreviousRecord))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(f.HasNextRecord))
	b.WriteByte('|')
	b.WriteString(formatOptFloat(f.BatteryDeltaPrev))
	b.WriteByte('|')
	b.WriteString(formatOptFloat(f.BatteryDeltaNext))
	b.WriteByte('|')
	b.WriteString(formatOptFloat(f.OdometerDeltaKm))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(f.WithinTypicalUsage))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(f.ConsecutiveGapHours))
	b.WriteByte('|')
	if f.FailureReason != nil {
		b.WriteString(string(*f.FailureReason))
	}
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(f.TechnicalFailure))
	b.WriteByte('|')
	if f.OutageID != nil {
		b.WriteString(f.OutageID.String())
	}
	b.WriteByte('|')
	if f.OutageType != nil {
		b.WriteString(string(*f.OutageType))
	}
	b.WriteByte('|')
	if f.OutageBrand != nil {
		b.WriteString(*f.OutageBrand)
	}
	b.WriteByte('|')
	b.WriteString(formatScore(f.OutageBonusApplied))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(f.ProfiledPeriod))
	return b.String()
}

// ComputeIntegrityHash returns the tamper-evidence hash over the canonical
// serialization of the score and factors.
func (r GapRecord) ComputeIntegrityHash() string {
	sum := sha256.Sum256([]byte(r.CanonicalString()))
	return hex.EncodeToString(sum[:])
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
