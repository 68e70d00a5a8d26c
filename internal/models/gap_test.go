package models

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func testGapRecord() GapRecord {
	batteryPrev := -2.0
	batteryNext := 2.0
	odometer := 3.5
	reason := FailureTimeout
	outageID := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	outageType := OutageFleetAPI
	brand := "tesla"

	return GapRecord{
		ID:           uuid.New(),
		VehicleID:    uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8"),
		GapTimestamp: 1748736000,
		Confidence:   87.5,
		Factors: AnalysisFactors{
			HasPreviousRecord:   true,
			HasNextRecord:       true,
			BatteryDeltaPrev:    &batteryPrev,
			BatteryDeltaNext:    &batteryNext,
			OdometerDeltaKm:     &odometer,
			WithinTypicalUsage:  false,
			ConsecutiveGapHours: 1,
			FailureReason:       &reason,
			TechnicalFailure:    true,
			OutageID:            &outageID,
			OutageType:          &outageType,
			OutageBrand:         &brand,
			OutageBonusApplied:  40,
		},
	}
}

func TestCanonicalString_Deterministic(t *testing.T) {
	a := testGapRecord()
	b := testGapRecord()

	assert.Equal(t, a.CanonicalString(), b.CanonicalString(),
		"Identical content must serialize byte-identically regardless of record ID")
}

func TestCanonicalString_FixedFloatFormatting(t *testing.T) {
	record := testGapRecord()
	canonical := record.CanonicalString()

	assert.Contains(t, canonical, "|87.50|", "Score is formatted with two decimals")
	assert.Contains(t, canonical, "|-2.00|", "Optional floats keep the fixed format")
	assert.True(t, strings.HasSuffix(canonical, "|40.00|false"),
		"Outage bonus and profiled flag close the serialization")
}

func TestComputeIntegrityHash_DetectsTampering(t *testing.T) {
	record := testGapRecord()
	record.IntegrityHash = record.ComputeIntegrityHash()

	assert.Len(t, record.IntegrityHash, 64)
	assert.Equal(t, record.IntegrityHash, record.ComputeIntegrityHash())

	tampered := record
	tampered.Confidence = 99.9
	assert.NotEqual(t, record.IntegrityHash, tampered.ComputeIntegrityHash(),
		"Changing the score must change the hash")

	tampered = record
	tampered.Factors.TechnicalFailure = false
	assert.NotEqual(t, record.IntegrityHash, tampered.ComputeIntegrityHash(),
		"Changing a factor must change the hash")
}

func TestReportPeriod_Hours(t *testing.T) {
	assert.Equal(t, 24, ReportPeriod{Start: 0, End: 24 * 3600}.Hours())
	assert.Equal(t, 0, ReportPeriod{Start: 3600, End: 3600}.Hours())
	assert.Equal(t, 0, ReportPeriod{Start: 7200, End: 3600}.Hours())
}
