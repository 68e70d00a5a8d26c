package services

import (
	"testing"

	"certification-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourlyRecords(vehicleID uuid.UUID, period models.ReportPeriod, skip map[int64]bool) []models.TelemetryRecord {
	var records []models.TelemetryRecord
	battery := 90.0
	odometer := 1000.0
	for ts := period.Start; ts < period.End; ts += 3600 {
		battery -= 0.5
		odometer += 2
		if skip[ts] {
			continue
		}
		records = append(records, *createTestRecord(vehicleID, ts, battery, odometer))
	}
	return records
}

// ============================================================================
// TEST SUITE 1: GAP LOCATION
// ============================================================================

func TestLocateGaps_FullCoverageHasNoGaps(t *testing.T) {
	vehicleID := uuid.New()
	period := models.ReportPeriod{Start: baseHour, End: baseHour + 24*3600}
	records := hourlyRecords(vehicleID, period, nil)

	gaps := LocateGaps(vehicleID, records, period, [24]bool{}, 0)

	assert.Empty(t, gaps, "A fully covered period has no gaps")
}

func TestLocateGaps_SingleMissingHour(t *testing.T) {
	vehicleID := uuid.New()
	period := models.ReportPeriod{Start: baseHour, End: baseHour + 24*3600}
	missing := baseHour + 5*3600
	records := hourlyRecords(vehicleID, period, map[int64]bool{missing: true})

	gaps := LocateGaps(vehicleID, records, period, [24]bool{}, 0)

	require.Len(t, gaps, 1)
	gap := gaps[0]
	assert.Equal(t, missing, gap.GapTimestamp)
	assert.Equal(t, 1, gap.ConsecutiveGapHours)
	require.NotNil(t, gap.Previous, "Record at hour-1 must be attached")
	require.NotNil(t, gap.Next, "Record at hour+1 must be attached")
	assert.Equal(t, missing-3600, gap.Previous.RecordTimestamp)
	assert.Equal(t, missing+3600, gap.Next.RecordTimestamp)
}

func TestLocateGaps_RunInteriorHasNoBoundingRecords(t *testing.T) {
	vehicleID := uuid.New()
	period := models.ReportPeriod{Start: baseHour, End: baseHour + 24*3600}
	skip := map[int64]bool{
		baseHour + 5*3600: true,
		baseHour + 6*3600: true,
		baseHour + 7*3600: true,
	}
	records := hourlyRecords(vehicleID, period, skip)

	gaps := LocateGaps(vehicleID, records, period, [24]bool{}, 0)

	require.Len(t, gaps, 3)
	for _, gap := range gaps {
		assert.Equal(t, 3, gap.ConsecutiveGapHours, "Every gap in the run carries the run length")
	}

	first, middle, last := gaps[0], gaps[1], gaps[2]
	assert.NotNil(t, first.Previous)
	assert.Nil(t, first.Next, "First hour of the run has no record at hour+1")
	assert.Nil(t, middle.Previous, "Interior hour has neither bounding record")
	assert.Nil(t, middle.Next)
	assert.Nil(t, last.Previous)
	assert.NotNil(t, last.Next)
}

func TestLocateGaps_RecordsOutsidePeriodIgnored(t *testing.T) {
	vehicleID := uuid.New()
	period := models.ReportPeriod{Start: baseHour, End: baseHour + 2*3600}

	records := []models.TelemetryRecord{
		*createTestRecord(vehicleID, baseHour-3600, 90, 1000),   // before period
		*createTestRecord(vehicleID, baseHour+2*3600, 89, 1002), // after period
	}

	gaps := LocateGaps(vehicleID, records, period, [24]bool{}, 0)

	assert.Len(t, gaps, 2, "Records outside the period must not cover its hours")
}

func TestLocateGaps_UsageHoursFlagCarriedIntoContext(t *testing.T) {
	vehicleID := uuid.New()
	period := models.ReportPeriod{Start: baseHour, End: baseHour + 2*3600}

	// baseHour is midnight UTC; mark hour 1 as typically active.
	var usage [24]bool
	usage[1] = true

	gaps := LocateGaps(vehicleID, nil, period, usage, 0.1)

	require.Len(t, gaps, 2)
	assert.False(t, gaps[0].WithinTypicalUsage)
	assert.True(t, gaps[1].WithinTypicalUsage)
	assert.Equal(t, 0.1, gaps[0].HistoricalGapRate)
}

func TestLocateGaps_EmptyPeriod(t *testing.T) {
	vehicleID := uuid.New()
	gaps := LocateGaps(vehicleID, nil, models.ReportPeriod{Start: baseHour, End: baseHour}, [24]bool{}, 0)
	assert.Empty(t, gaps)
}

// ============================================================================
// TEST SUITE 2: USAGE PROFILE AND HISTORY
// ============================================================================

func TestTypicalUsageHours_RequiresThreeMovements(t *testing.T) {
	vehicleID := uuid.New()
	var history []models.TelemetryRecord

	// Three days of movement into hour 8 (odometer +5 km), twice into hour 9.
	for day := 0; day < 3; day++ {
		dayStart := baseHour + int64(day)*24*3600
		history = append(history,
			*createTestRecord(vehicleID, dayStart+7*3600, 80, float64(1000+day*10)),
			*createTestRecord(vehicleID, dayStart+8*3600, 79, float64(1005+day*10)),
		)
		if day < 2 {
			history = append(history,
				*createTestRecord(vehicleID, dayStart+9*3600, 78, float64(1010+day*10)),
			)
		}
	}

	usage := TypicalUsageHours(history)

	assert.True(t, usage[8], "Three observed movements make the hour typically active")
	assert.False(t, usage[9], "Two observed movements are not enough")
	assert.False(t, usage[7])
}

func TestHistoricalGapRate(t *testing.T) {
	vehicleID := uuid.New()
	window := models.ReportPeriod{Start: baseHour, End: baseHour + 10*3600}

	skip := map[int64]bool{
		baseHour + 2*3600: true,
		baseHour + 3*3600: true,
	}
	history := hourlyRecords(vehicleID, window, skip)

	rate := HistoricalGapRate(history, window)

	assert.InDelta(t, 0.2, rate, 0.001, "2 of 10 expected records missing")
}

func TestHistoricalGapRate_EmptyWindow(t *testing.T) {
	rate := HistoricalGapRate(nil, models.ReportPeriod{Start: baseHour, End: baseHour})
	assert.Equal(t, 0.0, rate)
}
