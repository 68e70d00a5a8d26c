package services

import (
	"testing"

	"certification-service/internal/config"
	"certification-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createGapRecord(vehicleID uuid.UUID, ts int64, confidence float64) models.GapRecord {
	return models.GapRecord{
		ID:           uuid.New(),
		VehicleID:    vehicleID,
		GapTimestamp: ts,
		Confidence:   confidence,
	}
}

func testWindow() models.ReportPeriod {
	return models.ReportPeriod{Start: baseHour, End: baseHour + 7*24*3600}
}

func findCandidate(candidates []CandidateAlert, alertType models.AlertType) *CandidateAlert {
	for i := range candidates {
		if candidates[i].Type == alertType {
			return &candidates[i]
		}
	}
	return nil
}

// ============================================================================
// TEST SUITE 1: LOW CONFIDENCE RULE
// ============================================================================

func TestEvaluateVehicle_LowConfidenceSeverityBands(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	vehicleID := uuid.New()
	window := testWindow()

	tests := []struct {
		name       string
		confidence float64
		severity   models.AlertSeverity
	}{
		{"just below threshold is info", 65, models.SeverityInfo},
		{"moderate shortfall is warning", 50, models.SeverityWarning},
		{"deep shortfall is critical", 40, models.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := []models.GapRecord{createGapRecord(vehicleID, baseHour, tt.confidence)}

			candidates := EvaluateVehicle(window, records, nil, 0, cfg)
			candidate := findCandidate(candidates, models.AlertLowConfidence)

			require.NotNil(t, candidate)
			assert.Equal(t, tt.severity, candidate.Severity)
			assert.Equal(t, tt.confidence, *candidate.Metrics.LowestConfidence)
		})
	}
}

func TestEvaluateVehicle_ConfidenceAtThresholdDoesNotAlert(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	vehicleID := uuid.New()
	records := []models.GapRecord{createGapRecord(vehicleID, baseHour, cfg.Alerting.MinConfidencePercent)}

	candidates := EvaluateVehicle(testWindow(), records, nil, 0, cfg)

	assert.Nil(t, findCandidate(candidates, models.AlertLowConfidence),
		"A score exactly at the minimum must not alert")
}

// ============================================================================
// TEST SUITE 2: CONSECUTIVE GAPS RULE
// ============================================================================

func consecutiveGapRecords(vehicleID uuid.UUID, start int64, hours int, confidence float64) []models.GapRecord {
	var records []models.GapRecord
	for i := 0; i < hours; i++ {
		records = append(records, createGapRecord(vehicleID, start+int64(i)*3600, confidence))
	}
	return records
}

func TestEvaluateVehicle_ConsecutiveGapsThresholds(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	vehicleID := uuid.New()
	window := testWindow()

	// Exactly at the maximum: no alert.
	records := consecutiveGapRecords(vehicleID, baseHour, cfg.Alerting.MaxConsecutiveGapHours, 90)
	candidates := EvaluateVehicle(window, records, nil, 0, cfg)
	assert.Nil(t, findCandidate(candidates, models.AlertConsecutiveGaps))

	// One past the maximum: warning.
	records = consecutiveGapRecords(vehicleID, baseHour, cfg.Alerting.MaxConsecutiveGapHours+1, 90)
	candidates = EvaluateVehicle(window, records, nil, 0, cfg)
	candidate := findCandidate(candidates, models.AlertConsecutiveGaps)
	require.NotNil(t, candidate)
	assert.Equal(t, models.SeverityWarning, candidate.Severity)
	assert.Equal(t, cfg.Alerting.MaxConsecutiveGapHours+1, *candidate.Metrics.LongestRunHours)

	// Twice the maximum: critical.
	records = consecutiveGapRecords(vehicleID, baseHour, 2*cfg.Alerting.MaxConsecutiveGapHours, 90)
	candidates = EvaluateVehicle(window, records, nil, 0, cfg)
	candidate = findCandidate(candidates, models.AlertConsecutiveGaps)
	require.NotNil(t, candidate)
	assert.Equal(t, models.SeverityCritical, candidate.Severity)
}

func TestEvaluateVehicle_OutageMatchedRunIsDowngraded(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	vehicleID := uuid.New()
	outageID := uuid.New()

	records := consecutiveGapRecords(vehicleID, baseHour, 2*cfg.Alerting.MaxConsecutiveGapHours, 90)
	for i := range records {
		records[i].Factors.OutageID = &outageID
	}

	candidates := EvaluateVehicle(testWindow(), records, nil, 0, cfg)
	candidate := findCandidate(candidates, models.AlertConsecutiveGaps)

	require.NotNil(t, candidate)
	assert.Equal(t, models.SeverityWarning, candidate.Severity,
		"A run fully explained by an outage is downgraded one level")
	assert.Equal(t, len(records), candidate.Metrics.OutageMatchedGaps)
}

func TestEvaluateVehicle_SeparateRunsAreNotJoined(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	vehicleID := uuid.New()

	// Two runs of 4 hours separated by one covered hour: neither exceeds 6.
	records := consecutiveGapRecords(vehicleID, baseHour, 4, 90)
	records = append(records, consecutiveGapRecords(vehicleID, baseHour+5*3600, 4, 90)...)

	candidates := EvaluateVehicle(testWindow(), records, nil, 0, cfg)

	assert.Nil(t, findCandidate(candidates, models.AlertConsecutiveGaps))
}

// ============================================================================
// TEST SUITE 3: PERCENTAGE AND PROFILED RULES
// ============================================================================

func TestEvaluateVehicle_HighGapPercentage(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	vehicleID := uuid.New()

	// 24-hour window keeps the record count manageable: 6 of 24 hours is 25%.
	window := models.ReportPeriod{Start: baseHour, End: baseHour + 24*3600}
	var records []models.GapRecord
	for i := 0; i < 6; i++ {
		records = append(records, createGapRecord(vehicleID, baseHour+int64(i*2)*3600, 90))
	}

	candidates := EvaluateVehicle(window, records, nil, 0, cfg)
	candidate := findCandidate(candidates, models.AlertHighGapPercentage)

	require.NotNil(t, candidate)
	assert.Equal(t, models.SeverityWarning, candidate.Severity)
	assert.InDelta(t, 25.0, candidate.Metrics.GapPercent, 0.001)

	// 12 of 24 hours is 50%, past twice the 20% maximum.
	records = records[:0]
	for i := 0; i < 12; i++ {
		records = append(records, createGapRecord(vehicleID, baseHour+int64(i*2)*3600, 90))
	}
	candidates = EvaluateVehicle(window, records, nil, 0, cfg)
	candidate = findCandidate(candidates, models.AlertHighGapPercentage)
	require.NotNil(t, candidate)
	assert.Equal(t, models.SeverityCritical, candidate.Severity)
}

func TestEvaluateVehicle_ProfiledAnomalyAlwaysCritical(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	vehicleID := uuid.New()

	record := createGapRecord(vehicleID, baseHour, cfg.Alerting.ProfiledPeriodMinConfidencePercent-1)
	record.Factors.ProfiledPeriod = true

	candidates := EvaluateVehicle(testWindow(), []models.GapRecord{record}, nil, 0, cfg)
	candidate := findCandidate(candidates, models.AlertProfiledAnomaly)

	require.NotNil(t, candidate)
	assert.Equal(t, models.SeverityCritical, candidate.Severity,
		"A profiled-window anomaly is always critical")
	assert.Equal(t, 1, *candidate.Metrics.ProfiledGapCount)
}

func TestEvaluateVehicle_ProfiledGapAboveThresholdIsFine(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	vehicleID := uuid.New()

	record := createGapRecord(vehicleID, baseHour, cfg.Alerting.ProfiledPeriodMinConfidencePercent)
	record.Factors.ProfiledPeriod = true

	candidates := EvaluateVehicle(testWindow(), []models.GapRecord{record}, nil, 0, cfg)

	assert.Nil(t, findCandidate(candidates, models.AlertProfiledAnomaly))
}

// ============================================================================
// TEST SUITE 4: MONTHLY THRESHOLD RULE
// ============================================================================

func TestEvaluateVehicle_MonthlyThresholdIsContractRelevant(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	vehicleID := uuid.New()

	// 80 of 720 monthly hours missing is ~11.1%, above the 10% tolerance.
	monthly := consecutiveGapRecords(vehicleID, baseHour, 80, 90)

	candidates := EvaluateVehicle(testWindow(), nil, monthly, 720, cfg)
	candidate := findCandidate(candidates, models.AlertMonthlyThreshold)

	require.NotNil(t, candidate)
	assert.True(t, candidate.ContractRelevant, "Monthly threshold breaches feed contract review")
	assert.Equal(t, models.SeverityWarning, candidate.Severity)
	assert.InDelta(t, 11.11, *candidate.Metrics.MonthlyDowntimePercent, 0.01)
}

func TestEvaluateVehicle_MonthlyWithinToleranceDoesNotAlert(t *testing.T) {
	cfg := config.DefaultScoringConfig()
	vehicleID := uuid.New()

	monthly := consecutiveGapRecords(vehicleID, baseHour, 72, 90)

	candidates := EvaluateVehicle(testWindow(), nil, monthly, 720, cfg)

	assert.Nil(t, findCandidate(candidates, models.AlertMonthlyThreshold),
		"Exactly 10% downtime is within tolerance")
}

func TestEvaluateVehicle_NoRecordsNoCandidates(t *testing.T) {
	cfg := config.DefaultScoringConfig()

	candidates := EvaluateVehicle(testWindow(), nil, nil, 720, cfg)

	assert.Empty(t, candidates)
}

// ============================================================================
// TEST SUITE 5: RUN GROUPING
// ============================================================================

func TestConsecutiveRuns(t *testing.T) {
	vehicleID := uuid.New()

	records := []models.GapRecord{
		createGapRecord(vehicleID, baseHour, 90),
		createGapRecord(vehicleID, baseHour+3600, 90),
		createGapRecord(vehicleID, baseHour+2*3600, 90),
		createGapRecord(vehicleID, baseHour+5*3600, 90),
		createGapRecord(vehicleID, baseHour+8*3600, 90),
		createGapRecord(vehicleID, baseHour+9*3600, 90),
	}

	runs := consecutiveRuns(records)

	require.Len(t, runs, 3)
	assert.Len(t, runs[0], 3)
	assert.Len(t, runs[1], 1)
	assert.Len(t, runs[2], 2)
}
