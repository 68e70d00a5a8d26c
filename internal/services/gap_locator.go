package services

import (
	"time"

	"certification-service/internal/models"

	"github.com/google/uuid"
)

// GapContext is everything the scorer needs to know about one missing
// hourly record. Previous/Next are the records at exactly hour-1/hour+1
// when present; a gap inside a longer run therefore has neither.
type GapContext struct {
	VehicleID           uuid.UUID
	GapTimestamp        int64
	Previous            *models.TelemetryRecord
	Next                *models.TelemetryRecord
	ConsecutiveGapHours int
	WithinTypicalUsage  bool
	HistoricalGapRate   float64
}

const hourSeconds = 3600

// LocateGaps determines which expected hourly timestamps in the period have
// no telemetry record and builds one GapContext per missing hour. Records
// outside the period are ignored; records with malformed timestamps are
// treated as absent rather than failing the run.
func LocateGaps(
	vehicleID uuid.UUID,
	records []models.TelemetryRecord,
	period models.ReportPeriod,
	usageHours [24]bool,
	historicalGapRate float64,
) []GapContext {
	if period.Hours() <= 0 {
		return nil
	}

	present := make(map[int64]*models.TelemetryRecord, len(records))
	for i := range records {
		r := &records[i]
		hour := truncateHour(r.RecordTimestamp)
		if hour < period.Start || hour >= period.End {
			continue
		}
		if existing, ok := present[hour]; !ok || r.RecordTimestamp > existing.RecordTimestamp {
			present[hour] = r
		}
	}

	var gaps []GapContext
	for hour := period.Start; hour < period.End; hour += hourSeconds {
		if _, ok := present[hour]; ok {
			continue
		}

		// Length of the run of consecutive missing hours containing this one.
		runStart := hour
		for runStart-hourSeconds >= period.Start {
			if _, ok := present[runStart-hourSeconds]; ok {
				break
			}
			runStart -= hourSeconds
		}
		runEnd := hour
		for runEnd+hourSeconds < period.End {
			if _, ok := present[runEnd+hourSeconds]; ok {
				break
			}
			runEnd += hourSeconds
		}
		run := int((runEnd-runStart)/hourSeconds) + 1

		gaps = append(gaps, GapContext{
			VehicleID:           vehicleID,
			GapTimestamp:        hour,
			Previous:            present[hour-hourSeconds],
			Next:                present[hour+hourSeconds],
			ConsecutiveGapHours: run,
			WithinTypicalUsage:  usageHours[hourOfDay(hour)],
			HistoricalGapRate:   historicalGapRate,
		})
	}

	return gaps
}

// TypicalUsageHours derives the vehicle's historically active hours of day
// from trailing telemetry. An hour of day counts as active when the vehicle
// showed odometer movement into that hour at least three times in the
// history window.
func TypicalUsageHours(history []models.TelemetryRecord) [24]bool {
	var movement [24]int
	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1], history[i]
		if prev.OdometerKm == nil || cur.OdometerKm == nil {
			continue
		}
		if cur.RecordTimestamp-prev.RecordTimestamp != hourSeconds {
			continue
		}
		if *cur.OdometerKm-*prev.OdometerKm > 0.5 {
			movement[hourOfDay(cur.RecordTimestamp)]++
		}
	}

	var usage [24]bool
	for h, count := range movement {
		usage[h] = count >= 3
	}
	return usage
}

// HistoricalGapRate is the share of expected hourly records missing from
// the trailing window, in [0,1]. A vehicle with a clean history earns more
// trust for an isolated gap.
func HistoricalGapRate(history []models.TelemetryRecord, window models.ReportPeriod) float64 {
	expected := window.Hours()
	if expected <= 0 {
		return 0
	}

	seen := make(map[int64]struct{}, len(history))
	for _, r := range history {
		hour := truncateHour(r.RecordTimestamp)
		if hour >= window.Start && hour < window.End {
			seen[hour] = struct{}{}
		}
	}

	missing := expected - len(seen)
	if missing <= 0 {
		return 0
	}
	return float64(missing) / float64(expected)
}

func truncateHour(ts int64) int64 {
	return ts - ts%hourSeconds
}

func hourOfDay(ts int64) int {
	return time.Unix(ts, 0).UTC().Hour()
}
