package services

import (
	"certification-service/internal/models"

	"github.com/google/uuid"
)

// CorrelationSources are the three read-only lookups the scorer consults,
// pre-fetched for one vehicle and period.
type CorrelationSources struct {
	Outages  []models.OutagePeriod
	Failures []models.FetchFailureLog
	Windows  []models.ProfilingWindow
}

// CorrelationResult is what the sources say about one gap hour.
type CorrelationResult struct {
	Outage   *models.OutagePeriod
	Failure  *models.FetchFailureLog
	Profiled bool
}

// Correlate matches one gap hour against all three sources.
func Correlate(src CorrelationSources, vehicleID uuid.UUID, brand string, hour, now int64) CorrelationResult {
	return CorrelationResult{
		Outage:   FindOutage(src.Outages, vehicleID, brand, hour, now),
		Failure:  FindFailure(src.Failures, hour),
		Profiled: InProfilingWindow(src.Windows, hour),
	}
}

// FindOutage resolves the outage period covering the gap hour, or nil. An
// open-ended outage covers [start, now); an outage whose end precedes the
// hour never matches. Ties resolve deterministically: a vehicle-specific
// outage outranks a fleet-wide one, then the longest duration wins, then
// the most recently created. The same input always yields the same match.
func FindOutage(outages []models.OutagePeriod, vehicleID uuid.UUID, brand string, hour, now int64) *models.OutagePeriod {
	var best *models.OutagePeriod
	for i := range outages {
		o := &outages[i]
		if !o.Covers(hour, now) {
			continue
		}
		switch o.OutageType {
		case models.OutageVehicle:
			if o.VehicleID == nil || *o.VehicleID != vehicleID {
				continue
			}
		case models.OutageFleetAPI:
			if o.Brand != brand {
				continue
			}
		default:
			continue
		}

		if best == nil || outranks(o, best, now) {
			best = o
		}
	}
	return best
}

func outranks(a, b *models.OutagePeriod, now int64) bool {
	if a.OutageType != b.OutageType {
		return a.OutageType == models.OutageVehicle
	}
	da, db := a.Duration(now), b.Duration(now)
	if da != db {
		return da > db
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// FindFailure returns the fetch failure attempt logged inside the gap hour,
// or nil. With several attempts in the same hour the latest wins.
func FindFailure(failures []models.FetchFailureLog, hour int64) *models.FetchFailureLog {
	var best *models.FetchFailureLog
	for i := range failures {
		f := &failures[i]
		if f.AttemptedAt < hour || f.AttemptedAt >= hour+hourSeconds {
			continue
		}
		if best == nil || f.AttemptedAt > best.AttemptedAt {
			best = f
		}
	}
	return best
}

// InProfilingWindow reports whether the gap hour falls inside any active
// adaptive-profiling window.
func InProfilingWindow(windows []models.ProfilingWindow, hour int64) bool {
	for _, w := range windows {
		if w.Contains(hour) {
			return true
		}
	}
	return false
}
