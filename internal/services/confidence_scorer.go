package services

import (
	"fmt"
	"strings"

	"certification-service/internal/config"
	"certification-service/internal/models"
)

// Score rates the plausibility of one missing hourly record as a confidence
// percentage in [0,100], together with the structured factors and a
// deterministic justification. It is a pure function of its inputs: the
// same gap context, correlation result and configuration always produce
// byte-identical output, which the integrity hash relies on.
func Score(ctx GapContext, corr CorrelationResult, cfg config.ScoringConfig) (float64, models.AnalysisFactors, string) {
	w := cfg.Weights
	factors := models.AnalysisFactors{
		HasPreviousRecord:   ctx.Previous != nil,
		HasNextRecord:       ctx.Next != nil,
		WithinTypicalUsage:  ctx.WithinTypicalUsage,
		ConsecutiveGapHours: ctx.ConsecutiveGapHours,
		ProfiledPeriod:      corr.Profiled,
	}

	var score float64
	var terms []string

	// Continuity: full credit with bounding records on both sides, half
	// with one, none otherwise.
	switch {
	case factors.HasPreviousRecord && factors.HasNextRecord:
		score += w.Continuity
		terms = append(terms, "bounding records on both sides")
	case factors.HasPreviousRecord || factors.HasNextRecord:
		score += w.Continuity * 0.5
		terms = append(terms, "bounding record on one side only")
	default:
		terms = append(terms, "no bounding records")
	}

	// Battery progression between the bounding records. An implausible jump
	// scales the term toward zero; with only one bounding record there is
	// no pair to compare, which neither supports nor contradicts the gap.
	batteryDelta, spanHours := batteryAcrossGap(ctx)
	switch {
	case batteryDelta != nil:
		factors.BatteryDeltaPrev = batteryDelta
		inverse := -*batteryDelta
		factors.BatteryDeltaNext = &inverse

		plausibility := batteryPlausibility(*batteryDelta, spanHours, cfg.BatteryDeltaMax)
		score += w.Battery * plausibility
		if plausibility >= 1 {
			terms = append(terms, fmt.Sprintf("battery progression plausible (%+.1f%%)", *batteryDelta))
		} else {
			terms = append(terms, fmt.Sprintf("battery progression implausible (%+.1f%%)", *batteryDelta))
		}
	case factors.HasPreviousRecord || factors.HasNextRecord:
		score += w.Battery * 0.5
		terms = append(terms, "battery progression unknown")
	default:
		terms = append(terms, "no battery data")
	}

	// Usage pattern: an idle vehicle going quiet outside its typical active
	// hours is less suspicious.
	if !ctx.WithinTypicalUsage {
		score += w.Pattern
		terms = append(terms, "gap outside typical usage hours")
	} else {
		terms = append(terms, "gap within typical usage hours")
	}

	// Gap length: inversely proportional to the length of the run.
	run := ctx.ConsecutiveGapHours
	if run < 1 {
		run = 1
	}
	score += w.GapLength / float64(run)
	if run == 1 {
		terms = append(terms, "isolated single-hour gap")
	} else {
		terms = append(terms, fmt.Sprintf("part of %d-hour gap run", run))
	}

	// Historical smoothing: a clean gap history earns trust that this gap
	// is anomalous but explainable. Credit decays linearly and reaches zero
	// at a 25% trailing gap rate.
	historical := 1 - ctx.HistoricalGapRate/0.25
	if historical < 0 {
		historical = 0
	}
	score += w.Historical * historical
	terms = append(terms, fmt.Sprintf("historical gap rate %.1f%%", ctx.HistoricalGapRate*100))

	// Documented technical failure during the hour: flat bonus.
	if corr.Failure != nil {
		reason := corr.Failure.Reason
		factors.FailureReason = &reason
		factors.TechnicalFailure = reason.IsTechnical()
		if factors.TechnicalFailure {
			score += w.TechProblemBonus
			terms = append(terms, fmt.Sprintf("documented technical failure: %s", reason))
		} else {
			terms = append(terms, fmt.Sprintf("fetch failure without technical cause: %s", reason))
		}
	}

	// Odometer movement across the gap: the vehicle was driving, not absent.
	if km := odometerAcrossGap(ctx); km != nil {
		factors.OdometerDeltaKm = km
		if *km > cfg.KmThreshold {
			score += w.KmBonus
			terms = append(terms, fmt.Sprintf("odometer advanced %.1f km across gap", *km))
		}
	}

	// Outage match: the single largest deterministic adjustment. The bonus
	// recorded in the factors is exactly the configured value for the type.
	if corr.Outage != nil {
		outageID := corr.Outage.ID
		outageType := corr.Outage.OutageType
		outageBrand := corr.Outage.Brand
		factors.OutageID = &outageID
		factors.OutageType = &outageType
		factors.OutageBrand = &outageBrand

		var bonus float64
		if outageType == models.OutageVehicle {
			bonus = w.VehicleOutageBonus
		} else {
			bonus = w.FleetAPIOutageBonus
		}
		factors.OutageBonusApplied = bonus
		score += bonus
		terms = append(terms, fmt.Sprintf("covered by %s outage %s (+%.1f)", outageType, outageID, bonus))
	}

	// Adaptive profile: a gap while someone was actively using the vehicle
	// is the most suspicious pattern the system can detect.
	if corr.Profiled {
		score += cfg.AdaptiveProfile.ProfiledMalus
		terms = append(terms, "gap during active profiling window")
	} else {
		score += cfg.AdaptiveProfile.NotProfiledBonus
		terms = append(terms, "no active profiling window")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return score, factors, strings.Join(terms, "; ")
}

// batteryAcrossGap returns the signed battery delta between the bounding
// records and the hour span it covers, or nil when either side is missing.
func batteryAcrossGap(ctx GapContext) (*float64, float64) {
	if ctx.Previous == nil || ctx.Next == nil {
		return nil, 0
	}
	if ctx.Previous.BatteryLevel == nil || ctx.Next.BatteryLevel == nil {
		return nil, 0
	}
	delta := *ctx.Next.BatteryLevel - *ctx.Previous.BatteryLevel
	span := float64(ctx.Next.RecordTimestamp-ctx.Previous.RecordTimestamp) / float64(hourSeconds)
	if span < 1 {
		span = 1
	}
	return &delta, span
}

// batteryPlausibility maps the observed delta to [0,1]: full credit within
// the hour-scaled bound, decaying linearly to zero at twice the bound.
func batteryPlausibility(delta, spanHours, maxPerHour float64) float64 {
	bound := maxPerHour * spanHours
	if bound <= 0 {
		return 0
	}
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	ratio := abs / bound
	if ratio <= 1 {
		return 1
	}
	credit := 2 - ratio
	if credit < 0 {
		return 0
	}
	return credit
}

func odometerAcrossGap(ctx GapContext) *float64 {
	if ctx.Previous == nil || ctx.Next == nil {
		return nil
	}
	if ctx.Previous.OdometerKm == nil || ctx.Next.OdometerKm == nil {
		return nil
	}
	delta := *ctx.Next.OdometerKm - *ctx.Previous.OdometerKm
	if delta < 0 {
		delta = 0
	}
	return &delta
}
