package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"certification-service/internal/config"
	"certification-service/internal/database/redis"
	"certification-service/internal/event"
	"certification-service/internal/models"
	"certification-service/internal/repository"

	"github.com/google/uuid"
)

const monthlyWindowDays = 30

// CandidateAlert is one threshold breach found by the evaluation pass,
// before dedup and persistence.
type CandidateAlert struct {
	Type             models.AlertType
	Severity         models.AlertSeverity
	Description      string
	Metrics          models.AlertMetrics
	ContractRelevant bool
}

// AlertEngine runs the periodic detection cycle over certified gap records
// and raises alerts when configured thresholds are breached.
type AlertEngine struct {
	telemetryRepo *repository.TelemetryRepository
	gapRepo       *repository.GapRecordRepository
	alertRepo     *repository.AlertRepository
	scoring       *config.ScoringStore
	dedup         *redis.Client
	publisher     *event.AlertPublisher
	now           func() time.Time

	// Serializes timer-driven and forced cycles; a trigger arriving while a
	// cycle runs joins that cycle instead of starting a duplicate.
	mu sync.Mutex
}

func NewAlertEngine(
	telemetryRepo *repository.TelemetryRepository,
	gapRepo *repository.GapRecordRepository,
	alertRepo *repository.AlertRepository,
	scoring *config.ScoringStore,
	dedup *redis.Client,
	publisher *event.AlertPublisher,
) *AlertEngine {
	return &AlertEngine{
		telemetryRepo: telemetryRepo,
		gapRepo:       gapRepo,
		alertRepo:     alertRepo,
		scoring:       scoring,
		dedup:         dedup,
		publisher:     publisher,
		now:           time.Now,
	}
}

// RunCycle evaluates every active vehicle over the lookback window and
// persists the alerts that survive dedup. Returns the number created.
func (e *AlertEngine) RunCycle(ctx context.Context, forced bool) (int, error) {
	if !e.mu.TryLock() {
		slog.Info("Detection cycle already in progress, skipping trigger", "forced", forced)
		return 0, nil
	}
	defer e.mu.Unlock()

	// Snapshot once: a configuration reload never applies mid-cycle.
	cfg := e.scoring.Snapshot()
	if err := cfg.Validate(); err != nil {
		return 0, fmt.Errorf("invalid configuration at cycle start: %w", err)
	}

	windowEnd := e.now().UTC().Truncate(time.Hour).Unix()
	windowStart := windowEnd - int64(cfg.Alerting.LookbackDays)*24*hourSeconds
	monthlyStart := windowEnd - int64(monthlyWindowDays)*24*hourSeconds

	vehicles, err := e.telemetryRepo.ListActiveVehicles(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list vehicles for cycle: %w", err)
	}

	created := 0
	for _, vehicle := range vehicles {
		n, err := e.evaluateAndPersist(ctx, vehicle.ID, windowStart, windowEnd, monthlyStart, cfg, forced)
		if err != nil {
			slog.Error("Detection failed for vehicle", "vehicle_id", vehicle.ID, "error", err)
			continue
		}
		created += n
	}

	slog.Info("Detection cycle completed",
		"vehicles", len(vehicles),
		"alerts_created", created,
		"forced", forced)

	return created, nil
}

func (e *AlertEngine) evaluateAndPersist(ctx context.Context, vehicleID uuid.UUID, windowStart, windowEnd, monthlyStart int64, cfg config.ScoringConfig, forced bool) (int, error) {
	records, err := e.gapRepo.GetByVehicleAndRange(ctx, vehicleID, windowStart, windowEnd)
	if err != nil {
		return 0, err
	}
	monthly, err := e.gapRepo.GetByVehicleAndRange(ctx, vehicleID, monthlyStart, windowEnd)
	if err != nil {
		return 0, err
	}

	window := models.ReportPeriod{Start: windowStart, End: windowEnd}
	monthlyHours := models.ReportPeriod{Start: monthlyStart, End: windowEnd}.Hours()
	candidates := EvaluateVehicle(window, records, monthly, monthlyHours, cfg)

	created := 0
	for _, candidate := range candidates {
		ok, err := e.claimCandidate(ctx, vehicleID, candidate, cfg)
		if err != nil {
			slog.Error("Alert dedup check failed",
				"vehicle_id", vehicleID,
				"alert_type", candidate.Type,
				"error", err)
			continue
		}
		if !ok {
			continue
		}

		alert, err := e.persistAlert(ctx, vehicleID, candidate, forced)
		if err != nil {
			// Give the condition another chance next cycle.
			if e.dedup != nil {
				_ = e.dedup.ReleaseDedupKey(ctx, dedupKey(vehicleID, candidate))
			}
			slog.Error("Failed to persist alert",
				"vehicle_id", vehicleID,
				"alert_type", candidate.Type,
				"error", err)
			continue
		}

		e.notify(alert, event.AlertEventCreated)
		created++
	}

	return created, nil
}

// claimCandidate enforces idempotent detection: the Redis key guards the
// current cycle window, the storage check guards anything Redis forgot.
func (e *AlertEngine) claimCandidate(ctx context.Context, vehicleID uuid.UUID, candidate CandidateAlert, cfg config.ScoringConfig) (bool, error) {
	open, err := e.alertRepo.HasOpenOverlapping(ctx, vehicleID, candidate.Type,
		candidate.Metrics.WindowStart, candidate.Metrics.WindowEnd)
	if err != nil {
		return false, err
	}
	if open {
		return false, nil
	}

	if e.dedup == nil {
		return true, nil
	}
	return e.dedup.ClaimDedupKey(ctx, dedupKey(vehicleID, candidate), cfg.Alerting.DedupTTL)
}

func dedupKey(vehicleID uuid.UUID, candidate CandidateAlert) string {
	return fmt.Sprintf("gap_alert:dedup:%s:%s:%d", vehicleID, candidate.Type, candidate.Metrics.WindowEnd)
}

func (e *AlertEngine) persistAlert(ctx context.Context, vehicleID uuid.UUID, candidate CandidateAlert, forced bool) (*models.GapAlert, error) {
	now := e.now().UTC()
	alert := &models.GapAlert{
		ID:               uuid.New(),
		VehicleID:        vehicleID,
		AlertType:        candidate.Type,
		Severity:         candidate.Severity,
		Status:           models.AlertOpen,
		DetectedAt:       now,
		Description:      candidate.Description,
		Metrics:          candidate.Metrics,
		ContractRelevant: candidate.ContractRelevant,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	action := models.AuditAutoDetected
	if forced {
		action = models.AuditAlertCreated
	}
	notes := candidate.Description
	audit := &models.GapAuditLog{
		ID:        uuid.New(),
		AlertID:   &alert.ID,
		VehicleID: vehicleID,
		Action:    action,
		Actor:     nil, // system
		Notes:     &notes,
		CreatedAt: now,
	}

	if err := e.alertRepo.CreateWithAudit(ctx, alert, audit); err != nil {
		return nil, err
	}
	return alert, nil
}

// notify publishes the alert event without blocking the cycle; delivery
// failure is logged and otherwise ignored.
func (e *AlertEngine) notify(alert *models.GapAlert, kind event.AlertEventKind) {
	if e.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := e.publisher.PublishAlertEvent(ctx, event.AlertEventMessage{
			Kind:        kind,
			AlertID:     alert.ID,
			VehicleID:   alert.VehicleID,
			AlertType:   alert.AlertType,
			Severity:    alert.Severity,
			Status:      alert.Status,
			Description: alert.Description,
			DetectedAt:  alert.DetectedAt,
		})
		if err != nil {
			slog.Warn("Alert notification failed", "alert_id", alert.ID, "error", err)
		}
	}()
}

// EvaluateVehicle runs every threshold rule over the certified gap records
// of one vehicle. Pure: no storage access, no clock.
func EvaluateVehicle(window models.ReportPeriod, records, monthly []models.GapRecord, monthlyHours int, cfg config.ScoringConfig) []CandidateAlert {
	if len(records) == 0 && len(monthly) == 0 {
		return nil
	}

	base := baseMetrics(window, records)
	var candidates []CandidateAlert

	if c := evaluateLowConfidence(records, base, cfg); c != nil {
		candidates = append(candidates, *c)
	}
	if c := evaluateConsecutiveGaps(records, base, cfg); c != nil {
		candidates = append(candidates, *c)
	}
	if c := evaluateHighGapPercentage(base, cfg); c != nil {
		candidates = append(candidates, *c)
	}
	if c := evaluateProfiledAnomaly(records, base, cfg); c != nil {
		candidates = append(candidates, *c)
	}
	if c := evaluateMonthlyThreshold(monthly, monthlyHours, base, cfg); c != nil {
		candidates = append(candidates, *c)
	}

	return candidates
}

func baseMetrics(window models.ReportPeriod, records []models.GapRecord) models.AlertMetrics {
	metrics := models.AlertMetrics{
		WindowStart: window.Start,
		WindowEnd:   window.End,
		GapHours:    len(records),
	}

	if hours := window.Hours(); hours > 0 {
		metrics.GapPercent = float64(len(records)) / float64(hours) * 100
	}

	if len(records) > 0 {
		var sum float64
		for _, r := range records {
			sum += r.Confidence
			if r.Factors.OutageID != nil {
				metrics.OutageMatchedGaps++
			}
		}
		metrics.AverageConfidence = sum / float64(len(records))
	}

	return metrics
}

func evaluateLowConfidence(records []models.GapRecord, base models.AlertMetrics, cfg config.ScoringConfig) *CandidateAlert {
	if len(records) == 0 {
		return nil
	}

	lowest := records[0].Confidence
	for _, r := range records[1:] {
		if r.Confidence < lowest {
			lowest = r.Confidence
		}
	}

	min := cfg.Alerting.MinConfidencePercent
	if lowest >= min {
		return nil
	}

	// Severity scales with how far below the threshold the worst gap sits.
	shortfall := min - lowest
	severity := models.SeverityInfo
	switch {
	case shortfall > 25:
		severity = models.SeverityCritical
	case shortfall > 10:
		severity = models.SeverityWarning
	}

	metrics := base
	metrics.LowestConfidence = &lowest

	return &CandidateAlert{
		Type:     models.AlertLowConfidence,
		Severity: severity,
		Description: fmt.Sprintf("gap certified at %.1f%% confidence, below the %.1f%% minimum",
			lowest, min),
		Metrics: metrics,
	}
}

func evaluateConsecutiveGaps(records []models.GapRecord, base models.AlertMetrics, cfg config.ScoringConfig) *CandidateAlert {
	runs := consecutiveRuns(records)
	if len(runs) == 0 {
		return nil
	}

	var longest []models.GapRecord
	for _, run := range runs {
		if len(run) > len(longest) {
			longest = run
		}
	}

	max := cfg.Alerting.MaxConsecutiveGapHours
	if len(longest) <= max {
		return nil
	}

	severity := models.SeverityWarning
	if len(longest) >= 2*max {
		severity = models.SeverityCritical
	}

	// A run explained by a matched outage is treated more leniently than an
	// equivalent unexplained run.
	matched := 0
	for _, r := range longest {
		if r.Factors.OutageID != nil {
			matched++
		}
	}
	if float64(matched) >= 0.8*float64(len(longest)) {
		severity = downgrade(severity)
	}

	runHours := len(longest)
	metrics := base
	metrics.LongestRunHours = &runHours

	return &CandidateAlert{
		Type:     models.AlertConsecutiveGaps,
		Severity: severity,
		Description: fmt.Sprintf("%d consecutive gap hours exceed the configured maximum of %d (%d outage-matched)",
			runHours, max, matched),
		Metrics: metrics,
	}
}

func evaluateHighGapPercentage(base models.AlertMetrics, cfg config.ScoringConfig) *CandidateAlert {
	max := cfg.Alerting.MaxGapPercentOfPeriod
	if base.GapPercent <= max {
		return nil
	}

	severity := models.SeverityWarning
	if base.GapPercent > 2*max {
		severity = models.SeverityCritical
	}

	return &CandidateAlert{
		Type:     models.AlertHighGapPercentage,
		Severity: severity,
		Description: fmt.Sprintf("%.1f%% of the period is missing, above the %.1f%% maximum",
			base.GapPercent, max),
		Metrics: base,
	}
}

func evaluateProfiledAnomaly(records []models.GapRecord, base models.AlertMetrics, cfg config.ScoringConfig) *CandidateAlert {
	count := 0
	for _, r := range records {
		if r.Factors.ProfiledPeriod && r.Confidence < cfg.Alerting.ProfiledPeriodMinConfidencePercent {
			count++
		}
	}
	if count == 0 {
		return nil
	}

	metrics := base
	metrics.ProfiledGapCount = &count

	// A blackout during confirmed active usage is always critical.
	return &CandidateAlert{
		Type:     models.AlertProfiledAnomaly,
		Severity: models.SeverityCritical,
		Description: fmt.Sprintf("%d gap(s) during active profiling windows scored below %.1f%%",
			count, cfg.Alerting.ProfiledPeriodMinConfidencePercent),
		Metrics: metrics,
	}
}

func evaluateMonthlyThreshold(monthly []models.GapRecord, monthlyHours int, base models.AlertMetrics, cfg config.ScoringConfig) *CandidateAlert {
	if monthlyHours <= 0 || len(monthly) == 0 {
		return nil
	}

	downtime := float64(len(monthly)) / float64(monthlyHours) * 100
	max := cfg.Alerting.MaxMonthlyDowntimePercent
	if downtime <= max {
		return nil
	}

	metrics := base
	metrics.MonthlyDowntimePercent = &downtime

	return &CandidateAlert{
		Type:     models.AlertMonthlyThreshold,
		Severity: models.SeverityWarning,
		Description: fmt.Sprintf("monthly downtime at %.1f%%, above the contractual %.1f%% tolerance",
			downtime, max),
		Metrics:          metrics,
		ContractRelevant: true,
	}
}

// consecutiveRuns groups records into runs of adjacent gap hours. Records
// must be ordered by gap timestamp.
func consecutiveRuns(records []models.GapRecord) [][]models.GapRecord {
	var runs [][]models.GapRecord
	var current []models.GapRecord

	for i, r := range records {
		if i > 0 && r.GapTimestamp-records[i-1].GapTimestamp == hourSeconds {
			current = append(current, r)
			continue
		}
		if len(current) > 0 {
			runs = append(runs, current)
		}
		current = []models.GapRecord{r}
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}

	return runs
}

func downgrade(severity models.AlertSeverity) models.AlertSeverity {
	switch severity {
	case models.SeverityCritical:
		return models.SeverityWarning
	case models.SeverityWarning:
		return models.SeverityInfo
	default:
		return models.SeverityInfo
	}
}
