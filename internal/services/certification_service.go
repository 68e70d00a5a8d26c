package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"certification-service/internal/config"
	"certification-service/internal/models"
	"certification-service/internal/repository"

	"github.com/google/uuid"
)

// ErrIntegrityViolation is returned when a stored certification record no
// longer matches its recomputed hash. Fatal; surfaced for manual
// investigation and never auto-corrected.
var ErrIntegrityViolation = errors.New("gap record integrity hash mismatch")

const historyWindowDays = 30

// CertificationService turns located gaps into scored, justified, hashed
// gap records for a vehicle and reporting period.
type CertificationService struct {
	telemetryRepo *repository.TelemetryRepository
	outageRepo    *repository.OutageRepository
	failureRepo   *repository.FetchFailureRepository
	profilingRepo *repository.ProfilingRepository
	gapRepo       *repository.GapRecordRepository
	scoring       *config.ScoringStore
	now           func() time.Time
}

func NewCertificationService(
	telemetryRepo *repository.TelemetryRepository,
	outageRepo *repository.OutageRepository,
	failureRepo *repository.FetchFailureRepository,
	profilingRepo *repository.ProfilingRepository,
	gapRepo *repository.GapRecordRepository,
	scoring *config.ScoringStore,
) *CertificationService {
	return &CertificationService{
		telemetryRepo: telemetryRepo,
		outageRepo:    outageRepo,
		failureRepo:   failureRepo,
		profilingRepo: profilingRepo,
		gapRepo:       gapRepo,
		scoring:       scoring,
		now:           time.Now,
	}
}

// GenerateForVehicle certifies every missing hour of the period. The
// scoring configuration is snapshotted once for the whole run so a reload
// cannot split a report between two configurations. When reportID is set,
// a regenerated report supersedes its previous records.
func (s *CertificationService) GenerateForVehicle(ctx context.Context, vehicleID uuid.UUID, period models.ReportPeriod, reportID *uuid.UUID) ([]models.GapRecord, error) {
	if period.Hours() <= 0 {
		return nil, fmt.Errorf("invalid reporting period [%d, %d)", period.Start, period.End)
	}

	cfg := s.scoring.Snapshot()
	now := s.now().Unix()

	vehicle, err := s.telemetryRepo.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vehicle: %w", err)
	}

	historyStart := period.Start - int64(historyWindowDays*24*hourSeconds)

	// The period records and the three correlation sources are independent
	// reads; fetch them in parallel.
	var (
		records  []models.TelemetryRecord
		history  []models.TelemetryRecord
		outages  []models.OutagePeriod
		failures []models.FetchFailureLog
		windows  []models.ProfilingWindow

		fetchErrs []error
		wg        sync.WaitGroup
		mu        sync.Mutex
	)

	fetch := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				fetchErrs = append(fetchErrs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	fetch("fetch telemetry", func() error {
		var err error
		records, err = s.telemetryRepo.GetByVehicleAndRange(ctx, vehicleID, period.Start, period.End)
		return err
	})
	fetch("fetch history", func() error {
		var err error
		history, err = s.telemetryRepo.GetByVehicleAndRange(ctx, vehicleID, historyStart, period.Start)
		return err
	})
	fetch("fetch outages", func() error {
		var err error
		outages, err = s.outageRepo.GetOverlapping(ctx, vehicleID, vehicle.Brand, period.Start, period.End)
		return err
	})
	fetch("fetch failure log", func() error {
		var err error
		failures, err = s.failureRepo.GetByVehicleAndRange(ctx, vehicleID, period.Start, period.End)
		return err
	})
	fetch("fetch profiling windows", func() error {
		var err error
		windows, err = s.profilingRepo.GetByVehicleAndRange(ctx, vehicleID, period.Start, period.End)
		return err
	})

	wg.Wait()

	if len(fetchErrs) > 0 {
		for _, err := range fetchErrs {
			slog.Error("Certification data fetch error", "vehicle_id", vehicleID, "error", err)
		}
		return nil, fmt.Errorf("failed to fetch certification data: %v", fetchErrs)
	}

	usage := TypicalUsageHours(history)
	gapRate := HistoricalGapRate(history, models.ReportPeriod{Start: historyStart, End: period.Start})
	sources := CorrelationSources{Outages: outages, Failures: failures, Windows: windows}

	gaps := LocateGaps(vehicleID, records, period, usage, gapRate)
	certifiedAt := s.now().UTC()

	results := make([]models.GapRecord, 0, len(gaps))
	for _, gap := range gaps {
		corr := Correlate(sources, vehicleID, vehicle.Brand, gap.GapTimestamp, now)
		confidence, factors, justification := Score(gap, corr, cfg)

		record := models.GapRecord{
			ID:            uuid.New(),
			VehicleID:     vehicleID,
			GapTimestamp:  gap.GapTimestamp,
			Confidence:    confidence,
			Justification: justification,
			Factors:       factors,
			ReportID:      reportID,
			CertifiedAt:   certifiedAt,
		}
		record.IntegrityHash = record.ComputeIntegrityHash()
		results = append(results, record)
	}

	if reportID != nil {
		err = s.gapRepo.ReplaceForReport(ctx, *reportID, results)
	} else {
		err = s.gapRepo.CreateBatch(ctx, results)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to persist gap records: %w", err)
	}

	slog.Info("Certification run completed",
		"vehicle_id", vehicleID,
		"period_hours", period.Hours(),
		"gap_count", len(results))

	return results, nil
}

// VerifyIntegrity recomputes the hash of a stored record. A mismatch is
// tamper evidence and comes back as ErrIntegrityViolation.
func (s *CertificationService) VerifyIntegrity(ctx context.Context, recordID uuid.UUID) (*models.GapRecord, error) {
	record, err := s.gapRepo.GetByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load gap record: %w", err)
	}

	if record.ComputeIntegrityHash() != record.IntegrityHash {
		slog.Error("Gap record integrity violation",
			"record_id", recordID,
			"vehicle_id", record.VehicleID,
			"gap_timestamp", record.GapTimestamp)
		return record, ErrIntegrityViolation
	}

	return record, nil
}
