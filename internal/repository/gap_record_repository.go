package repository

import (
	"context"
	"fmt"

	"certification-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type GapRecordRepository struct {
	db *sqlx.DB
}

func NewGapRecordRepository(db *sqlx.DB) *GapRecordRepository {
	return &GapRecordRepository{db: db}
}

const gapRecordColumns = `id, vehicle_id, gap_timestamp, confidence, justification,
	       factors, report_id, certified_at, integrity_hash`

const insertGapRecordQuery = `
	INSERT INTO gap_record (id, vehicle_id, gap_timestamp, confidence, justification,
	       factors, report_id, certified_at, integrity_hash)
	VALUES (:id, :vehicle_id, :gap_timestamp, :confidence, :justification,
	       :factors, :report_id, :certified_at, :integrity_hash)
`

// CreateBatch appends the scored records for one certification run.
func (r *GapRecordRepository) CreateBatch(ctx context.Context, records []models.GapRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range records {
		if _, err := tx.NamedExecContext(ctx, insertGapRecordQuery, records[i]); err != nil {
			return fmt.Errorf("failed to insert gap record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit gap records: %w", err)
	}

	return nil
}

// ReplaceForReport supersedes the records of a regenerated report. The old
// records and the new ones swap inside one transaction, so a report is
// never observed half-certified.
func (r *GapRecordRepository) ReplaceForReport(ctx context.Context, reportID uuid.UUID, records []models.GapRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM gap_record WHERE report_id = $1`, reportID); err != nil {
		return fmt.Errorf("failed to supersede gap records: %w", err)
	}

	for i := range records {
		if _, err := tx.NamedExecContext(ctx, insertGapRecordQuery, records[i]); err != nil {
			return fmt.Errorf("failed to insert gap record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit gap records: %w", err)
	}

	return nil
}

// GetByID retrieves one certification record.
func (r *GapRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GapRecord, error) {
	var record models.GapRecord
	query := `SELECT ` + gapRecordColumns + ` FROM gap_record WHERE id = $1`

	err := r.db.GetContext(ctx, &record, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get gap record by id: %w", err)
	}

	return &record, nil
}

// GetByVehicleAndRange returns the records with gap hours in [start, end).
func (r *GapRecordRepository) GetByVehicleAndRange(ctx context.Context, vehicleID uuid.UUID, start, end int64) ([]models.GapRecord, error) {
	var records []models.GapRecord
	query := `
		SELECT ` + gapRecordColumns + `
		FROM gap_record
		WHERE vehicle_id = $1 AND gap_timestamp >= $2 AND gap_timestamp < $3
		ORDER BY gap_timestamp ASC
	`

	err := r.db.SelectContext(ctx, &records, query, vehicleID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get gap records: %w", err)
	}

	return records, nil
}

// GetByReport returns the records certified for one report.
func (r *GapRecordRepository) GetByReport(ctx context.Context, reportID uuid.UUID) ([]models.GapRecord, error) {
	var records []models.GapRecord
	query := `
		SELECT ` + gapRecordColumns + `
		FROM gap_record
		WHERE report_id = $1
		ORDER BY gap_timestamp ASC
	`

	err := r.db.SelectContext(ctx, &records, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to get gap records by report: %w", err)
	}

	return records, nil
}
