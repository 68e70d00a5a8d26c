package repository

import (
	"context"
	"fmt"

	"certification-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type OutageRepository struct {
	db *sqlx.DB
}

func NewOutageRepository(db *sqlx.DB) *OutageRepository {
	return &OutageRepository{db: db}
}

// Create persists a new outage period (manual upload or auto-detection).
func (r *OutageRepository) Create(ctx context.Context, outage *models.OutagePeriod) error {
	query := `
		INSERT INTO outage_period (id, outage_type, brand, vehicle_id, company_id,
		       start_timestamp, end_timestamp, auto_detected, evidence_note, created_at)
		VALUES (:id, :outage_type, :brand, :vehicle_id, :company_id,
		       :start_timestamp, :end_timestamp, :auto_detected, :evidence_note, :created_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, outage)
	if err != nil {
		return fmt.Errorf("failed to create outage period: %w", err)
	}

	return nil
}

// GetOverlapping returns outages relevant to the vehicle or its brand that
// overlap [start, end). Open-ended outages always overlap.
func (r *OutageRepository) GetOverlapping(ctx context.Context, vehicleID uuid.UUID, brand string, start, end int64) ([]models.OutagePeriod, error) {
	var outages []models.OutagePeriod
	query := `
		SELECT id, outage_type, brand, vehicle_id, company_id,
		       start_timestamp, end_timestamp, auto_detected, evidence_note, created_at
		FROM outage_period
		WHERE (vehicle_id = $1 OR (outage_type = 'fleet_api' AND brand = $2))
		  AND start_timestamp < $4
		  AND (end_timestamp IS NULL OR end_timestamp > $3)
		ORDER BY start_timestamp ASC
	`

	err := r.db.SelectContext(ctx, &outages, query, vehicleID, brand, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get overlapping outages: %w", err)
	}

	return outages, nil
}

// GetAll retrieves outage periods with optional filters.
func (r *OutageRepository) GetAll(ctx context.Context, filters map[string]interface{}) ([]models.OutagePeriod, error) {
	var outages []models.OutagePeriod
	query := `
		SELECT id, outage_type, brand, vehicle_id, company_id,
		       start_timestamp, end_timestamp, auto_detected, evidence_note, created_at
		FROM outage_period
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if outageType, ok := filters["outage_type"].(models.OutageType); ok {
		query += fmt.Sprintf(" AND outage_type = $%d", argCount)
		args = append(args, outageType)
		argCount++
	}

	if brand, ok := filters["brand"].(string); ok {
		query += fmt.Sprintf(" AND brand = $%d", argCount)
		args = append(args, brand)
		argCount++
	}

	if ongoing, ok := filters["ongoing"].(bool); ok && ongoing {
		query += " AND end_timestamp IS NULL"
	}

	query += " ORDER BY start_timestamp DESC"

	err := r.db.SelectContext(ctx, &outages, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get outage periods: %w", err)
	}

	return outages, nil
}

// GetByID retrieves one outage period.
func (r *OutageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.OutagePeriod, error) {
	var outage models.OutagePeriod
	query := `
		SELECT id, outage_type, brand, vehicle_id, company_id,
		       start_timestamp, end_timestamp, auto_detected, evidence_note, created_at
		FROM outage_period
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &outage, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get outage period by id: %w", err)
	}

	return &outage, nil
}

// Close sets the end of an open-ended outage when connectivity resumes.
func (r *OutageRepository) Close(ctx context.Context, id uuid.UUID, end int64) error {
	query := `
		UPDATE outage_period
		SET end_timestamp = $2
		WHERE id = $1 AND end_timestamp IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, end)
	if err != nil {
		return fmt.Errorf("failed to close outage period: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("outage period not found or already closed")
	}

	return nil
}
