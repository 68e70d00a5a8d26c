package repository

import (
	"context"
	"fmt"

	"certification-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TelemetryRepository struct {
	db *sqlx.DB
}

func NewTelemetryRepository(db *sqlx.DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

// GetByVehicleAndRange returns the hourly records for [start, end) ordered
// by timestamp.
func (r *TelemetryRepository) GetByVehicleAndRange(ctx context.Context, vehicleID uuid.UUID, start, end int64) ([]models.TelemetryRecord, error) {
	var records []models.TelemetryRecord
	query := `
		SELECT id, vehicle_id, record_timestamp, battery_level, odometer_km, raw_payload, created_at
		FROM telemetry_record
		WHERE vehicle_id = $1 AND record_timestamp >= $2 AND record_timestamp < $3
		ORDER BY record_timestamp ASC
	`

	err := r.db.SelectContext(ctx, &records, query, vehicleID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get telemetry records: %w", err)
	}

	return records, nil
}

// GetVehicle retrieves one vehicle by ID.
func (r *TelemetryRepository) GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	query := `
		SELECT id, company_id, brand, vin, active, created_at
		FROM vehicle
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &vehicle, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle by id: %w", err)
	}

	return &vehicle, nil
}

// ListActiveVehicles returns all vehicles in scope for a detection cycle.
func (r *TelemetryRepository) ListActiveVehicles(ctx context.Context) ([]models.Vehicle, error) {
	var vehicles []models.Vehicle
	query := `
		SELECT id, company_id, brand, vin, active, created_at
		FROM vehicle
		WHERE active = true
		ORDER BY created_at ASC
	`

	err := r.db.SelectContext(ctx, &vehicles, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active vehicles: %w", err)
	}

	return vehicles, nil
}
