package repository

import (
	"context"
	"fmt"

	"certification-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type ProfilingRepository struct {
	db *sqlx.DB
}

func NewProfilingRepository(db *sqlx.DB) *ProfilingRepository {
	return &ProfilingRepository{db: db}
}

// GetByVehicleAndRange returns the adaptive-profiling windows overlapping
// [start, end).
func (r *ProfilingRepository) GetByVehicleAndRange(ctx context.Context, vehicleID uuid.UUID, start, end int64) ([]models.ProfilingWindow, error) {
	var windows []models.ProfilingWindow
	query := `
		SELECT id, vehicle_id, user_id, start_timestamp, end_timestamp, created_at
		FROM profiling_window
		WHERE vehicle_id = $1 AND start_timestamp < $3 AND end_timestamp > $2
		ORDER BY start_timestamp ASC
	`

	err := r.db.SelectContext(ctx, &windows, query, vehicleID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get profiling windows: %w", err)
	}

	return windows, nil
}
