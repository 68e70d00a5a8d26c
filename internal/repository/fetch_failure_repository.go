package repository

import (
	"context"
	"fmt"

	"certification-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type FetchFailureRepository struct {
	db *sqlx.DB
}

func NewFetchFailureRepository(db *sqlx.DB) *FetchFailureRepository {
	return &FetchFailureRepository{db: db}
}

func (r *FetchFailureRepository) Create(ctx context.Context, entry *models.FetchFailureLog) error {
	query := `
		INSERT INTO fetch_failure_log (id, vehicle_id, attempted_at, reason,
		       error_detail, http_status, response_time_ms, created_at)
		VALUES (:id, :vehicle_id, :attempted_at, :reason,
		       :error_detail, :http_status, :response_time_ms, :created_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return fmt.Errorf("failed to create fetch failure log: %w", err)
	}

	return nil
}

// GetByVehicleAndRange returns failed fetch attempts in [start, end) ordered
// by attempt time.
func (r *FetchFailureRepository) GetByVehicleAndRange(ctx context.Context, vehicleID uuid.UUID, start, end int64) ([]models.FetchFailureLog, error) {
	var entries []models.FetchFailureLog
	query := `
		SELECT id, vehicle_id, attempted_at, reason, error_detail, http_status, response_time_ms, created_at
		FROM fetch_failure_log
		WHERE vehicle_id = $1 AND attempted_at >= $2 AND attempted_at < $3
		ORDER BY attempted_at ASC
	`

	err := r.db.SelectContext(ctx, &entries, query, vehicleID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get fetch failure logs: %w", err)
	}

	return entries, nil
}
