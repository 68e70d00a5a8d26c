package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"certification-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrTransitionConflict is returned when a concurrent writer already moved
// the alert out of the expected status. Retryable by re-reading the alert.
var ErrTransitionConflict = errors.New("alert status changed concurrently")

type AlertRepository struct {
	db *sqlx.DB
}

func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, vehicle_id, report_id, alert_type, severity, status, detected_at,
	       description, metrics, contract_relevant, document_object, document_hash,
	       resolved_at, resolution_notes, created_at, updated_at`

const insertAuditQuery = `
	INSERT INTO gap_audit_log (id, alert_id, vehicle_id, action, actor, notes,
	       verification, final_decision, created_at)
	VALUES (:id, :alert_id, :vehicle_id, :action, :actor, :notes,
	       :verification, :final_decision, :created_at)
`

// CreateWithAudit inserts a new alert together with its creation audit row
// in one transaction. An alert is never observable without its ledger entry.
func (r *AlertRepository) CreateWithAudit(ctx context.Context, alert *models.GapAlert, audit *models.GapAuditLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertAlert := `
		INSERT INTO gap_alert (id, vehicle_id, report_id, alert_type, severity, status,
		       detected_at, description, metrics, contract_relevant, created_at, updated_at)
		VALUES (:id, :vehicle_id, :report_id, :alert_type, :severity, :status,
		       :detected_at, :description, :metrics, :contract_relevant, :created_at, :updated_at)
	`
	if _, err := tx.NamedExecContext(ctx, insertAlert, alert); err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	if _, err := tx.NamedExecContext(ctx, insertAuditQuery, audit); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert creation: %w", err)
	}

	return nil
}

// TransitionUpdate carries the optional fields a transition may set.
type TransitionUpdate struct {
	ResolvedAt      *time.Time
	ResolutionNotes *string
	DocumentObject  *string
	DocumentHash    *string
}

// TransitionWithAudit moves an alert from one status to another with
// single-writer semantics: the UPDATE is guarded by the expected current
// status, and a losing concurrent writer gets ErrTransitionConflict instead
// of silently overwriting state. The status change and its audit row commit
// atomically.
func (r *AlertRepository) TransitionWithAudit(
	ctx context.Context,
	alertID uuid.UUID,
	from, to models.AlertStatus,
	update TransitionUpdate,
	audit *models.GapAuditLog,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE gap_alert
		SET status = $3,
		    resolved_at = COALESCE($4, resolved_at),
		    resolution_notes = COALESCE($5, resolution_notes),
		    document_object = COALESCE($6, document_object),
		    document_hash = COALESCE($7, document_hash),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := tx.ExecContext(ctx, query, alertID, from, to,
		update.ResolvedAt, update.ResolutionNotes, update.DocumentObject, update.DocumentHash)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTransitionConflict
	}

	if _, err := tx.NamedExecContext(ctx, insertAuditQuery, audit); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}

	return nil
}

// AppendAudit records an action that does not change the alert status,
// e.g. a failed document render on an already terminal alert.
func (r *AlertRepository) AppendAudit(ctx context.Context, audit *models.GapAuditLog) error {
	if _, err := r.db.NamedExecContext(ctx, insertAuditQuery, audit); err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by its ID.
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GapAlert, error) {
	var alert models.GapAlert
	query := `SELECT ` + alertColumns + ` FROM gap_alert WHERE id = $1`

	err := r.db.GetContext(ctx, &alert, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert by id: %w", err)
	}

	return &alert, nil
}

// GetAll retrieves alerts with optional filters.
func (r *AlertRepository) GetAll(ctx context.Context, filters map[string]interface{}) ([]models.GapAlert, error) {
	var alerts []models.GapAlert
	query := `SELECT ` + alertColumns + ` FROM gap_alert WHERE 1=1`

	args := []interface{}{}
	argCount := 1

	if vehicleID, ok := filters["vehicle_id"].(uuid.UUID); ok {
		query += fmt.Sprintf(" AND vehicle_id = $%d", argCount)
		args = append(args, vehicleID)
		argCount++
	}

	if status, ok := filters["status"].(models.AlertStatus); ok {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, status)
		argCount++
	}

	if alertType, ok := filters["alert_type"].(models.AlertType); ok {
		query += fmt.Sprintf(" AND alert_type = $%d", argCount)
		args = append(args, alertType)
		argCount++
	}

	query += " ORDER BY detected_at DESC"

	err := r.db.SelectContext(ctx, &alerts, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}

	return alerts, nil
}

// HasOpenOverlapping reports whether a non-terminal alert of the same type
// already covers an overlapping metric window for the vehicle. Used by the
// detection cycle for idempotency.
func (r *AlertRepository) HasOpenOverlapping(ctx context.Context, vehicleID uuid.UUID, alertType models.AlertType, windowStart, windowEnd int64) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM gap_alert
			WHERE vehicle_id = $1
			  AND alert_type = $2
			  AND status IN ('open', 'processing', 'escalated')
			  AND (metrics->>'window_start')::bigint < $4
			  AND (metrics->>'window_end')::bigint > $3
		)
	`

	err := r.db.GetContext(ctx, &exists, query, vehicleID, alertType, windowStart, windowEnd)
	if err != nil {
		return false, fmt.Errorf("failed to check open alerts: %w", err)
	}

	return exists, nil
}

// GetAuditTrail returns the append-only ledger for one alert, oldest first.
func (r *AlertRepository) GetAuditTrail(ctx context.Context, alertID uuid.UUID) ([]models.GapAuditLog, error) {
	var entries []models.GapAuditLog
	query := `
		SELECT id, alert_id, vehicle_id, action, actor, notes, verification, final_decision, created_at
		FROM gap_audit_log
		WHERE alert_id = $1
		ORDER BY created_at ASC
	`

	err := r.db.SelectContext(ctx, &entries, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit trail: %w", err)
	}

	return entries, nil
}
