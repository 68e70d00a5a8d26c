package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"certification-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockAlertRepo(t *testing.T) (*AlertRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewAlertRepository(sqlx.NewDb(db, "postgres")), mock
}

func testAlert(vehicleID uuid.UUID) *models.GapAlert {
	now := time.Now().UTC()
	return &models.GapAlert{
		ID:         uuid.New(),
		VehicleID:  vehicleID,
		AlertType:  models.AlertLowConfidence,
		Severity:   models.SeverityWarning,
		Status:     models.AlertOpen,
		DetectedAt: now,
		Description: "gap certified below the confidence minimum",
		Metrics: models.AlertMetrics{
			WindowStart: 1748736000,
			WindowEnd:   1749340800,
			GapHours:    3,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testAuditEntry(alertID, vehicleID uuid.UUID, action models.AuditAction) *models.GapAuditLog {
	return &models.GapAuditLog{
		ID:        uuid.New(),
		AlertID:   &alertID,
		VehicleID: vehicleID,
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
}

// ============================================================================
// ALERT CREATION IS COUPLED TO ITS LEDGER ROW
// ============================================================================

func TestCreateWithAudit_AlertAndLedgerRowShareOneTransaction(t *testing.T) {
	repo, mock := newMockAlertRepo(t)
	vehicleID := uuid.New()
	alert := testAlert(vehicleID)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO gap_alert").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO gap_audit_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.CreateWithAudit(context.Background(), alert,
		testAuditEntry(alert.ID, vehicleID, models.AuditAutoDetected))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithAudit_LedgerFailureRollsBackAlert(t *testing.T) {
	repo, mock := newMockAlertRepo(t)
	vehicleID := uuid.New()
	alert := testAlert(vehicleID)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO gap_alert").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO gap_audit_log").WillReturnError(errors.New("ledger unavailable"))
	mock.ExpectRollback()

	err := repo.CreateWithAudit(context.Background(), alert,
		testAuditEntry(alert.ID, vehicleID, models.AuditAutoDetected))
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================================
// GUARDED STATUS TRANSITIONS
// ============================================================================

func TestTransitionWithAudit_CommitsStatusAndLedgerAtomically(t *testing.T) {
	repo, mock := newMockAlertRepo(t)
	alertID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE gap_alert").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO gap_audit_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.TransitionWithAudit(context.Background(), alertID,
		models.AlertOpen, models.AlertEscalated, TransitionUpdate{},
		testAuditEntry(alertID, uuid.New(), models.AuditEscalated))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionWithAudit_ConcurrentWriterGetsConflict(t *testing.T) {
	repo, mock := newMockAlertRepo(t)
	alertID := uuid.New()

	// Another writer already moved the alert: the guarded UPDATE matches no
	// row and nothing reaches the ledger.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE gap_alert").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.TransitionWithAudit(context.Background(), alertID,
		models.AlertOpen, models.AlertEscalated, TransitionUpdate{},
		testAuditEntry(alertID, uuid.New(), models.AuditEscalated))
	assert.ErrorIs(t, err, ErrTransitionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionWithAudit_LedgerFailureRollsBackTransition(t *testing.T) {
	repo, mock := newMockAlertRepo(t)
	alertID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE gap_alert").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO gap_audit_log").WillReturnError(errors.New("ledger unavailable"))
	mock.ExpectRollback()

	err := repo.TransitionWithAudit(context.Background(), alertID,
		models.AlertProcessing, models.AlertCompleted, TransitionUpdate{},
		testAuditEntry(alertID, uuid.New(), models.AuditCertified))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransitionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
