package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"certification-service/internal/models"
	"certification-service/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// STATE MACHINE
// ============================================================================

func TestValidateTransition_AllowedEdges(t *testing.T) {
	allowed := []struct {
		from, to models.AlertStatus
	}{
		{models.AlertOpen, models.AlertProcessing},
		{models.AlertOpen, models.AlertEscalated},
		{models.AlertOpen, models.AlertCompleted},
		{models.AlertOpen, models.AlertError},
		{models.AlertProcessing, models.AlertEscalated},
		{models.AlertProcessing, models.AlertCompleted},
		{models.AlertProcessing, models.AlertError},
		{models.AlertEscalated, models.AlertCompleted},
		{models.AlertEscalated, models.AlertContractBreach},
		{models.AlertEscalated, models.AlertError},
	}

	for _, edge := range allowed {
		assert.NoError(t, ValidateTransition(edge.from, edge.to),
			"%s -> %s should be allowed", edge.from, edge.to)
	}
}

func TestValidateTransition_ContractBreachOnlyFromEscalated(t *testing.T) {
	for _, from := range []models.AlertStatus{
		models.AlertOpen,
		models.AlertProcessing,
		models.AlertCompleted,
		models.AlertError,
	} {
		err := ValidateTransition(from, models.AlertContractBreach)
		assert.ErrorIs(t, err, ErrInvalidTransition,
			"%s -> contract_breach must be rejected", from)
	}
}

func TestValidateTransition_TerminalStatesAreClosed(t *testing.T) {
	terminals := []models.AlertStatus{
		models.AlertCompleted,
		models.AlertContractBreach,
		models.AlertError,
	}
	targets := []models.AlertStatus{
		models.AlertOpen,
		models.AlertProcessing,
		models.AlertEscalated,
		models.AlertCompleted,
		models.AlertError,
	}

	for _, from := range terminals {
		assert.True(t, from.IsTerminal())
		for _, to := range targets {
			assert.ErrorIs(t, ValidateTransition(from, to), ErrInvalidTransition,
				"terminal %s must not transition to %s", from, to)
		}
	}
}

func TestValidateTransition_NoSelfTransitions(t *testing.T) {
	for _, status := range []models.AlertStatus{
		models.AlertOpen,
		models.AlertProcessing,
		models.AlertEscalated,
	} {
		assert.ErrorIs(t, ValidateTransition(status, status), ErrInvalidTransition)
	}
}

// ============================================================================
// DOCUMENT RENDERING AFTER TRANSITIONS
// ============================================================================

type stubRenderer struct {
	mu     sync.Mutex
	calls  int
	object string
	hash   string
	err    error
}

func (r *stubRenderer) RenderCertificate(ctx context.Context, alert *models.GapAlert, records []models.GapRecord) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.object, r.hash, r.err
}

func (r *stubRenderer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newLifecycleTestService(t *testing.T, renderer DocumentRenderer) (*AlertLifecycleService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sdb := sqlx.NewDb(db, "postgres")
	return NewAlertLifecycleService(
		repository.NewAlertRepository(sdb),
		repository.NewGapRecordRepository(sdb),
		renderer,
		nil,
	), mock
}

func alertRows(id, vehicleID uuid.UUID, status models.AlertStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	metrics := []byte(`{"window_start":1748736000,"window_end":1749340800}`)
	return sqlmock.NewRows([]string{
		"id", "vehicle_id", "report_id", "alert_type", "severity", "status",
		"detected_at", "description", "metrics", "contract_relevant",
		"document_object", "document_hash", "resolved_at", "resolution_notes",
		"created_at", "updated_at",
	}).AddRow(
		id.String(), vehicleID.String(), nil, string(models.AlertConsecutiveGaps),
		string(models.SeverityWarning), string(status),
		now, "7 consecutive gap hours", metrics, false,
		nil, nil, nil, nil, now, now,
	)
}

func emptyGapRecordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "vehicle_id", "gap_timestamp", "confidence", "justification",
		"factors", "report_id", "certified_at", "integrity_hash",
	})
}

func TestEscalate_AttachesEscalationDocument(t *testing.T) {
	renderer := &stubRenderer{object: "certifications/v1/alert.pdf", hash: "d0c"}
	svc, mock := newLifecycleTestService(t, renderer)

	alertID := uuid.New()
	vehicleID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM gap_alert").
		WillReturnRows(alertRows(alertID, vehicleID, models.AlertOpen))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE gap_alert").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO gap_audit_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM gap_alert").
		WillReturnRows(alertRows(alertID, vehicleID, models.AlertEscalated))

	// Background render: loads the window records, then attaches the
	// document with a same-status update and its ledger row.
	mock.ExpectQuery("SELECT (.+) FROM gap_record").WillReturnRows(emptyGapRecordRows())
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE gap_alert").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO gap_audit_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	alert, err := svc.Escalate(context.Background(), alertID, "ops-7", "unexplained run, needs review")
	require.NoError(t, err)
	assert.Equal(t, models.AlertEscalated, alert.Status)

	svc.Wait()

	assert.Equal(t, 1, renderer.callCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscalate_RenderFailureOnlyAppendsLedgerRow(t *testing.T) {
	renderer := &stubRenderer{err: errors.New("renderer unavailable")}
	svc, mock := newLifecycleTestService(t, renderer)

	alertID := uuid.New()
	vehicleID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM gap_alert").
		WillReturnRows(alertRows(alertID, vehicleID, models.AlertOpen))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE gap_alert").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO gap_audit_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM gap_alert").
		WillReturnRows(alertRows(alertID, vehicleID, models.AlertEscalated))

	// The failed render never touches the alert row, only the ledger.
	mock.ExpectQuery("SELECT (.+) FROM gap_record").WillReturnRows(emptyGapRecordRows())
	mock.ExpectExec("INSERT INTO gap_audit_log").WillReturnResult(sqlmock.NewResult(1, 1))

	alert, err := svc.Escalate(context.Background(), alertID, "ops-7", "unexplained run")
	require.NoError(t, err)
	assert.Equal(t, models.AlertEscalated, alert.Status)

	svc.Wait()

	assert.Equal(t, 1, renderer.callCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}
