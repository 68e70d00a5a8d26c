package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"certification-service/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOutageTestApp(t *testing.T) (*fiber.App, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sdb := sqlx.NewDb(db, "postgres")

	handler := NewOutageHandler(
		repository.NewOutageRepository(sdb),
		repository.NewFetchFailureRepository(sdb),
	)
	app := fiber.New()
	handler.Register(app.Group("/api"))
	return app, mock
}

func outageRows(id uuid.UUID, start int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "outage_type", "brand", "vehicle_id", "company_id",
		"start_timestamp", "end_timestamp", "auto_detected", "evidence_note", "created_at",
	}).AddRow(
		id.String(), "fleet_api", "volvo", nil, nil,
		start, nil, false, nil, time.Now().UTC(),
	)
}

func closeOutageRequestBody(end int64) *strings.Reader {
	return strings.NewReader(fmt.Sprintf(`{"end_timestamp":%d}`, end))
}

// ============================================================================
// CLOSING AN OUTAGE
// ============================================================================

func TestCloseOutage_RejectsEndBeforeStart(t *testing.T) {
	app, mock := newOutageTestApp(t)
	outageID := uuid.New()
	const start = int64(1748736000)

	for _, end := range []int64{start - 3600, start} {
		mock.ExpectQuery("SELECT (.+) FROM outage_period").
			WillReturnRows(outageRows(outageID, start))

		req := httptest.NewRequest(http.MethodPost,
			"/api/outages/close/"+outageID.String(), closeOutageRequestBody(end))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_RANGE", decodeErrorBody(t, resp).Error.Code)
	}

	// No UPDATE may have reached the repository.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseOutage_ClosesOpenOutage(t *testing.T) {
	app, mock := newOutageTestApp(t)
	outageID := uuid.New()
	const start = int64(1748736000)

	mock.ExpectQuery("SELECT (.+) FROM outage_period").
		WillReturnRows(outageRows(outageID, start))
	mock.ExpectExec("UPDATE outage_period").WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost,
		"/api/outages/close/"+outageID.String(), closeOutageRequestBody(start+7200))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseOutage_UnknownOutageIsNotFound(t *testing.T) {
	app, mock := newOutageTestApp(t)
	outageID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM outage_period").
		WillReturnError(fmt.Errorf("sql: no rows in result set"))

	req := httptest.NewRequest(http.MethodPost,
		"/api/outages/close/"+outageID.String(), closeOutageRequestBody(1748736000))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
