package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"certification-service/internal/models"
	"certification-service/internal/repository"
	"certification-service/internal/utils"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// OutageHandler exposes the operational inputs of the engine: known outage
// periods and failed fetch attempts.
type OutageHandler struct {
	outageRepo  *repository.OutageRepository
	failureRepo *repository.FetchFailureRepository
}

func NewOutageHandler(outageRepo *repository.OutageRepository, failureRepo *repository.FetchFailureRepository) *OutageHandler {
	return &OutageHandler{
		outageRepo:  outageRepo,
		failureRepo: failureRepo,
	}
}

func (h *OutageHandler) Register(protected fiber.Router) {
	outageGroup := protected.Group("/outages")
	outageGroup.Post("/create", h.CreateOutage)  // POST /outages/create
	outageGroup.Get("/list", h.GetOutages)       // GET  /outages/list
	outageGroup.Post("/close/:id", h.CloseOutage) // POST /outages/close/:id

	failureGroup := protected.Group("/fetch-failures")
	failureGroup.Post("/create", h.CreateFetchFailure) // POST /fetch-failures/create
}

type createOutageRequest struct {
	OutageType     models.OutageType `json:"outage_type"`
	Brand          string            `json:"brand"`
	VehicleID      *uuid.UUID        `json:"vehicle_id,omitempty"`
	CompanyID      *uuid.UUID        `json:"company_id,omitempty"`
	StartTimestamp int64             `json:"start_timestamp"`
	EndTimestamp   *int64            `json:"end_timestamp,omitempty"`
	EvidenceNote   *string           `json:"evidence_note,omitempty"`
}

// CreateOutage registers a known outage period. End timestamp may be left
// open for an ongoing outage.
func (h *OutageHandler) CreateOutage(c fiber.Ctx) error {
	var req createOutageRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_BODY", "Invalid request body"))
	}

	if req.OutageType != models.OutageVehicle && req.OutageType != models.OutageFleetAPI {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_TYPE", "outage_type must be vehicle or fleet_api"))
	}
	if req.OutageType == models.OutageVehicle && req.VehicleID == nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("MISSING_VEHICLE", "vehicle outages require vehicle_id"))
	}
	if req.OutageType == models.OutageFleetAPI && req.Brand == "" {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("MISSING_BRAND", "fleet API outages require brand"))
	}
	if req.EndTimestamp != nil && *req.EndTimestamp <= req.StartTimestamp {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_RANGE", "end_timestamp must be after start_timestamp"))
	}

	outage := &models.OutagePeriod{
		ID:             uuid.New(),
		OutageType:     req.OutageType,
		Brand:          req.Brand,
		VehicleID:      req.VehicleID,
		CompanyID:      req.CompanyID,
		StartTimestamp: req.StartTimestamp,
		EndTimestamp:   req.EndTimestamp,
		EvidenceNote:   req.EvidenceNote,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.outageRepo.Create(c.Context(), outage); err != nil {
		slog.Error("Failed to create outage", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("CREATION_FAILED", "Failed to create outage period"))
	}

	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(outage))
}

// GetOutages lists outage periods with optional vehicle_id, brand and
// outage_type filters.
func (h *OutageHandler) GetOutages(c fiber.Ctx) error {
	filters := map[string]interface{}{}

	if raw := c.Query("vehicle_id"); raw != "" {
		vehicleID, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(
				utils.CreateErrorResponse("INVALID_UUID", "Invalid vehicle ID format"))
		}
		filters["vehicle_id"] = vehicleID
	}
	if raw := c.Query("brand"); raw != "" {
		filters["brand"] = raw
	}
	if raw := c.Query("outage_type"); raw != "" {
		filters["outage_type"] = models.OutageType(raw)
	}

	outages, err := h.outageRepo.GetAll(c.Context(), filters)
	if err != nil {
		slog.Error("Failed to list outages", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve outages"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"outages": outages,
		"count":   len(outages),
	}))
}

type closeOutageRequest struct {
	EndTimestamp int64 `json:"end_timestamp"`
}

// CloseOutage sets the end timestamp of an ongoing outage.
func (h *OutageHandler) CloseOutage(c fiber.Ctx) error {
	outageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid outage ID format"))
	}

	var req closeOutageRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_BODY", "Invalid request body"))
	}
	if req.EndTimestamp <= 0 {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_RANGE", "end_timestamp is required"))
	}

	outage, err := h.outageRepo.GetByID(c.Context(), outageID)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(
			utils.CreateErrorResponse("NOT_FOUND", "Outage period not found"))
	}
	if req.EndTimestamp <= outage.StartTimestamp {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_RANGE", "end_timestamp must be after start_timestamp"))
	}

	if err := h.outageRepo.Close(c.Context(), outageID, req.EndTimestamp); err != nil {
		slog.Error("Failed to close outage", "outage_id", outageID, "error", err)
		return c.Status(http.StatusConflict).JSON(
			utils.CreateErrorResponse("CLOSE_FAILED", "Outage not found or already closed"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"outage_id": outageID,
		"closed":    true,
	}))
}

type createFailureRequest struct {
	VehicleID      uuid.UUID            `json:"vehicle_id"`
	AttemptedAt    int64                `json:"attempted_at"`
	Reason         models.FailureReason `json:"reason"`
	ErrorDetail    *string              `json:"error_detail,omitempty"`
	HTTPStatus     *int                 `json:"http_status,omitempty"`
	ResponseTimeMs *int                 `json:"response_time_ms,omitempty"`
}

// CreateFetchFailure records one failed telemetry fetch attempt. Unknown
// reason tags are rejected so the taxonomy stays closed.
func (h *OutageHandler) CreateFetchFailure(c fiber.Ctx) error {
	var req createFailureRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_BODY", "Invalid request body"))
	}

	if req.VehicleID == uuid.Nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("MISSING_VEHICLE", "vehicle_id is required"))
	}
	if !models.IsValidFailureReason(req.Reason) {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_REASON", "Unknown failure reason"))
	}

	entry := &models.FetchFailureLog{
		ID:             uuid.New(),
		VehicleID:      req.VehicleID,
		AttemptedAt:    req.AttemptedAt,
		Reason:         req.Reason,
		ErrorDetail:    req.ErrorDetail,
		HTTPStatus:     req.HTTPStatus,
		ResponseTimeMs: req.ResponseTimeMs,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.failureRepo.Create(c.Context(), entry); err != nil {
		slog.Error("Failed to record fetch failure", "vehicle_id", req.VehicleID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("CREATION_FAILED", "Failed to record fetch failure"))
	}

	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(entry))
}
