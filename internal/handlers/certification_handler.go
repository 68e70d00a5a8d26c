package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"certification-service/internal/models"
	"certification-service/internal/repository"
	"certification-service/internal/services"
	"certification-service/internal/utils"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type CertificationHandler struct {
	certService *services.CertificationService
	gapRepo     *repository.GapRecordRepository
}

func NewCertificationHandler(certService *services.CertificationService, gapRepo *repository.GapRecordRepository) *CertificationHandler {
	return &CertificationHandler{
		certService: certService,
		gapRepo:     gapRepo,
	}
}

func (h *CertificationHandler) Register(protected fiber.Router) {
	group := protected.Group("/certifications")

	group.Post("/generate", h.GenerateForVehicle)        // POST /certifications/generate
	group.Get("/by-vehicle/:vehicle_id", h.GetByVehicle) // GET  /certifications/by-vehicle/:vehicle_id
	group.Get("/by-report/:report_id", h.GetByReport)    // GET  /certifications/by-report/:report_id
	group.Get("/detail/:id", h.GetDetail)                // GET  /certifications/detail/:id
	group.Get("/verify/:id", h.VerifyIntegrity)          // GET  /certifications/verify/:id
}

type generateRequest struct {
	VehicleID   uuid.UUID  `json:"vehicle_id"`
	PeriodStart int64      `json:"period_start"`
	PeriodEnd   int64      `json:"period_end"`
	ReportID    *uuid.UUID `json:"report_id,omitempty"`
}

// GenerateForVehicle runs gap certification for one vehicle over a period
// and returns the produced gap records.
func (h *CertificationHandler) GenerateForVehicle(c fiber.Ctx) error {
	var req generateRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_BODY", "Invalid request body"))
	}

	if req.VehicleID == uuid.Nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("MISSING_VEHICLE", "vehicle_id is required"))
	}
	if req.PeriodEnd <= req.PeriodStart {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_PERIOD", "period_end must be after period_start"))
	}

	period := models.ReportPeriod{Start: req.PeriodStart, End: req.PeriodEnd}
	records, err := h.certService.GenerateForVehicle(c.Context(), req.VehicleID, period, req.ReportID)
	if err != nil {
		slog.Error("Certification generation failed", "vehicle_id", req.VehicleID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("GENERATION_FAILED", "Failed to generate gap certifications"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"vehicle_id":   req.VehicleID,
		"period_start": req.PeriodStart,
		"period_end":   req.PeriodEnd,
		"gap_count":    len(records),
		"gap_records":  records,
	}))
}

// GetByVehicle lists the gap records for a vehicle within a time range.
func (h *CertificationHandler) GetByVehicle(c fiber.Ctx) error {
	vehicleID, err := uuid.Parse(c.Params("vehicle_id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid vehicle ID format"))
	}

	start, err := strconv.ParseInt(c.Query("start"), 10, 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_RANGE", "start must be a unix timestamp"))
	}
	end, err := strconv.ParseInt(c.Query("end"), 10, 64)
	if err != nil || end <= start {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_RANGE", "end must be a unix timestamp after start"))
	}

	records, err := h.gapRepo.GetByVehicleAndRange(c.Context(), vehicleID, start, end)
	if err != nil {
		slog.Error("Failed to get gap records", "vehicle_id", vehicleID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve gap records"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"gap_records": records,
		"count":       len(records),
		"vehicle_id":  vehicleID,
	}))
}

// GetByReport lists the gap records belonging to one regulatory report.
func (h *CertificationHandler) GetByReport(c fiber.Ctx) error {
	reportID, err := uuid.Parse(c.Params("report_id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid report ID format"))
	}

	records, err := h.gapRepo.GetByReport(c.Context(), reportID)
	if err != nil {
		slog.Error("Failed to get gap records", "report_id", reportID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve gap records"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"gap_records": records,
		"count":       len(records),
		"report_id":   reportID,
	}))
}

// GetDetail returns a single gap record.
func (h *CertificationHandler) GetDetail(c fiber.Ctx) error {
	recordID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid gap record ID format"))
	}

	record, err := h.gapRepo.GetByID(c.Context(), recordID)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(
			utils.CreateErrorResponse("NOT_FOUND", "Gap record not found"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(record))
}

// VerifyIntegrity recomputes the integrity hash of a stored gap record and
// reports whether it still matches.
func (h *CertificationHandler) VerifyIntegrity(c fiber.Ctx) error {
	recordID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid gap record ID format"))
	}

	record, err := h.certService.VerifyIntegrity(c.Context(), recordID)
	if err != nil {
		if errors.Is(err, services.ErrIntegrityViolation) {
			return c.Status(http.StatusConflict).JSON(
				utils.CreateErrorResponse("INTEGRITY_VIOLATION", "Gap record content does not match its stored hash"))
		}
		return c.Status(http.StatusNotFound).JSON(
			utils.CreateErrorResponse("NOT_FOUND", "Gap record not found"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"gap_record": record,
		"verified":   true,
	}))
}
