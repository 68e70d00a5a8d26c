package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"certification-service/internal/config"
	"certification-service/internal/models"
	"certification-service/internal/repository"
	"certification-service/internal/services"
	"certification-service/internal/utils"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type AlertHandler struct {
	alertRepo *repository.AlertRepository
	lifecycle *services.AlertLifecycleService
	engine    *services.AlertEngine
	scoring   *config.ScoringStore
}

func NewAlertHandler(
	alertRepo *repository.AlertRepository,
	lifecycle *services.AlertLifecycleService,
	engine *services.AlertEngine,
	scoring *config.ScoringStore,
) *AlertHandler {
	return &AlertHandler{
		alertRepo: alertRepo,
		lifecycle: lifecycle,
		engine:    engine,
		scoring:   scoring,
	}
}

func (h *AlertHandler) Register(protected fiber.Router) {
	group := protected.Group("/alerts")

	group.Get("/list", h.GetAlerts)             // GET  /alerts/list
	group.Get("/detail/:id", h.GetAlertDetail)  // GET  /alerts/detail/:id
	group.Get("/audit/:id", h.GetAuditTrail)    // GET  /alerts/audit/:id
	group.Post("/escalate/:id", h.Escalate)     // POST /alerts/escalate/:id
	group.Post("/complete/:id", h.Complete)     // POST /alerts/complete/:id
	group.Post("/breach/:id", h.ContractBreach) // POST /alerts/breach/:id

	detection := protected.Group("/detection")
	detection.Post("/run", h.RunDetection)         // POST /detection/run
	detection.Post("/reload-config", h.ReloadConfig) // POST /detection/reload-config
}

// GetAlerts lists alerts with optional vehicle_id, status and alert_type
// filters.
func (h *AlertHandler) GetAlerts(c fiber.Ctx) error {
	filters := map[string]interface{}{}

	if raw := c.Query("vehicle_id"); raw != "" {
		vehicleID, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(
				utils.CreateErrorResponse("INVALID_UUID", "Invalid vehicle ID format"))
		}
		filters["vehicle_id"] = vehicleID
	}
	if raw := c.Query("status"); raw != "" {
		filters["status"] = models.AlertStatus(raw)
	}
	if raw := c.Query("alert_type"); raw != "" {
		filters["alert_type"] = models.AlertType(raw)
	}

	alerts, err := h.alertRepo.GetAll(c.Context(), filters)
	if err != nil {
		slog.Error("Failed to list alerts", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve alerts"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	}))
}

func (h *AlertHandler) GetAlertDetail(c fiber.Ctx) error {
	alertID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid alert ID format"))
	}

	alert, err := h.alertRepo.GetByID(c.Context(), alertID)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(
			utils.CreateErrorResponse("NOT_FOUND", "Alert not found"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(alert))
}

func (h *AlertHandler) GetAuditTrail(c fiber.Ctx) error {
	alertID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid alert ID format"))
	}

	entries, err := h.alertRepo.GetAuditTrail(c.Context(), alertID)
	if err != nil {
		slog.Error("Failed to get audit trail", "alert_id", alertID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve audit trail"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"audit_trail": entries,
		"count":       len(entries),
	}))
}

type transitionRequest struct {
	Note          string `json:"note"`
	FinalDecision string `json:"final_decision"`
}

// Escalate moves an alert to ESCALATED with a mandatory operator note.
func (h *AlertHandler) Escalate(c fiber.Ctx) error {
	alertID, actor, req, err := h.parseTransition(c)
	if err != nil {
		return h.rejectTransition(c, err)
	}

	alert, err := h.lifecycle.Escalate(c.Context(), alertID, actor, req.Note)
	if err != nil {
		return h.transitionError(c, alertID, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(alert))
}

// Complete starts the completion flow; the certification document renders
// in the background.
func (h *AlertHandler) Complete(c fiber.Ctx) error {
	alertID, actor, req, err := h.parseTransition(c)
	if err != nil {
		return h.rejectTransition(c, err)
	}

	alert, err := h.lifecycle.Complete(c.Context(), alertID, actor, req.Note)
	if err != nil {
		return h.transitionError(c, alertID, err)
	}

	return c.Status(http.StatusAccepted).JSON(utils.CreateSuccessResponse(alert))
}

// ContractBreach marks an escalated alert as a terminal contract breach.
func (h *AlertHandler) ContractBreach(c fiber.Ctx) error {
	alertID, actor, req, err := h.parseTransition(c)
	if err != nil {
		return h.rejectTransition(c, err)
	}

	alert, err := h.lifecycle.MarkContractBreach(c.Context(), alertID, actor, req.FinalDecision)
	if err != nil {
		return h.transitionError(c, alertID, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(alert))
}

var (
	errTransitionBadAlertID = errors.New("invalid alert id")
	errTransitionNoActor    = errors.New("missing operator identity")
	errTransitionBadBody    = errors.New("invalid transition request body")
)

// parseTransition validates the common inputs of a lifecycle transition
// request. It never writes to the response: the caller must reject via
// rejectTransition on a non-nil error and stop, so no transition ever runs
// without an identified operator.
func (h *AlertHandler) parseTransition(c fiber.Ctx) (uuid.UUID, string, transitionRequest, error) {
	alertID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, "", transitionRequest{}, errTransitionBadAlertID
	}

	actor := c.Get("X-User-ID")
	if actor == "" {
		return uuid.Nil, "", transitionRequest{}, errTransitionNoActor
	}

	var req transitionRequest
	if err := c.Bind().Body(&req); err != nil {
		return uuid.Nil, "", transitionRequest{}, errTransitionBadBody
	}

	return alertID, actor, req, nil
}

func (h *AlertHandler) rejectTransition(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errTransitionNoActor):
		return c.Status(http.StatusUnauthorized).JSON(
			utils.CreateErrorResponse("UNAUTHORIZED", "User ID is required"))
	case errors.Is(err, errTransitionBadBody):
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_BODY", "Invalid request body"))
	default:
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid alert ID format"))
	}
}

func (h *AlertHandler) transitionError(c fiber.Ctx, alertID uuid.UUID, err error) error {
	switch {
	case errors.Is(err, services.ErrNoteRequired):
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("NOTE_REQUIRED", "A non-empty note is required"))
	case errors.Is(err, services.ErrFinalDecisionRequired):
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("FINAL_DECISION_REQUIRED", "A final decision statement is required"))
	case errors.Is(err, services.ErrInvalidTransition):
		return c.Status(http.StatusConflict).JSON(
			utils.CreateErrorResponse("INVALID_TRANSITION", "The alert status does not allow this transition"))
	case errors.Is(err, repository.ErrTransitionConflict):
		return c.Status(http.StatusConflict).JSON(
			utils.CreateErrorResponse("TRANSITION_CONFLICT", "The alert was modified concurrently, retry with fresh state"))
	default:
		slog.Error("Alert transition failed", "alert_id", alertID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("TRANSITION_FAILED", "Failed to update alert"))
	}
}

// RunDetection forces a detection cycle outside the schedule.
func (h *AlertHandler) RunDetection(c fiber.Ctx) error {
	created, err := h.engine.RunCycle(c.Context(), true)
	if err != nil {
		slog.Error("Forced detection cycle failed", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("DETECTION_FAILED", "Detection cycle failed"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"alerts_created": created,
	}))
}

// ReloadConfig re-reads the scoring configuration from disk. An invalid
// file is rejected and the running configuration stays in place.
func (h *AlertHandler) ReloadConfig(c fiber.Ctx) error {
	if err := h.scoring.Reload(); err != nil {
		slog.Error("Scoring config reload rejected", "error", err)
		return c.Status(http.StatusUnprocessableEntity).JSON(
			utils.CreateErrorResponse("INVALID_CONFIG", err.Error()))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"reloaded": true,
	}))
}
