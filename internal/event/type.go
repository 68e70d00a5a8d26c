package event

import (
	"time"

	"certification-service/internal/models"

	"github.com/google/uuid"
)

// GapAlertQueue carries fire-and-forget alert events for downstream
// paging/SMS. Delivery is best-effort; the core never blocks on it.
const GapAlertQueue = "gap_alert_events"

type AlertEventKind string

const (
	AlertEventCreated   AlertEventKind = "created"
	AlertEventEscalated AlertEventKind = "escalated"
)

type AlertEventMessage struct {
	Kind        AlertEventKind       `json:"kind"`
	AlertID     uuid.UUID            `json:"alert_id"`
	VehicleID   uuid.UUID            `json:"vehicle_id"`
	AlertType   models.AlertType     `json:"alert_type"`
	Severity    models.AlertSeverity `json:"severity"`
	Status      models.AlertStatus   `json:"status"`
	Description string               `json:"description"`
	DetectedAt  time.Time            `json:"detected_at"`
}
