package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"certification-service/internal/event"
	"certification-service/internal/models"
	"certification-service/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrInvalidTransition     = errors.New("transition not allowed from current status")
	ErrNoteRequired          = errors.New("a non-empty resolution note is required")
	ErrFinalDecisionRequired = errors.New("a final decision statement is required for a contract breach")
)

// allowedTransitions is the complete state machine. Terminal statuses have
// no outgoing edges; everything absent is forbidden.
var allowedTransitions = map[models.AlertStatus][]models.AlertStatus{
	models.AlertOpen:       {models.AlertProcessing, models.AlertEscalated, models.AlertCompleted, models.AlertError},
	models.AlertProcessing: {models.AlertEscalated, models.AlertCompleted, models.AlertError},
	models.AlertEscalated:  {models.AlertCompleted, models.AlertContractBreach, models.AlertError},
}

// ValidateTransition reports whether an alert may move from one status to
// another. Pure; persistence-level conflict detection happens separately.
func ValidateTransition(from, to models.AlertStatus) error {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// DocumentRenderer produces the certification document for a resolved alert
// and returns the stored object name and its content hash.
type DocumentRenderer interface {
	RenderCertificate(ctx context.Context, alert *models.GapAlert, records []models.GapRecord) (object string, hash string, err error)
}

// AlertLifecycleService drives alerts through their status state machine.
// Document rendering runs asynchronously after the transition commits, so a
// slow render never holds an operator request open.
type AlertLifecycleService struct {
	alertRepo *repository.AlertRepository
	gapRepo   *repository.GapRecordRepository
	renderer  DocumentRenderer
	publisher *event.AlertPublisher
	now       func() time.Time

	renders sync.WaitGroup
}

func NewAlertLifecycleService(
	alertRepo *repository.AlertRepository,
	gapRepo *repository.GapRecordRepository,
	renderer DocumentRenderer,
	publisher *event.AlertPublisher,
) *AlertLifecycleService {
	return &AlertLifecycleService{
		alertRepo: alertRepo,
		gapRepo:   gapRepo,
		renderer:  renderer,
		publisher: publisher,
		now:       time.Now,
	}
}

// Wait blocks until all in-flight document renders finish. Called during
// shutdown.
func (s *AlertLifecycleService) Wait() {
	s.renders.Wait()
}

// Escalate moves an alert to ESCALATED. The operator note is mandatory and
// lands in the audit ledger, not on the alert itself. The formal escalation
// document renders in the background and is attached once ready.
func (s *AlertLifecycleService) Escalate(ctx context.Context, alertID uuid.UUID, actor, note string) (*models.GapAlert, error) {
	if note == "" {
		return nil, ErrNoteRequired
	}

	alert, err := s.alertRepo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(alert.Status, models.AlertEscalated); err != nil {
		return nil, err
	}

	audit := s.newAudit(alert, models.AuditEscalated, &actor)
	audit.Notes = &note

	err = s.alertRepo.TransitionWithAudit(ctx, alert.ID, alert.Status, models.AlertEscalated,
		repository.TransitionUpdate{}, audit)
	if err != nil {
		return nil, err
	}

	updated, err := s.alertRepo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	s.renders.Add(1)
	go func() {
		defer s.renders.Done()
		s.renderStatusDocument(updated, actor, models.AlertEscalated, "escalation")
	}()

	s.notify(updated, event.AlertEventEscalated)
	return updated, nil
}

// Complete starts the completion flow: the alert moves to PROCESSING
// synchronously, then the certification document is rendered in the
// background and the alert lands in COMPLETED or ERROR.
func (s *AlertLifecycleService) Complete(ctx context.Context, alertID uuid.UUID, actor, note string) (*models.GapAlert, error) {
	alert, err := s.alertRepo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(alert.Status, models.AlertProcessing); err != nil {
		return nil, err
	}

	err = s.alertRepo.TransitionWithAudit(ctx, alert.ID, alert.Status, models.AlertProcessing,
		repository.TransitionUpdate{}, s.newAudit(alert, models.AuditProcessingStarted, &actor))
	if err != nil {
		return nil, err
	}

	updated, err := s.alertRepo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	s.renders.Add(1)
	go func() {
		defer s.renders.Done()
		s.finalizeCompletion(updated, actor, note)
	}()

	return updated, nil
}

// finalizeCompletion verifies the underlying gap records, renders the
// certification document, and commits the terminal transition. Runs outside
// the request context.
func (s *AlertLifecycleService) finalizeCompletion(alert *models.GapAlert, actor, note string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	records, err := s.gapRepo.GetByVehicleAndRange(ctx, alert.VehicleID,
		alert.Metrics.WindowStart, alert.Metrics.WindowEnd)
	if err != nil {
		s.failProcessing(ctx, alert, actor, fmt.Sprintf("failed to load gap records: %v", err), nil)
		return
	}

	// A certificate is only issued over records whose stored hash still
	// matches their content.
	verification := models.VerificationValid
	for _, record := range records {
		if record.ComputeIntegrityHash() != record.IntegrityHash {
			verification = models.VerificationInvalid
			s.failProcessing(ctx, alert, actor,
				fmt.Sprintf("integrity verification failed for gap record %s", record.ID), &verification)
			return
		}
	}

	object, hash, err := s.renderer.RenderCertificate(ctx, alert, records)
	if err != nil {
		s.failProcessing(ctx, alert, actor, fmt.Sprintf("document render failed: %v", err), &verification)
		return
	}

	resolvedAt := s.now().UTC()
	resolution := note
	audit := s.newAudit(alert, models.AuditCertified, &actor)
	audit.Verification = &verification
	if note != "" {
		audit.Notes = &note
	}

	update := repository.TransitionUpdate{
		ResolvedAt:     &resolvedAt,
		DocumentObject: &object,
		DocumentHash:   &hash,
	}
	if resolution != "" {
		update.ResolutionNotes = &resolution
	}

	err = s.alertRepo.TransitionWithAudit(ctx, alert.ID, models.AlertProcessing, models.AlertCompleted, update, audit)
	if err != nil {
		slog.Error("Failed to commit completion", "alert_id", alert.ID, "error", err)
		return
	}

	slog.Info("Alert completed with certification document",
		"alert_id", alert.ID,
		"document_object", object)
}

func (s *AlertLifecycleService) failProcessing(ctx context.Context, alert *models.GapAlert, actor, reason string, verification *models.VerificationOutcome) {
	audit := s.newAudit(alert, models.AuditRenderFailed, &actor)
	audit.Notes = &reason
	audit.Verification = verification

	resolvedAt := s.now().UTC()
	err := s.alertRepo.TransitionWithAudit(ctx, alert.ID, models.AlertProcessing, models.AlertError,
		repository.TransitionUpdate{ResolvedAt: &resolvedAt, ResolutionNotes: &reason}, audit)
	if err != nil {
		slog.Error("Failed to record completion failure", "alert_id", alert.ID, "error", err)
		return
	}

	slog.Error("Alert completion failed", "alert_id", alert.ID, "reason", reason)
}

// MarkContractBreach moves an escalated alert to the CONTRACT_BREACH
// terminal status. The final decision statement is mandatory and the breach
// document is rendered afterwards; a render failure is recorded in the
// ledger but never reopens the alert.
func (s *AlertLifecycleService) MarkContractBreach(ctx context.Context, alertID uuid.UUID, actor, finalDecision string) (*models.GapAlert, error) {
	if finalDecision == "" {
		return nil, ErrFinalDecisionRequired
	}

	alert, err := s.alertRepo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(alert.Status, models.AlertContractBreach); err != nil {
		return nil, err
	}

	audit := s.newAudit(alert, models.AuditContractBreach, &actor)
	audit.FinalDecision = &finalDecision

	resolvedAt := s.now().UTC()
	err = s.alertRepo.TransitionWithAudit(ctx, alert.ID, alert.Status, models.AlertContractBreach,
		repository.TransitionUpdate{ResolvedAt: &resolvedAt, ResolutionNotes: &finalDecision}, audit)
	if err != nil {
		return nil, err
	}

	updated, err := s.alertRepo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	s.renders.Add(1)
	go func() {
		defer s.renders.Done()
		s.renderStatusDocument(updated, actor, models.AlertContractBreach, "breach")
	}()

	return updated, nil
}

// renderStatusDocument renders the formal document for an alert that just
// reached the given status and attaches it with a same-status update, so the
// alert never leaves the state the operator put it in. A render failure is
// recorded in the ledger only.
func (s *AlertLifecycleService) renderStatusDocument(alert *models.GapAlert, actor string, status models.AlertStatus, label string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	records, err := s.gapRepo.GetByVehicleAndRange(ctx, alert.VehicleID,
		alert.Metrics.WindowStart, alert.Metrics.WindowEnd)
	if err == nil {
		var object, hash string
		object, hash, err = s.renderer.RenderCertificate(ctx, alert, records)
		if err == nil {
			audit := s.newAudit(alert, models.AuditCertified, &actor)
			commitErr := s.alertRepo.TransitionWithAudit(ctx, alert.ID, status, status,
				repository.TransitionUpdate{DocumentObject: &object, DocumentHash: &hash}, audit)
			if commitErr != nil {
				slog.Error("Failed to attach document", "alert_id", alert.ID, "document", label, "error", commitErr)
			}
			return
		}
	}

	reason := fmt.Sprintf("%s document render failed: %v", label, err)
	audit := s.newAudit(alert, models.AuditRenderFailed, &actor)
	audit.Notes = &reason
	if appendErr := s.alertRepo.AppendAudit(ctx, audit); appendErr != nil {
		slog.Error("Failed to record render failure", "alert_id", alert.ID, "document", label, "error", appendErr)
	}
	slog.Error("Document render failed", "alert_id", alert.ID, "document", label, "error", err)
}

func (s *AlertLifecycleService) newAudit(alert *models.GapAlert, action models.AuditAction, actor *string) *models.GapAuditLog {
	return &models.GapAuditLog{
		ID:        uuid.New(),
		AlertID:   &alert.ID,
		VehicleID: alert.VehicleID,
		Action:    action,
		Actor:     actor,
		CreatedAt: s.now().UTC(),
	}
}

func (s *AlertLifecycleService) notify(alert *models.GapAlert, kind event.AlertEventKind) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.publisher.PublishAlertEvent(ctx, event.AlertEventMessage{
			Kind:        kind,
			AlertID:     alert.ID,
			VehicleID:   alert.VehicleID,
			AlertType:   alert.AlertType,
			Severity:    alert.Severity,
			Status:      alert.Status,
			Description: alert.Description,
			DetectedAt:  alert.DetectedAt,
		})
		if err != nil {
			slog.Warn("Alert notification failed", "alert_id", alert.ID, "error", err)
		}
	}()
}
