package models

type OutageType string

const (
	OutageVehicle  OutageType = "vehicle"
	OutageFleetAPI OutageType = "fleet_api"
)

type FailureReason string

const (
	FailureAPIUnavailable  FailureReason = "api_unavailable"
	FailureRateLimited     FailureReason = "rate_limited"
	FailureVehicleOffline  FailureReason = "vehicle_offline"
	FailureVehicleAsleep   FailureReason = "vehicle_asleep"
	FailureNetworkError    FailureReason = "network_error"
	FailureTimeout         FailureReason = "timeout"
	FailureServerError     FailureReason = "server_error"
	FailureTokenExpired    FailureReason = "token_expired"
	FailureVehicleNotFound FailureReason = "vehicle_not_found"
	FailureUnauthorized    FailureReason = "unauthorized"
	FailureUnknown         FailureReason = "unknown"
)

// IsTechnical reports whether the reason documents a technical failure on
// the fetch side rather than a vehicle that was genuinely unreachable for
// unexplained reasons. It is derived from the reason tag only; it is never
// stored, so it cannot drift from the taxonomy.
func (r FailureReason) IsTechnical() bool {
	switch r {
	case FailureAPIUnavailable, FailureRateLimited, FailureVehicleOffline,
		FailureVehicleAsleep, FailureNetworkError, FailureTimeout,
		FailureServerError, FailureTokenExpired:
		return true
	case FailureVehicleNotFound, FailureUnauthorized, FailureUnknown:
		return false
	default:
		return false
	}
}

func IsValidFailureReason(r FailureReason) bool {
	switch r {
	case FailureAPIUnavailable, FailureRateLimited, FailureVehicleOffline,
		FailureVehicleAsleep, FailureNetworkError, FailureTimeout,
		FailureServerError, FailureTokenExpired, FailureVehicleNotFound,
		FailureUnauthorized, FailureUnknown:
		return true
	default:
		return false
	}
}

type AlertType string

const (
	AlertLowConfidence     AlertType = "low_confidence"
	AlertConsecutiveGaps   AlertType = "consecutive_gaps"
	AlertProfiledAnomaly   AlertType = "profiled_anomaly"
	AlertHighGapPercentage AlertType = "high_gap_percentage"
	AlertMonthlyThreshold  AlertType = "monthly_threshold"
)

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

type AlertStatus string

const (
	AlertOpen           AlertStatus = "open"
	AlertProcessing     AlertStatus = "processing"
	AlertEscalated      AlertStatus = "escalated"
	AlertCompleted      AlertStatus = "completed"
	AlertContractBreach AlertStatus = "contract_breach"
	AlertError          AlertStatus = "error"
)

// IsTerminal reports whether no further transition may leave the status.
func (s AlertStatus) IsTerminal() bool {
	switch s {
	case AlertCompleted, AlertContractBreach, AlertError:
		return true
	default:
		return false
	}
}

type AuditAction string

const (
	AuditAlertCreated      AuditAction = "alert_created"
	AuditAutoDetected      AuditAction = "auto_detected"
	AuditCertified         AuditAction = "certified"
	AuditEscalated         AuditAction = "escalated"
	AuditContractBreach    AuditAction = "contract_breach"
	AuditProcessingStarted AuditAction = "processing_started"
	AuditRenderFailed      AuditAction = "render_failed"
)

type VerificationOutcome string

const (
	VerificationValid   VerificationOutcome = "valid"
	VerificationInvalid VerificationOutcome = "invalid"
	VerificationPending VerificationOutcome = "pending"
)
