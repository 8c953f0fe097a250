package core

// AlertType classifies the origin of a security alert
type AlertType string

const (
	// AlertTypeDatabaseBreach indicates direct evidence of data compromise (honeytoken access)
	AlertTypeDatabaseBreach AlertType = "database_breach"
	// AlertTypeAuthFlood indicates repeated failed authentication attempts
	AlertTypeAuthFlood AlertType = "auth_flood"
	// AlertTypeSystemAnomaly indicates anomalous but not directly destructive behavior
	AlertTypeSystemAnomaly AlertType = "system_anomaly"
)

// String returns the string representation
func (t AlertType) String() string {
	return string(t)
}

// IsValid checks if the alert type is valid
func (t AlertType) IsValid() bool {
	switch t {
	case AlertTypeDatabaseBreach, AlertTypeAuthFlood, AlertTypeSystemAnomaly:
		return true
	default:
		return false
	}
}

// AlertSeverity represents the severity of a security alert
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// String returns the string representation
func (s AlertSeverity) String() string {
	return string(s)
}

// IsValid checks if the severity is valid
func (s AlertSeverity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank returns a numeric rank for severity ordering (higher is more severe)
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// AlertStatus represents the triage status of a security alert
type AlertStatus string

const (
	// AlertStatusNew indicates an alert that hasn't been reviewed
	AlertStatusNew AlertStatus = "new"
	// AlertStatusAssigned indicates an alert assigned to an operator
	AlertStatusAssigned AlertStatus = "assigned"
	// AlertStatusResolved indicates a confirmed and handled alert
	AlertStatusResolved AlertStatus = "resolved"
	// AlertStatusFalsePositive indicates an alert dismissed as benign
	AlertStatusFalsePositive AlertStatus = "false_positive"
)

// String returns the string representation
func (s AlertStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertStatusNew, AlertStatusAssigned, AlertStatusResolved, AlertStatusFalsePositive:
		return true
	default:
		return false
	}
}

// DeploymentStatus represents the rollout status of a deployment
type DeploymentStatus string

const (
	DeploymentStatusPending    DeploymentStatus = "pending"
	DeploymentStatusInProgress DeploymentStatus = "in_progress"
	DeploymentStatusSuccess    DeploymentStatus = "success"
	DeploymentStatusFailed     DeploymentStatus = "failed"
)

// String returns the string representation
func (s DeploymentStatus) String() string {
	return string(s)
}

// IsValid checks if the deployment status is valid
func (s DeploymentStatus) IsValid() bool {
	switch s {
	case DeploymentStatusPending, DeploymentStatusInProgress, DeploymentStatusSuccess, DeploymentStatusFailed:
		return true
	default:
		return false
	}
}

// RollbackStatus represents the approval/execution status of a rollback request
type RollbackStatus string

const (
	// RollbackStatusPendingApproval indicates a request awaiting a human decision
	RollbackStatusPendingApproval RollbackStatus = "pending_approval"
	// RollbackStatusApproved indicates a request cleared for execution
	RollbackStatusApproved RollbackStatus = "approved"
	// RollbackStatusRejected indicates a request declined by an approver
	RollbackStatusRejected RollbackStatus = "rejected"
	// RollbackStatusCompleted indicates a successfully executed rollback
	RollbackStatusCompleted RollbackStatus = "completed"
	// RollbackStatusFailed indicates an execution that did not restore the environment
	RollbackStatusFailed RollbackStatus = "failed"
)

// String returns the string representation
func (s RollbackStatus) String() string {
	return string(s)
}

// IsValid checks if the rollback status is valid
func (s RollbackStatus) IsValid() bool {
	switch s {
	case RollbackStatusPendingApproval, RollbackStatusApproved, RollbackStatusRejected,
		RollbackStatusCompleted, RollbackStatusFailed:
		return true
	default:
		return false
	}
}

// ConfigChangeClass is the closed classification of a configuration drift event.
// Severity is keyed on this enum, never on substring matching of free text.
type ConfigChangeClass string

const (
	// ConfigChangeCredential covers modified credentials, secrets or key material
	ConfigChangeCredential ConfigChangeClass = "credential_modification"
	// ConfigChangePrivilege covers role/permission escalation in config
	ConfigChangePrivilege ConfigChangeClass = "privilege_escalation"
	// ConfigChangeNetwork covers firewall, routing or endpoint changes
	ConfigChangeNetwork ConfigChangeClass = "network_configuration"
	// ConfigChangeGeneral covers everything else
	ConfigChangeGeneral ConfigChangeClass = "general_configuration"
)

// String returns the string representation
func (c ConfigChangeClass) String() string {
	return string(c)
}

// IsValid checks if the change class is valid
func (c ConfigChangeClass) IsValid() bool {
	switch c {
	case ConfigChangeCredential, ConfigChangePrivilege, ConfigChangeNetwork, ConfigChangeGeneral:
		return true
	default:
		return false
	}
}

// Audit action types written by the rollback engine and snapshot helpers.
// Detector audit entries use the "<alert_type>_detected" convention instead.
const (
	AuditActionRollbackInitiated = "rollback_initiated"
	AuditActionRollbackCompleted = "rollback_completed"
	AuditActionRollbackFailed    = "rollback_failed"
	AuditActionRollbackRejected  = "rollback_rejected"
	AuditActionSnapshotCreated   = "snapshot_created"
	AuditActionSnapshotVerified  = "snapshot_verified"
)
