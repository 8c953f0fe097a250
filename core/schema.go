package core

import (
	"time"

	"github.com/google/uuid"
)

// SecurityAlert represents a classified security finding emitted by the
// anomaly detector (or injected manually by an operator).
//
// Alerts are append-style records: everything except Status, AssignedTo and
// ResolvedAt is immutable after creation. Resolved and false_positive are
// terminal states.
type SecurityAlert struct {
	AlertID           string            `json:"alert_id"`
	Type              AlertType         `json:"type"`
	Severity          AlertSeverity     `json:"severity"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Explanation       string            `json:"explanation"`
	Status            AlertStatus       `json:"status"`
	Evidence          map[string]string `json:"evidence"`
	RollbackSuggested bool              `json:"rollback_suggested"`
	DetectedAt        time.Time         `json:"detected_at"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty"`
	AssignedTo        string            `json:"assigned_to,omitempty"`
}

// NewSecurityAlert creates a new SecurityAlert with a generated UUID,
// status "new" and an initialized evidence map.
func NewSecurityAlert(alertType AlertType, severity AlertSeverity) *SecurityAlert {
	return &SecurityAlert{
		AlertID:    uuid.New().String(),
		Type:       alertType,
		Severity:   severity,
		Status:     AlertStatusNew,
		Evidence:   make(map[string]string),
		DetectedAt: time.Now().UTC(),
	}
}

// Snapshot is an immutable capture of an environment's deployable state.
// Verified is the sole gate for rollback eligibility: an unverified snapshot
// can never be the target of a rollback execution.
type Snapshot struct {
	SnapshotID     string    `json:"snapshot_id"`
	Environment    string    `json:"environment"`
	SourceRevision string    `json:"source_revision"`
	FileManifest   []string  `json:"file_manifest"`
	CreatedAt      time.Time `json:"created_at"`
	Verified       bool      `json:"verified"`
	VerifiedBy     string    `json:"verified_by,omitempty"`
}

// NewSnapshot creates a new unverified Snapshot with a generated UUID.
func NewSnapshot(environment, sourceRevision string, manifest []string) *Snapshot {
	return &Snapshot{
		SnapshotID:     uuid.New().String(),
		Environment:    environment,
		SourceRevision: sourceRevision,
		FileManifest:   manifest,
		CreatedAt:      time.Now().UTC(),
	}
}

// Deployment links a snapshot to an environment rollout.
// RollbackAvailable is true only while the linked snapshot is verified and
// not superseded by a newer deployment in the same environment.
type Deployment struct {
	DeploymentID      string           `json:"deployment_id"`
	Environment       string           `json:"environment"`
	Version           string           `json:"version"`
	Status            DeploymentStatus `json:"status"`
	SnapshotID        string           `json:"snapshot_id"`
	DeployedBy        string           `json:"deployed_by"`
	DeployedAt        time.Time        `json:"deployed_at"`
	RollbackAvailable bool             `json:"rollback_available"`
	FailureReason     string           `json:"failure_reason,omitempty"`
}

// NewDeployment creates a new pending Deployment with a generated UUID.
func NewDeployment(environment, version, snapshotID, deployedBy string) *Deployment {
	return &Deployment{
		DeploymentID: uuid.New().String(),
		Environment:  environment,
		Version:      version,
		Status:       DeploymentStatusPending,
		SnapshotID:   snapshotID,
		DeployedBy:   deployedBy,
		DeployedAt:   time.Now().UTC(),
	}
}

// RollbackRequest is the approval-gated unit of work of the rollback engine.
// Created in pending_approval; transitions to exactly one of
// approved→{completed,failed} or rejected. Terminal states are never left.
type RollbackRequest struct {
	RequestID   string         `json:"request_id"`
	Environment string         `json:"environment"`
	SnapshotID  string         `json:"snapshot_id"`
	Reason      string         `json:"reason"`
	RequestedBy string         `json:"requested_by"`
	Explanation string         `json:"explanation"`
	Status      RollbackStatus `json:"status"`
	ApprovedBy  string         `json:"approved_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewRollbackRequest creates a RollbackRequest in pending_approval.
func NewRollbackRequest(environment, snapshotID, reason, requestedBy string) *RollbackRequest {
	now := time.Now().UTC()
	return &RollbackRequest{
		RequestID:   uuid.New().String(),
		Environment: environment,
		SnapshotID:  snapshotID,
		Reason:      reason,
		RequestedBy: requestedBy,
		Status:      RollbackStatusPendingApproval,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IntegrityCheck summarizes the verification pass run after a snapshot apply.
type IntegrityCheck struct {
	ChecksCount int       `json:"checks_count"`
	CompletedAt time.Time `json:"completed_at"`
}

// RollbackResult is the single outcome record of an executed rollback
// request. A failed result always carries a non-empty AlternativeOptions
// list so the caller can answer "what else can I do".
type RollbackResult struct {
	RequestID          string          `json:"request_id"`
	Success            bool            `json:"success"`
	CompletedAt        time.Time       `json:"completed_at"`
	Message            string          `json:"message"`
	IntegrityCheck     *IntegrityCheck `json:"integrity_check,omitempty"`
	Error              string          `json:"error,omitempty"`
	AlternativeOptions []string        `json:"alternative_options,omitempty"`
}

// RollbackOption is a candidate restoration target surfaced to operators.
type RollbackOption struct {
	SnapshotID     string    `json:"snapshot_id"`
	Environment    string    `json:"environment"`
	SourceRevision string    `json:"source_revision"`
	DeploymentID   string    `json:"deployment_id"`
	Version        string    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	Reasoning      string    `json:"reasoning"`
}

// RollbackHistoryEntry is a terminal rollback request projected for history queries.
type RollbackHistoryEntry struct {
	RequestID   string         `json:"request_id"`
	Environment string         `json:"environment"`
	Status      RollbackStatus `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Description string         `json:"description"`
	ApprovedBy  string         `json:"approved_by,omitempty"`
}

// AuditLogEntry is an append-only record of a safety-relevant action.
// After creation the only mutation allowed is the single false→true
// transition of Approved (with ApprovedBy set alongside it).
type AuditLogEntry struct {
	EntryID          string         `json:"entry_id"`
	ActionType       string         `json:"action_type"`
	Description      string         `json:"description"`
	AIReasoning      string         `json:"ai_reasoning,omitempty"`
	ContextData      map[string]any `json:"context_data,omitempty"`
	UserID           string         `json:"user_id,omitempty"`
	RequiresApproval bool           `json:"requires_approval"`
	Approved         bool           `json:"approved"`
	ApprovedBy       string         `json:"approved_by,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// NewAuditLogEntry creates an AuditLogEntry with a generated UUID and an
// initialized context map.
func NewAuditLogEntry(actionType, description string) *AuditLogEntry {
	return &AuditLogEntry{
		EntryID:     uuid.New().String(),
		ActionType:  actionType,
		Description: description,
		ContextData: make(map[string]any),
		Timestamp:   time.Now().UTC(),
	}
}

// AuditStatistics aggregates audit log counts for status reporting.
type AuditStatistics struct {
	TotalLogs        int64 `json:"total_logs"`
	AIActions        int64 `json:"ai_actions"`
	PendingApprovals int64 `json:"pending_approvals"`
	ApprovedActions  int64 `json:"approved_actions"`
}
