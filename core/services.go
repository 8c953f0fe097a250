// Package core defines the domain model and collaborator contracts for the
// Vigil anomaly-detection and rollback control plane.
//
// # Architecture Overview
//
// The core package provides:
//   - Domain types (SecurityAlert, Snapshot, Deployment, RollbackRequest, AuditLogEntry)
//   - Typed operational signals consumed by the detector
//   - State machines for alert triage and rollback approval
//   - Store contracts implemented by the storage package
//
// # Design Principles
//
//  1. Interfaces defined where consumed, small and focused
//  2. Accept interfaces, return concrete types
//  3. context.Context as first parameter on every store call
//  4. Typed sentinel errors with wrapping
//
// Services that consume these contracts (detect.Detector, rollback.Engine)
// are explicit structs constructed once at process start; there are no
// package-level singletons holding mutable state.
package core

import "context"

// AlertStore is the persistence contract for security alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *SecurityAlert) error
	GetAlert(ctx context.Context, alertID string) (*SecurityAlert, error)
	GetAlertsByType(ctx context.Context, alertType AlertType, limit int) ([]SecurityAlert, error)
	GetAlertsBySeverity(ctx context.Context, severity AlertSeverity, limit int) ([]SecurityAlert, error)
	GetAlertsByStatus(ctx context.Context, status AlertStatus, limit int) ([]SecurityAlert, error)
	GetRecentAlerts(ctx context.Context, limit int) ([]SecurityAlert, error)
	UpdateAlertStatus(ctx context.Context, alertID string, status AlertStatus, userID string) error
	CountAlertsBySeverity(ctx context.Context) (map[AlertSeverity]int64, error)
}

// SnapshotStore is the persistence contract for environment snapshots.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, snapshot *Snapshot) error
	GetSnapshot(ctx context.Context, snapshotID string) (*Snapshot, error)
	MarkVerified(ctx context.Context, snapshotID, verifiedBy string) error
	GetSnapshotsByEnvironment(ctx context.Context, environment string) ([]Snapshot, error)
}

// DeploymentStore is the persistence contract for deployment records.
type DeploymentStore interface {
	CreateDeployment(ctx context.Context, deployment *Deployment) error
	GetDeployment(ctx context.Context, deploymentID string) (*Deployment, error)
	GetDeploymentsByEnvironment(ctx context.Context, environment string, limit int) ([]Deployment, error)
	MarkDeploymentFailed(ctx context.Context, deploymentID, reason string) error
}

// RollbackStore is the persistence contract for rollback requests.
type RollbackStore interface {
	CreateRequest(ctx context.Context, request *RollbackRequest) error
	GetRequest(ctx context.Context, requestID string) (*RollbackRequest, error)
	// TransitionRequest updates the request status only when the stored
	// status still equals expected; returns ErrStaleRollbackStatus otherwise.
	TransitionRequest(ctx context.Context, requestID string, expected, next RollbackStatus, approvedBy string) error
	GetTerminalRequestsByEnvironment(ctx context.Context, environment string, limit int) ([]RollbackRequest, error)
}

// AuditLog is the append-only contract for the audit trail. Every
// safety-relevant action writes exactly one entry through it.
type AuditLog interface {
	Append(ctx context.Context, entry *AuditLogEntry) error
	GetEntry(ctx context.Context, entryID string) (*AuditLogEntry, error)
	GetEntriesRequiringApproval(ctx context.Context, limit int) ([]AuditLogEntry, error)
	GetEntriesByActionType(ctx context.Context, actionType string, limit int) ([]AuditLogEntry, error)
	Approve(ctx context.Context, entryID, approverID string) error
	Statistics(ctx context.Context) (*AuditStatistics, error)
}
