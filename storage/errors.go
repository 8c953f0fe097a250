package storage

import "errors"

// Storage error constants
var (
	// ErrAlertNotFound is returned when a security alert is not found
	ErrAlertNotFound = errors.New("alert not found")

	// ErrSnapshotNotFound is returned when a snapshot is not found
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrDeploymentNotFound is returned when a deployment is not found
	ErrDeploymentNotFound = errors.New("deployment not found")

	// ErrRollbackRequestNotFound is returned when a rollback request is not found
	ErrRollbackRequestNotFound = errors.New("rollback request not found")

	// ErrAuditEntryNotFound is returned when an audit log entry is not found
	ErrAuditEntryNotFound = errors.New("audit entry not found")

	// ErrStaleRollbackStatus is returned when a guarded status transition
	// finds the stored status no longer matches the expected prior status
	ErrStaleRollbackStatus = errors.New("rollback request status changed concurrently")

	// ErrAuditAlreadyApproved is returned when approving an entry twice;
	// the approved flag only ever transitions false→true once
	ErrAuditAlreadyApproved = errors.New("audit entry already approved")

	// ErrAlertTerminal is returned when updating an alert already resolved
	// or dismissed as false positive
	ErrAlertTerminal = errors.New("alert is in a terminal state")

	// ErrDuplicateID is returned when inserting a record whose ID already exists
	ErrDuplicateID = errors.New("record with this ID already exists")
)
