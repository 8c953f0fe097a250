package rollback

import "errors"

// Sentinel errors for the rollback engine
var (
	// ErrUnverifiedSnapshot is returned when a rollback references a
	// snapshot whose verified flag is false
	ErrUnverifiedSnapshot = errors.New("snapshot is unverified and cannot be a rollback target")

	// ErrRollbackInProgress is returned when a second execution is
	// attempted against an environment that already has one in flight
	ErrRollbackInProgress = errors.New("a rollback for this environment is already in progress")

	// ErrRequestNotApprovable is returned when execution or rejection is
	// attempted against a request not in an approvable state
	ErrRequestNotApprovable = errors.New("rollback request is not in an approvable state")

	// ErrNotAuthorized is returned when an approval decision is attempted
	// by a principal without approval rights
	ErrNotAuthorized = errors.New("user is not authorized to approve or reject rollbacks")

	// ErrEnvironmentMismatch is returned when a snapshot belongs to a
	// different environment than the one being rolled back
	ErrEnvironmentMismatch = errors.New("snapshot does not belong to the requested environment")
)
