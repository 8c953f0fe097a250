// Package rollback implements the approval-gated rollback engine: the only
// path by which an environment's artifacts and configuration may be
// reverted. Every request passes through human approval, every execution
// through integrity verification, and every transition through the audit
// log.
package rollback

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vigil/core"
	"vigil/metrics"
	"vigil/notify"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Engine is the rollback state machine service. It is safe for concurrent
// use; at most one execution runs per environment at a time, enforced by
// the in-flight set.
type Engine struct {
	snapshots   core.SnapshotStore
	deployments core.DeploymentStore
	requests    core.RollbackStore
	audit       core.AuditLog
	applier     Applier
	verifier    IntegrityVerifier
	notifier    notify.Notifier

	// approvers holds the principals with approval rights; an empty set
	// means approval rights are not restricted
	approvers map[string]struct{}

	// optionScanLimit bounds how many recent deployments are scanned when
	// listing rollback options
	optionScanLimit int

	storeTimeout time.Duration
	validate     *validator.Validate
	logger       *zap.SugaredLogger

	mu       sync.Mutex
	inflight map[string]struct{} // environments with an execution in flight
}

// NewEngine creates a new rollback Engine instance.
// All store dependencies are required; the constructor panics on nil.
func NewEngine(
	snapshots core.SnapshotStore,
	deployments core.DeploymentStore,
	requests core.RollbackStore,
	audit core.AuditLog,
	applier Applier,
	verifier IntegrityVerifier,
	notifier notify.Notifier,
	approverIDs []string,
	optionScanLimit int,
	storeTimeout time.Duration,
	logger *zap.SugaredLogger,
) *Engine {
	if snapshots == nil {
		panic("snapshot store is required")
	}
	if deployments == nil {
		panic("deployment store is required")
	}
	if requests == nil {
		panic("rollback store is required")
	}
	if audit == nil {
		panic("audit log is required")
	}
	if applier == nil {
		panic("applier is required")
	}
	if verifier == nil {
		panic("integrity verifier is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if notifier == nil {
		notifier = &notify.NoOpNotifier{}
	}

	approvers := make(map[string]struct{}, len(approverIDs))
	for _, id := range approverIDs {
		approvers[id] = struct{}{}
	}

	if optionScanLimit <= 0 {
		optionScanLimit = defaultOptionScanLimit
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}

	return &Engine{
		snapshots:       snapshots,
		deployments:     deployments,
		requests:        requests,
		audit:           audit,
		applier:         applier,
		verifier:        verifier,
		notifier:        notifier,
		approvers:       approvers,
		optionScanLimit: optionScanLimit,
		storeTimeout:    storeTimeout,
		validate:        validator.New(),
		logger:          logger,
		inflight:        make(map[string]struct{}),
	}
}

// defaultOptionScanLimit is used when no deployment scan bound is configured
const defaultOptionScanLimit = 500

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.storeTimeout)
}

// canApprove reports whether a principal holds approval rights
func (e *Engine) canApprove(userID string) bool {
	if len(e.approvers) == 0 {
		return userID != ""
	}
	_, ok := e.approvers[userID]
	return ok
}

// GetRollbackOptions returns every verified snapshot linked to a deployment
// in the environment, enriched with a generated description, most recent
// snapshot first. Unverified snapshots are excluded unconditionally.
func (e *Engine) GetRollbackOptions(ctx context.Context, environment string) ([]core.RollbackOption, error) {
	if environment == "" {
		return nil, fmt.Errorf("environment cannot be empty")
	}

	depCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	deployments, err := e.deployments.GetDeploymentsByEnvironment(depCtx, environment, e.optionScanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}

	now := time.Now().UTC()
	seen := make(map[string]struct{})
	options := make([]core.RollbackOption, 0)

	for i := range deployments {
		deployment := deployments[i]
		if _, dup := seen[deployment.SnapshotID]; dup {
			continue
		}
		seen[deployment.SnapshotID] = struct{}{}

		snapCtx, snapCancel := e.storeCtx(ctx)
		snapshot, err := e.snapshots.GetSnapshot(snapCtx, deployment.SnapshotID)
		snapCancel()
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot %s: %w", deployment.SnapshotID, err)
		}

		// Hard filter: unverified snapshots are never offered
		if !snapshot.Verified {
			continue
		}

		options = append(options, core.RollbackOption{
			SnapshotID:     snapshot.SnapshotID,
			Environment:    snapshot.Environment,
			SourceRevision: snapshot.SourceRevision,
			DeploymentID:   deployment.DeploymentID,
			Version:        deployment.Version,
			CreatedAt:      snapshot.CreatedAt,
			Reasoning:      OptionReasoning(snapshot, &deployment, now),
		})
	}

	sort.Slice(options, func(i, j int) bool {
		return options[i].CreatedAt.After(options[j].CreatedAt)
	})

	return options, nil
}

// InitiateParams are the validated inputs of InitiateRollback
type InitiateParams struct {
	Environment string `validate:"required"`
	SnapshotID  string `validate:"required,uuid4|uuid"`
	Reason      string `validate:"required"`
	RequestedBy string `validate:"required"`
}

// InitiateRollback creates a rollback request in pending_approval. The
// referenced snapshot must be verified; the request's audit entry is
// durably written before the request is returned, so execution can never
// observe a request without its initiation trail.
func (e *Engine) InitiateRollback(ctx context.Context, environment, snapshotID, reason, requestedBy string) (*core.RollbackRequest, error) {
	params := InitiateParams{
		Environment: environment,
		SnapshotID:  snapshotID,
		Reason:      reason,
		RequestedBy: requestedBy,
	}
	if err := e.validate.Struct(params); err != nil {
		return nil, fmt.Errorf("invalid rollback initiation: %w", err)
	}

	snapCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	snapshot, err := e.snapshots.GetSnapshot(snapCtx, snapshotID)
	if err != nil {
		return nil, err
	}

	if snapshot.Environment != environment {
		return nil, fmt.Errorf("%w: snapshot %s belongs to %q", ErrEnvironmentMismatch, snapshotID, snapshot.Environment)
	}
	if !snapshot.Verified {
		return nil, fmt.Errorf("%w: %s", ErrUnverifiedSnapshot, snapshotID)
	}

	request := core.NewRollbackRequest(environment, snapshotID, reason, requestedBy)
	request.Explanation = InitiationNarrative(request, snapshot, time.Now().UTC())

	createCtx, createCancel := e.storeCtx(ctx)
	defer createCancel()

	if err := e.requests.CreateRequest(createCtx, request); err != nil {
		return nil, fmt.Errorf("failed to create rollback request: %w", err)
	}

	entry := core.NewAuditLogEntry(core.AuditActionRollbackInitiated,
		fmt.Sprintf("Rollback of %s to snapshot %s requested", environment, snapshotID))
	entry.UserID = requestedBy
	entry.AIReasoning = request.Explanation
	entry.RequiresApproval = true
	entry.ContextData["request_id"] = request.RequestID
	entry.ContextData["snapshot_id"] = snapshotID
	entry.ContextData["environment"] = environment
	entry.ContextData["reason"] = reason

	auditCtx, auditCancel := e.storeCtx(ctx)
	defer auditCancel()

	if err := e.audit.Append(auditCtx, entry); err != nil {
		// A request without its initiation trail must never remain
		// approvable: retire it before surfacing the failure.
		revokeCtx, revokeCancel := e.storeCtx(context.WithoutCancel(ctx))
		defer revokeCancel()
		if terr := e.requests.TransitionRequest(revokeCtx, request.RequestID,
			core.RollbackStatusPendingApproval, core.RollbackStatusRejected, ""); terr != nil {
			e.logger.Errorf("Failed to retire unaudited rollback request %s: %v", request.RequestID, terr)
		}
		return nil, fmt.Errorf("failed to audit rollback initiation: %w", err)
	}

	if err := e.notifier.NotifyApprovalRequired(ctx, request); err != nil {
		e.logger.Warnf("Failed to notify approvers for request %s: %v", request.RequestID, err)
	}

	metrics.RollbacksInitiated.Inc()
	e.logger.Infow("Rollback request created",
		"request_id", request.RequestID,
		"environment", environment,
		"snapshot_id", snapshotID,
		"requested_by", requestedBy,
	)

	return request, nil
}

// ExecuteRollback executes an approved (or approvable) rollback request.
// The approval decision by approverID is recorded as part of this call:
// the request transitions pending_approval → approved → {completed,failed}.
// Execution against a terminal request fails closed without side effects.
//
// Failure is an expected, modeled outcome: apply or verification errors are
// contained in a RollbackResult carrying alternative remediation options,
// never surfaced as bare errors.
func (e *Engine) ExecuteRollback(ctx context.Context, requestID, approverID string) (*core.RollbackResult, error) {
	if requestID == "" {
		return nil, fmt.Errorf("request ID cannot be empty")
	}
	if !e.canApprove(approverID) {
		return nil, fmt.Errorf("%w: %q", ErrNotAuthorized, approverID)
	}

	getCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	request, err := e.requests.GetRequest(getCtx, requestID)
	if err != nil {
		return nil, err
	}

	switch request.Status {
	case core.RollbackStatusPendingApproval:
		// Record the approval transition before anything touches the
		// environment
		if err := e.approveRequest(ctx, request, approverID); err != nil {
			return nil, err
		}
	case core.RollbackStatusApproved:
		// Approved earlier; proceed
	default:
		return nil, fmt.Errorf("%w: request %s is %s", ErrRequestNotApprovable, requestID, request.Status)
	}

	// At most one execution per environment; a concurrent attempt is
	// rejected, never queued
	if !e.acquireEnvironment(request.Environment) {
		return nil, fmt.Errorf("%w: %s", ErrRollbackInProgress, request.Environment)
	}
	defer e.releaseEnvironment(request.Environment)

	// From here the rollback runs to completion even if the caller goes
	// away: partial application must never be abandoned mid-flight.
	execCtx := context.WithoutCancel(ctx)

	started := time.Now()
	result := e.performRollback(execCtx, request, approverID)
	metrics.RollbackExecutionDuration.Observe(time.Since(started).Seconds())

	return result, nil
}

// approveRequest records the pending_approval → approved transition and
// approves the initiation audit entry.
func (e *Engine) approveRequest(ctx context.Context, request *core.RollbackRequest, approverID string) error {
	transCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.requests.TransitionRequest(transCtx, request.RequestID,
		core.RollbackStatusPendingApproval, core.RollbackStatusApproved, approverID); err != nil {
		return err
	}
	request.Status = core.RollbackStatusApproved
	request.ApprovedBy = approverID

	// Mark the initiation entry approved; best effort, the approval is
	// already durable on the request row
	if entry := e.findInitiationEntry(ctx, request.RequestID); entry != nil {
		approveCtx, approveCancel := e.storeCtx(ctx)
		defer approveCancel()
		if err := e.audit.Approve(approveCtx, entry.EntryID, approverID); err != nil {
			e.logger.Warnf("Failed to approve initiation audit entry for request %s: %v", request.RequestID, err)
		}
	}

	return nil
}

// findInitiationEntry locates the audit entry written by InitiateRollback
// for a request, using the request id as the join key.
func (e *Engine) findInitiationEntry(ctx context.Context, requestID string) *core.AuditLogEntry {
	listCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	entries, err := e.audit.GetEntriesByActionType(listCtx, core.AuditActionRollbackInitiated, 200)
	if err != nil {
		e.logger.Warnf("Failed to list initiation audit entries: %v", err)
		return nil
	}

	for i := range entries {
		if id, ok := entries[i].ContextData["request_id"].(string); ok && id == requestID {
			return &entries[i]
		}
	}
	return nil
}

// performRollback runs the apply + verify sequence for an approved request
// and resolves it into a terminal state.
func (e *Engine) performRollback(ctx context.Context, request *core.RollbackRequest, approverID string) *core.RollbackResult {
	snapCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	// Re-validate: the snapshot must still be verified at execution time
	snapshot, err := e.snapshots.GetSnapshot(snapCtx, request.SnapshotID)
	if err != nil {
		return e.failRollback(ctx, request, approverID, fmt.Errorf("snapshot re-validation failed: %w", err))
	}
	if !snapshot.Verified {
		return e.failRollback(ctx, request, approverID, fmt.Errorf("%w: %s", ErrUnverifiedSnapshot, snapshot.SnapshotID))
	}

	if err := e.applier.Apply(ctx, request.Environment, snapshot); err != nil {
		return e.failRollback(ctx, request, approverID, fmt.Errorf("apply failed: %w", err))
	}

	check, err := e.verifier.Verify(ctx, request.Environment, snapshot)
	if err != nil {
		return e.failRollback(ctx, request, approverID, err)
	}

	transCtx, transCancel := e.storeCtx(ctx)
	defer transCancel()

	if err := e.requests.TransitionRequest(transCtx, request.RequestID,
		core.RollbackStatusApproved, core.RollbackStatusCompleted, approverID); err != nil {
		return e.failRollback(ctx, request, approverID, fmt.Errorf("failed to record completion: %w", err))
	}

	entry := core.NewAuditLogEntry(core.AuditActionRollbackCompleted,
		fmt.Sprintf("Rollback of %s to snapshot %s completed", request.Environment, request.SnapshotID))
	entry.UserID = approverID
	entry.ContextData["request_id"] = request.RequestID
	entry.ContextData["approved_by"] = approverID
	entry.ContextData["integrity_verified"] = true
	entry.ContextData["checks_count"] = check.ChecksCount

	auditCtx, auditCancel := e.storeCtx(ctx)
	defer auditCancel()

	if err := e.audit.Append(auditCtx, entry); err != nil {
		e.logger.Errorf("Failed to audit rollback completion for %s: %v", request.RequestID, err)
	}

	request.Status = core.RollbackStatusCompleted
	if err := e.notifier.NotifyRollbackResolved(ctx, request, true); err != nil {
		e.logger.Warnf("Failed to notify rollback completion for %s: %v", request.RequestID, err)
	}

	metrics.RollbacksExecuted.WithLabelValues("completed").Inc()
	e.logger.Infow("Rollback completed",
		"request_id", request.RequestID,
		"environment", request.Environment,
		"checks_count", check.ChecksCount,
	)

	return &core.RollbackResult{
		RequestID:      request.RequestID,
		Success:        true,
		CompletedAt:    time.Now().UTC(),
		Message:        fmt.Sprintf("Environment %s restored to snapshot %s", request.Environment, request.SnapshotID),
		IntegrityCheck: check,
	}
}

// failRollback resolves a request into the failed state with alternative
// remediation options and its audit trail.
func (e *Engine) failRollback(ctx context.Context, request *core.RollbackRequest, approverID string, cause error) *core.RollbackResult {
	transCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.requests.TransitionRequest(transCtx, request.RequestID,
		core.RollbackStatusApproved, core.RollbackStatusFailed, approverID); err != nil {
		e.logger.Errorf("Failed to record rollback failure for %s: %v", request.RequestID, err)
	}

	alternatives := AlternativeOptions(request.Environment, request.SnapshotID)

	entry := core.NewAuditLogEntry(core.AuditActionRollbackFailed,
		fmt.Sprintf("Rollback of %s to snapshot %s failed", request.Environment, request.SnapshotID))
	entry.UserID = approverID
	entry.ContextData["request_id"] = request.RequestID
	entry.ContextData["approved_by"] = approverID
	entry.ContextData["error"] = cause.Error()

	auditCtx, auditCancel := e.storeCtx(ctx)
	defer auditCancel()

	if err := e.audit.Append(auditCtx, entry); err != nil {
		e.logger.Errorf("Failed to audit rollback failure for %s: %v", request.RequestID, err)
	}

	request.Status = core.RollbackStatusFailed
	if err := e.notifier.NotifyRollbackResolved(ctx, request, false); err != nil {
		e.logger.Warnf("Failed to notify rollback failure for %s: %v", request.RequestID, err)
	}

	metrics.RollbacksExecuted.WithLabelValues("failed").Inc()
	e.logger.Warnw("Rollback failed",
		"request_id", request.RequestID,
		"environment", request.Environment,
		"error", cause,
	)

	return &core.RollbackResult{
		RequestID:          request.RequestID,
		Success:            false,
		CompletedAt:        time.Now().UTC(),
		Message:            fmt.Sprintf("Rollback of %s did not complete", request.Environment),
		Error:              cause.Error(),
		AlternativeOptions: alternatives,
	}
}

// RejectRollback transitions a pending request to rejected and writes its
// audit entry. Only principals with approval rights may reject.
func (e *Engine) RejectRollback(ctx context.Context, requestID, rejectedBy, reason string) error {
	if requestID == "" {
		return fmt.Errorf("request ID cannot be empty")
	}
	if !e.canApprove(rejectedBy) {
		return fmt.Errorf("%w: %q", ErrNotAuthorized, rejectedBy)
	}

	getCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	request, err := e.requests.GetRequest(getCtx, requestID)
	if err != nil {
		return err
	}

	if request.Status != core.RollbackStatusPendingApproval {
		return fmt.Errorf("%w: request %s is %s", ErrRequestNotApprovable, requestID, request.Status)
	}

	transCtx, transCancel := e.storeCtx(ctx)
	defer transCancel()

	if err := e.requests.TransitionRequest(transCtx, requestID,
		core.RollbackStatusPendingApproval, core.RollbackStatusRejected, ""); err != nil {
		return err
	}

	entry := core.NewAuditLogEntry(core.AuditActionRollbackRejected,
		fmt.Sprintf("Rollback of %s to snapshot %s rejected", request.Environment, request.SnapshotID))
	entry.UserID = rejectedBy
	entry.ContextData["request_id"] = requestID
	entry.ContextData["rejected_by"] = rejectedBy
	entry.ContextData["reason"] = reason

	auditCtx, auditCancel := e.storeCtx(ctx)
	defer auditCancel()

	if err := e.audit.Append(auditCtx, entry); err != nil {
		return fmt.Errorf("failed to audit rollback rejection: %w", err)
	}

	metrics.RollbacksRejected.Inc()
	e.logger.Infow("Rollback rejected",
		"request_id", requestID,
		"rejected_by", rejectedBy,
		"reason", reason,
	)

	return nil
}

// GetRollbackHistory returns completed, failed and rejected requests for an
// environment, most recent first.
func (e *Engine) GetRollbackHistory(ctx context.Context, environment string) ([]core.RollbackHistoryEntry, error) {
	if environment == "" {
		return nil, fmt.Errorf("environment cannot be empty")
	}

	listCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	requests, err := e.requests.GetTerminalRequestsByEnvironment(listCtx, environment, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollback history: %w", err)
	}

	history := make([]core.RollbackHistoryEntry, 0, len(requests))
	for i := range requests {
		request := requests[i]
		history = append(history, core.RollbackHistoryEntry{
			RequestID:   request.RequestID,
			Environment: request.Environment,
			Status:      request.Status,
			Timestamp:   request.UpdatedAt,
			Description: fmt.Sprintf("Rollback to snapshot %s (%s): %s", request.SnapshotID, request.Reason, request.Status),
			ApprovedBy:  request.ApprovedBy,
		})
	}

	return history, nil
}

// acquireEnvironment marks an environment as having an execution in flight
func (e *Engine) acquireEnvironment(environment string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inflight[environment]; busy {
		return false
	}
	e.inflight[environment] = struct{}{}
	return true
}

func (e *Engine) releaseEnvironment(environment string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, environment)
}
