package rollback

import (
	"context"
	"fmt"

	"vigil/core"
)

// SnapshotChecker validates that a snapshot's content is complete and
// readable before the snapshot is marked verified. FileStore implements it.
type SnapshotChecker interface {
	CheckSnapshot(ctx context.Context, snapshot *core.Snapshot) error
}

// CreateSnapshot records a new unverified snapshot for an environment and
// writes its audit entry. The snapshot cannot be a rollback target until
// VerifySnapshot succeeds.
func (e *Engine) CreateSnapshot(ctx context.Context, environment, sourceRevision string, manifest []string, createdBy string) (*core.Snapshot, error) {
	if environment == "" {
		return nil, fmt.Errorf("environment cannot be empty")
	}
	if len(manifest) == 0 {
		return nil, fmt.Errorf("snapshot manifest cannot be empty")
	}
	for _, rel := range manifest {
		if err := validateManifestPath(rel); err != nil {
			return nil, err
		}
	}

	snapshot := core.NewSnapshot(environment, sourceRevision, manifest)

	createCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.snapshots.CreateSnapshot(createCtx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}

	entry := core.NewAuditLogEntry(core.AuditActionSnapshotCreated,
		fmt.Sprintf("Snapshot %s captured for %s at revision %s", snapshot.SnapshotID, environment, sourceRevision))
	entry.UserID = createdBy
	entry.ContextData["snapshot_id"] = snapshot.SnapshotID
	entry.ContextData["environment"] = environment
	entry.ContextData["manifest_size"] = len(manifest)

	auditCtx, auditCancel := e.storeCtx(ctx)
	defer auditCancel()

	if err := e.audit.Append(auditCtx, entry); err != nil {
		return nil, fmt.Errorf("failed to audit snapshot creation: %w", err)
	}

	e.logger.Infow("Snapshot created",
		"snapshot_id", snapshot.SnapshotID,
		"environment", environment,
		"source_revision", sourceRevision,
		"manifest_size", len(manifest),
	)

	return snapshot, nil
}

// VerifySnapshot checks a snapshot's stored content against its manifest
// and marks it verified. Only after this call can the snapshot be offered
// or accepted as a rollback target.
func (e *Engine) VerifySnapshot(ctx context.Context, snapshotID, verifiedBy string) error {
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID cannot be empty")
	}

	getCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	snapshot, err := e.snapshots.GetSnapshot(getCtx, snapshotID)
	if err != nil {
		return err
	}
	if snapshot.Verified {
		return nil
	}

	if checker, ok := e.applier.(SnapshotChecker); ok {
		if err := checker.CheckSnapshot(ctx, snapshot); err != nil {
			return fmt.Errorf("snapshot %s failed content verification: %w", snapshotID, err)
		}
	}

	markCtx, markCancel := e.storeCtx(ctx)
	defer markCancel()

	if err := e.snapshots.MarkVerified(markCtx, snapshotID, verifiedBy); err != nil {
		return err
	}

	entry := core.NewAuditLogEntry(core.AuditActionSnapshotVerified,
		fmt.Sprintf("Snapshot %s verified", snapshotID))
	entry.UserID = verifiedBy
	entry.ContextData["snapshot_id"] = snapshotID
	entry.ContextData["environment"] = snapshot.Environment

	auditCtx, auditCancel := e.storeCtx(ctx)
	defer auditCancel()

	if err := e.audit.Append(auditCtx, entry); err != nil {
		return fmt.Errorf("failed to audit snapshot verification: %w", err)
	}

	e.logger.Infow("Snapshot verified",
		"snapshot_id", snapshotID,
		"verified_by", verifiedBy,
	)

	return nil
}

// RecordDeployment registers a completed deployment of a snapshot so it
// appears among the environment's rollback options.
func (e *Engine) RecordDeployment(ctx context.Context, environment, version, snapshotID, deployedBy string) (*core.Deployment, error) {
	if environment == "" || version == "" {
		return nil, fmt.Errorf("environment and version cannot be empty")
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

	deployment := core.NewDeployment(environment, version, snapshotID, deployedBy)
	deployment.Status = core.DeploymentStatusSuccess
	deployment.RollbackAvailable = snapshot.Verified

	createCtx, createCancel := e.storeCtx(ctx)
	defer createCancel()

	if err := e.deployments.CreateDeployment(createCtx, deployment); err != nil {
		return nil, fmt.Errorf("failed to record deployment: %w", err)
	}

	e.logger.Infow("Deployment recorded",
		"deployment_id", deployment.DeploymentID,
		"environment", environment,
		"version", version,
		"snapshot_id", snapshotID,
	)

	return deployment, nil
}
