package rollback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vigil/core"
	"vigil/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type engineFixture struct {
	engine      *Engine
	files       *FileStore
	snapshots   *storage.SQLiteSnapshotStorage
	deployments *storage.SQLiteDeploymentStorage
	requests    *storage.SQLiteRollbackStorage
	audit       *storage.SQLiteAuditStorage
}

func newEngineFixture(t *testing.T, approvers []string) *engineFixture {
	t.Helper()

	logger := zap.NewNop().Sugar()
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "vigil-test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	snapshots, err := storage.NewSQLiteSnapshotStorage(db, logger)
	require.NoError(t, err)
	deployments, err := storage.NewSQLiteDeploymentStorage(db, logger)
	require.NoError(t, err)
	requests, err := storage.NewSQLiteRollbackStorage(db, logger)
	require.NoError(t, err)
	audit, err := storage.NewSQLiteAuditStorage(db, logger)
	require.NoError(t, err)

	files := newTestFileStore(t)
	engine := NewEngine(snapshots, deployments, requests, audit, files, files,
		nil, approvers, 0, 5*time.Second, logger)

	return &engineFixture{
		engine:      engine,
		files:       files,
		snapshots:   snapshots,
		deployments: deployments,
		requests:    requests,
		audit:       audit,
	}
}

// brokenAuditLog delegates to a real audit store but fails every Append,
// simulating an unavailable audit backend.
type brokenAuditLog struct {
	core.AuditLog
}

func (b *brokenAuditLog) Append(ctx context.Context, entry *core.AuditLogEntry) error {
	return errors.New("audit store unavailable")
}

// preparedSnapshot stages content, records the snapshot, verifies it and
// registers a completed deployment for it
func (f *engineFixture) preparedSnapshot(t *testing.T, environment, version string) *core.Snapshot {
	t.Helper()
	ctx := context.Background()

	snapshot, err := f.engine.CreateSnapshot(ctx, environment, "rev-"+version,
		[]string{"app/config.yaml", "app/binary"}, "release-bot")
	require.NoError(t, err)

	stageSnapshot(t, f.files, snapshot, map[string]string{
		"app/config.yaml": "version: " + version + "\n",
		"app/binary":      "binary-" + version,
	})

	require.NoError(t, f.engine.VerifySnapshot(ctx, snapshot.SnapshotID, "release-bot"))

	_, err = f.engine.RecordDeployment(ctx, environment, version, snapshot.SnapshotID, "release-bot")
	require.NoError(t, err)

	snapshot, err = f.snapshots.GetSnapshot(ctx, snapshot.SnapshotID)
	require.NoError(t, err)
	return snapshot
}

func TestEngine_EndToEndRollback(t *testing.T) {
	f := newEngineFixture(t, []string{"admin-1"})
	ctx := context.Background()

	snapshot := f.preparedSnapshot(t, "staging", "1.4.0")

	options, err := f.engine.GetRollbackOptions(ctx, "staging")
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, snapshot.SnapshotID, options[0].SnapshotID)
	assert.Contains(t, options[0].Reasoning, "1.4.0")

	request, err := f.engine.InitiateRollback(ctx, "staging", snapshot.SnapshotID,
		"deployment broke health checks", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, core.RollbackStatusPendingApproval, request.Status)

	// The narrative carries every analysis section and the approval gate
	for _, section := range []string{"Rollback Analysis", "Target State", "Risk Assessment", "Recommendation"} {
		assert.Contains(t, request.Explanation, section)
	}
	assert.Contains(t, request.Explanation, "Human approval is required before execution.")

	// Initiation is audited as pending approval before execution happens
	pending, err := f.audit.GetEntriesRequiringApproval(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, core.AuditActionRollbackInitiated, pending[0].ActionType)
	assert.Equal(t, request.RequestID, pending[0].ContextData["request_id"])

	result, err := f.engine.ExecuteRollback(ctx, request.RequestID, "admin-1")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.IntegrityCheck)
	assert.Equal(t, 2, result.IntegrityCheck.ChecksCount)
	assert.Empty(t, result.Error)

	// The environment tree now holds the snapshot content
	restored, err := os.ReadFile(filepath.Join(f.files.EnvironmentPath("staging"), "app/config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "version: 1.4.0\n", string(restored))

	// Request resolved with the approver recorded
	stored, err := f.requests.GetRequest(ctx, request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, core.RollbackStatusCompleted, stored.Status)
	assert.Equal(t, "admin-1", stored.ApprovedBy)

	// Initiation entry was approved and completion audited
	pending, err = f.audit.GetEntriesRequiringApproval(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	completed, err := f.audit.GetEntriesByActionType(ctx, core.AuditActionRollbackCompleted, 10)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "admin-1", completed[0].ContextData["approved_by"])
	assert.Equal(t, true, completed[0].ContextData["integrity_verified"])

	history, err := f.engine.GetRollbackHistory(ctx, "staging")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, core.RollbackStatusCompleted, history[0].Status)
	assert.Equal(t, "admin-1", history[0].ApprovedBy)
}

func TestEngine_UnverifiedSnapshotRefused(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	snapshot, err := f.engine.CreateSnapshot(ctx, "staging", "rev-1",
		[]string{"app/config.yaml"}, "release-bot")
	require.NoError(t, err)

	_, err = f.engine.InitiateRollback(ctx, "staging", snapshot.SnapshotID, "reason", "dev-1")
	assert.ErrorIs(t, err, ErrUnverifiedSnapshot)
}

func TestEngine_OptionsExcludeUnverifiedSnapshots(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	f.preparedSnapshot(t, "staging", "1.0.0")

	// A deployed but never verified snapshot must not appear
	unverified, err := f.engine.CreateSnapshot(ctx, "staging", "rev-x",
		[]string{"app/config.yaml"}, "release-bot")
	require.NoError(t, err)
	deployment, err := f.engine.RecordDeployment(ctx, "staging", "1.1.0", unverified.SnapshotID, "release-bot")
	require.NoError(t, err)
	assert.False(t, deployment.RollbackAvailable)

	options, err := f.engine.GetRollbackOptions(ctx, "staging")
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.NotEqual(t, unverified.SnapshotID, options[0].SnapshotID)
}

func TestEngine_OptionsOrderedMostRecentFirst(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	first := f.preparedSnapshot(t, "production", "1.0.0")
	second := f.preparedSnapshot(t, "production", "1.1.0")

	// Make creation times distinct enough to order
	options, err := f.engine.GetRollbackOptions(ctx, "production")
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.False(t, options[0].CreatedAt.Before(options[1].CreatedAt))

	seen := map[string]bool{options[0].SnapshotID: true, options[1].SnapshotID: true}
	assert.True(t, seen[first.SnapshotID])
	assert.True(t, seen[second.SnapshotID])
}

func TestEngine_EnvironmentMismatchRefused(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	snapshot := f.preparedSnapshot(t, "staging", "1.0.0")

	_, err := f.engine.InitiateRollback(ctx, "production", snapshot.SnapshotID, "reason", "dev-1")
	assert.ErrorIs(t, err, ErrEnvironmentMismatch)
}

func TestEngine_ExecuteRefusedForUnauthorizedApprover(t *testing.T) {
	f := newEngineFixture(t, []string{"admin-1"})
	ctx := context.Background()

	snapshot := f.preparedSnapshot(t, "staging", "1.0.0")
	request, err := f.engine.InitiateRollback(ctx, "staging", snapshot.SnapshotID, "reason", "dev-1")
	require.NoError(t, err)

	_, err = f.engine.ExecuteRollback(ctx, request.RequestID, "intruder")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// An empty approver is never acceptable, even without a configured set
	open := newEngineFixture(t, nil)
	snapshot2 := open.preparedSnapshot(t, "staging", "1.0.0")
	request2, err := open.engine.InitiateRollback(ctx, "staging", snapshot2.SnapshotID, "reason", "dev-1")
	require.NoError(t, err)
	_, err = open.engine.ExecuteRollback(ctx, request2.RequestID, "")
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestEngine_TerminalRequestsAreFrozen(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	snapshot := f.preparedSnapshot(t, "staging", "1.0.0")
	request, err := f.engine.InitiateRollback(ctx, "staging", snapshot.SnapshotID, "reason", "dev-1")
	require.NoError(t, err)

	result, err := f.engine.ExecuteRollback(ctx, request.RequestID, "admin-1")
	require.NoError(t, err)
	require.True(t, result.Success)

	// A second execution attempt fails closed with no side effects
	_, err = f.engine.ExecuteRollback(ctx, request.RequestID, "admin-1")
	assert.ErrorIs(t, err, ErrRequestNotApprovable)

	history, err := f.engine.GetRollbackHistory(ctx, "staging")
	require.NoError(t, err)
	assert.Len(t, history, 1, "re-execution must not add history entries")
}

func TestEngine_RejectRollback(t *testing.T) {
	f := newEngineFixture(t, []string{"admin-1"})
	ctx := context.Background()

	snapshot := f.preparedSnapshot(t, "staging", "1.0.0")
	request, err := f.engine.InitiateRollback(ctx, "staging", snapshot.SnapshotID, "reason", "dev-1")
	require.NoError(t, err)

	require.NoError(t, f.engine.RejectRollback(ctx, request.RequestID, "admin-1", "not justified"))

	stored, err := f.requests.GetRequest(ctx, request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, core.RollbackStatusRejected, stored.Status)

	entries, err := f.audit.GetEntriesByActionType(ctx, core.AuditActionRollbackRejected, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin-1", entries[0].ContextData["rejected_by"])
	assert.Equal(t, "not justified", entries[0].ContextData["reason"])

	// A rejected request can never execute
	_, err = f.engine.ExecuteRollback(ctx, request.RequestID, "admin-1")
	assert.ErrorIs(t, err, ErrRequestNotApprovable)

	// And cannot be rejected twice
	err = f.engine.RejectRollback(ctx, request.RequestID, "admin-1", "again")
	assert.ErrorIs(t, err, ErrRequestNotApprovable)
}

func TestEngine_FailedExecutionCarriesAlternatives(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	snapshot := f.preparedSnapshot(t, "staging", "1.0.0")
	request, err := f.engine.InitiateRollback(ctx, "staging", snapshot.SnapshotID, "reason", "dev-1")
	require.NoError(t, err)

	// Destroy the staged content so apply fails at execution time
	require.NoError(t, os.RemoveAll(f.files.SnapshotPath(snapshot.SnapshotID)))

	result, err := f.engine.ExecuteRollback(ctx, request.RequestID, "admin-1")
	require.NoError(t, err, "execution failure is a modeled outcome, not an error")
	require.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.GreaterOrEqual(t, len(result.AlternativeOptions), 3)

	stored, err := f.requests.GetRequest(ctx, request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, core.RollbackStatusFailed, stored.Status)

	failures, err := f.audit.GetEntriesByActionType(ctx, core.AuditActionRollbackFailed, 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.NotEmpty(t, failures[0].ContextData["error"])
}

func TestInitiateRollback_AuditFailureRetiresRequest(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	snapshot := f.preparedSnapshot(t, "staging", "1.0.0")

	broken := NewEngine(f.snapshots, f.deployments, f.requests, &brokenAuditLog{AuditLog: f.audit},
		f.files, f.files, nil, nil, 0, 5*time.Second, zap.NewNop().Sugar())

	_, err := broken.InitiateRollback(ctx, "staging", snapshot.SnapshotID, "reason", "dev-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit")

	// The orphaned request was retired, so it can never execute
	terminal, err := f.requests.GetTerminalRequestsByEnvironment(ctx, "staging", 10)
	require.NoError(t, err)
	require.Len(t, terminal, 1)
	assert.Equal(t, core.RollbackStatusRejected, terminal[0].Status)

	_, err = f.engine.ExecuteRollback(ctx, terminal[0].RequestID, "admin-1")
	assert.ErrorIs(t, err, ErrRequestNotApprovable)
}

func TestGetRollbackOptions_ScanLimitFromConfig(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	for _, version := range []string{"1.0.0", "1.1.0", "1.2.0"} {
		f.preparedSnapshot(t, "staging", version)
	}

	narrow := NewEngine(f.snapshots, f.deployments, f.requests, f.audit,
		f.files, f.files, nil, nil, 2, 5*time.Second, zap.NewNop().Sugar())
	options, err := narrow.GetRollbackOptions(ctx, "staging")
	require.NoError(t, err)
	assert.Len(t, options, 2)

	// The default bound covers the full deployment history here
	options, err = f.engine.GetRollbackOptions(ctx, "staging")
	require.NoError(t, err)
	assert.Len(t, options, 3)
}

func TestEngine_OneExecutionPerEnvironment(t *testing.T) {
	f := newEngineFixture(t, nil)

	require.True(t, f.engine.acquireEnvironment("staging"))
	assert.False(t, f.engine.acquireEnvironment("staging"), "second acquisition must be rejected")
	assert.True(t, f.engine.acquireEnvironment("production"), "other environments are unaffected")

	f.engine.releaseEnvironment("staging")
	assert.True(t, f.engine.acquireEnvironment("staging"))
}

func TestEngine_SnapshotLifecycle(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	snapshot, err := f.engine.CreateSnapshot(ctx, "staging", "rev-1",
		[]string{"app/config.yaml"}, "release-bot")
	require.NoError(t, err)
	assert.False(t, snapshot.Verified)

	created, err := f.audit.GetEntriesByActionType(ctx, core.AuditActionSnapshotCreated, 10)
	require.NoError(t, err)
	assert.Len(t, created, 1)

	// Verification fails while content is missing
	err = f.engine.VerifySnapshot(ctx, snapshot.SnapshotID, "release-bot")
	require.Error(t, err)

	stageSnapshot(t, f.files, snapshot, map[string]string{"app/config.yaml": "content"})
	require.NoError(t, f.engine.VerifySnapshot(ctx, snapshot.SnapshotID, "release-bot"))

	stored, err := f.snapshots.GetSnapshot(ctx, snapshot.SnapshotID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.Equal(t, "release-bot", stored.VerifiedBy)

	verified, err := f.audit.GetEntriesByActionType(ctx, core.AuditActionSnapshotVerified, 10)
	require.NoError(t, err)
	assert.Len(t, verified, 1)

	// Re-verification is a no-op
	require.NoError(t, f.engine.VerifySnapshot(ctx, snapshot.SnapshotID, "someone-else"))
	stored, err = f.snapshots.GetSnapshot(ctx, snapshot.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, "release-bot", stored.VerifiedBy)

	// Empty manifests are rejected up front
	_, err = f.engine.CreateSnapshot(ctx, "staging", "rev-2", nil, "release-bot")
	require.Error(t, err)
}
