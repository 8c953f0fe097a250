package storage

import (
	"context"
	"testing"
	"time"

	"vigil/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuditStorage(t *testing.T) *SQLiteAuditStorage {
	t.Helper()
	storage, err := NewSQLiteAuditStorage(setupTestDB(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	return storage
}

func TestAppend_RoundTrip(t *testing.T) {
	storage := newAuditStorage(t)
	ctx := context.Background()

	entry := core.NewAuditLogEntry(core.AuditActionRollbackInitiated, "Rollback of staging requested")
	entry.UserID = "dev-1"
	entry.AIReasoning = "Rollback Analysis\n..."
	entry.RequiresApproval = true
	entry.ContextData["request_id"] = "req-123"
	entry.ContextData["environment"] = "staging"

	require.NoError(t, storage.Append(ctx, entry))

	got, err := storage.GetEntry(ctx, entry.EntryID)
	require.NoError(t, err)
	assert.Equal(t, core.AuditActionRollbackInitiated, got.ActionType)
	assert.Equal(t, "dev-1", got.UserID)
	assert.True(t, got.RequiresApproval)
	assert.False(t, got.Approved)
	assert.Equal(t, "req-123", got.ContextData["request_id"])
}

func TestGetEntry_NotFound(t *testing.T) {
	storage := newAuditStorage(t)

	_, err := storage.GetEntry(context.Background(), "no-such-entry")
	assert.ErrorIs(t, err, ErrAuditEntryNotFound)
}

func TestGetEntriesRequiringApproval_OldestFirst(t *testing.T) {
	storage := newAuditStorage(t)
	ctx := context.Background()

	first := core.NewAuditLogEntry(core.AuditActionRollbackInitiated, "first")
	first.RequiresApproval = true
	first.Timestamp = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, storage.Append(ctx, first))

	second := core.NewAuditLogEntry(core.AuditActionRollbackInitiated, "second")
	second.RequiresApproval = true
	require.NoError(t, storage.Append(ctx, second))

	noApproval := core.NewAuditLogEntry(core.AuditActionSnapshotCreated, "informational")
	require.NoError(t, storage.Append(ctx, noApproval))

	pending, err := storage.GetEntriesRequiringApproval(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.EntryID, pending[0].EntryID, "oldest pending approval first")
}

func TestApprove_OnlyOnce(t *testing.T) {
	storage := newAuditStorage(t)
	ctx := context.Background()

	entry := core.NewAuditLogEntry(core.AuditActionRollbackInitiated, "needs approval")
	entry.RequiresApproval = true
	require.NoError(t, storage.Append(ctx, entry))

	require.NoError(t, storage.Approve(ctx, entry.EntryID, "admin-1"))

	got, err := storage.GetEntry(ctx, entry.EntryID)
	require.NoError(t, err)
	assert.True(t, got.Approved)
	assert.Equal(t, "admin-1", got.ApprovedBy)

	// The approval flag flips exactly once
	err = storage.Approve(ctx, entry.EntryID, "admin-2")
	assert.ErrorIs(t, err, ErrAuditAlreadyApproved)

	got, err = storage.GetEntry(ctx, entry.EntryID)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", got.ApprovedBy, "first approver must be preserved")
}

func TestApprove_NonApprovableEntry(t *testing.T) {
	storage := newAuditStorage(t)
	ctx := context.Background()

	entry := core.NewAuditLogEntry(core.AuditActionSnapshotCreated, "informational")
	require.NoError(t, storage.Append(ctx, entry))

	err := storage.Approve(ctx, entry.EntryID, "admin-1")
	require.Error(t, err)
}

func TestApprove_NotFound(t *testing.T) {
	storage := newAuditStorage(t)

	err := storage.Approve(context.Background(), "no-such-entry", "admin-1")
	assert.ErrorIs(t, err, ErrAuditEntryNotFound)
}

func TestStatistics(t *testing.T) {
	storage := newAuditStorage(t)
	ctx := context.Background()

	approved := core.NewAuditLogEntry(core.AuditActionRollbackInitiated, "approved rollback")
	approved.RequiresApproval = true
	approved.AIReasoning = "Rollback Analysis\n..."
	require.NoError(t, storage.Append(ctx, approved))
	require.NoError(t, storage.Approve(ctx, approved.EntryID, "admin-1"))

	pending := core.NewAuditLogEntry(core.AuditActionRollbackInitiated, "pending rollback")
	pending.RequiresApproval = true
	require.NoError(t, storage.Append(ctx, pending))

	info := core.NewAuditLogEntry(core.AuditActionSnapshotVerified, "snapshot verified")
	require.NoError(t, storage.Append(ctx, info))

	stats, err := storage.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalLogs)
	assert.Equal(t, int64(1), stats.AIActions)
	assert.Equal(t, int64(1), stats.PendingApprovals)
	assert.Equal(t, int64(1), stats.ApprovedActions)
}

func TestGetEntriesByActionType(t *testing.T) {
	storage := newAuditStorage(t)
	ctx := context.Background()

	for _, action := range []string{
		core.AuditActionRollbackInitiated,
		core.AuditActionRollbackCompleted,
		core.AuditActionRollbackInitiated,
	} {
		require.NoError(t, storage.Append(ctx, core.NewAuditLogEntry(action, "entry")))
	}

	initiated, err := storage.GetEntriesByActionType(ctx, core.AuditActionRollbackInitiated, 10)
	require.NoError(t, err)
	assert.Len(t, initiated, 2)
}
