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

func newSnapshotStorage(t *testing.T) *SQLiteSnapshotStorage {
	t.Helper()
	storage, err := NewSQLiteSnapshotStorage(setupTestDB(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	return storage
}

func TestCreateSnapshot_RoundTrip(t *testing.T) {
	storage := newSnapshotStorage(t)
	ctx := context.Background()

	snapshot := core.NewSnapshot("staging", "abc123", []string{"app/config.yaml", "app/binary"})
	require.NoError(t, storage.CreateSnapshot(ctx, snapshot))

	got, err := storage.GetSnapshot(ctx, snapshot.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, "staging", got.Environment)
	assert.Equal(t, "abc123", got.SourceRevision)
	assert.Equal(t, []string{"app/config.yaml", "app/binary"}, got.FileManifest)
	assert.False(t, got.Verified, "new snapshots must start unverified")
	assert.Empty(t, got.VerifiedBy)
}

func TestGetSnapshot_NotFound(t *testing.T) {
	storage := newSnapshotStorage(t)

	_, err := storage.GetSnapshot(context.Background(), "no-such-snapshot")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestMarkVerified(t *testing.T) {
	storage := newSnapshotStorage(t)
	ctx := context.Background()

	snapshot := core.NewSnapshot("staging", "abc123", []string{"app/config.yaml"})
	require.NoError(t, storage.CreateSnapshot(ctx, snapshot))

	require.NoError(t, storage.MarkVerified(ctx, snapshot.SnapshotID, "release-bot"))

	got, err := storage.GetSnapshot(ctx, snapshot.SnapshotID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, "release-bot", got.VerifiedBy)
}

func TestMarkVerified_NotFound(t *testing.T) {
	storage := newSnapshotStorage(t)

	err := storage.MarkVerified(context.Background(), "no-such-snapshot", "release-bot")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestGetSnapshotsByEnvironment_Ordering(t *testing.T) {
	storage := newSnapshotStorage(t)
	ctx := context.Background()

	older := core.NewSnapshot("production", "rev-1", []string{"a"})
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, storage.CreateSnapshot(ctx, older))

	newer := core.NewSnapshot("production", "rev-2", []string{"a"})
	require.NoError(t, storage.CreateSnapshot(ctx, newer))

	other := core.NewSnapshot("staging", "rev-3", []string{"a"})
	require.NoError(t, storage.CreateSnapshot(ctx, other))

	snapshots, err := storage.GetSnapshotsByEnvironment(ctx, "production")
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, newer.SnapshotID, snapshots[0].SnapshotID, "most recent snapshot first")
	assert.Equal(t, older.SnapshotID, snapshots[1].SnapshotID)
}
