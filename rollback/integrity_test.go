package rollback

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"vigil/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	base := t.TempDir()
	return NewFileStore(filepath.Join(base, "snapshots"), filepath.Join(base, "environments"))
}

func stageSnapshot(t *testing.T, fs *FileStore, snapshot *core.Snapshot, contents map[string]string) {
	t.Helper()
	for rel, content := range contents {
		require.NoError(t, fs.WriteSnapshotFile(snapshot.SnapshotID, rel, []byte(content)))
	}
}

func TestFileStore_ApplyAndVerify(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	snapshot := core.NewSnapshot("staging", "rev-1", []string{"app/config.yaml", "app/binary"})
	stageSnapshot(t, fs, snapshot, map[string]string{
		"app/config.yaml": "debug: false\n",
		"app/binary":      "binary-content",
	})

	require.NoError(t, fs.Apply(ctx, "staging", snapshot))

	applied, err := os.ReadFile(filepath.Join(fs.EnvironmentPath("staging"), "app/config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "debug: false\n", string(applied))

	check, err := fs.Verify(ctx, "staging", snapshot)
	require.NoError(t, err)
	assert.Equal(t, 2, check.ChecksCount)
	assert.False(t, check.CompletedAt.IsZero())
}

func TestFileStore_VerifyDetectsTampering(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	snapshot := core.NewSnapshot("staging", "rev-1", []string{"app/config.yaml"})
	stageSnapshot(t, fs, snapshot, map[string]string{"app/config.yaml": "debug: false\n"})
	require.NoError(t, fs.Apply(ctx, "staging", snapshot))

	// Tamper with the applied file
	tampered := filepath.Join(fs.EnvironmentPath("staging"), "app/config.yaml")
	require.NoError(t, os.WriteFile(tampered, []byte("debug: true\n"), 0644))

	_, err := fs.Verify(ctx, "staging", snapshot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integrity check failed")
	assert.Contains(t, err.Error(), "app/config.yaml")
}

func TestFileStore_VerifyDetectsMissingFile(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	snapshot := core.NewSnapshot("staging", "rev-1", []string{"app/config.yaml"})
	stageSnapshot(t, fs, snapshot, map[string]string{"app/config.yaml": "content"})

	// Never applied: the environment side is missing
	_, err := fs.Verify(ctx, "staging", snapshot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing or unreadable")
}

func TestFileStore_ApplyRejectsEmptyManifest(t *testing.T) {
	fs := newTestFileStore(t)

	snapshot := core.NewSnapshot("staging", "rev-1", nil)
	err := fs.Apply(context.Background(), "staging", snapshot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty file manifest")
}

func TestFileStore_ApplyRejectsHostilePaths(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	for _, hostile := range []string{"../escape", "/etc/passwd", ""} {
		snapshot := core.NewSnapshot("staging", "rev-1", []string{hostile})
		err := fs.Apply(ctx, "staging", snapshot)
		require.Error(t, err, "manifest path %q must be rejected", hostile)
	}
}

func TestFileStore_CheckSnapshot(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	snapshot := core.NewSnapshot("staging", "rev-1", []string{"app/config.yaml", "app/binary"})
	stageSnapshot(t, fs, snapshot, map[string]string{"app/config.yaml": "content"})

	// One manifest entry was never staged
	err := fs.CheckSnapshot(ctx, snapshot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app/binary")

	stageSnapshot(t, fs, snapshot, map[string]string{"app/binary": "binary"})
	assert.NoError(t, fs.CheckSnapshot(ctx, snapshot))
}
