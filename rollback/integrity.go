package rollback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vigil/core"
	"vigil/metrics"
)

// Applier restores a snapshot's file manifest into a target environment.
type Applier interface {
	Apply(ctx context.Context, environment string, snapshot *core.Snapshot) error
}

// IntegrityVerifier checks an applied environment against its snapshot.
// A verification failure is an expected execution outcome, not a
// programming error; it is what turns a rollback result into a failure.
type IntegrityVerifier interface {
	Verify(ctx context.Context, environment string, snapshot *core.Snapshot) (*core.IntegrityCheck, error)
}

// FileStore applies and verifies snapshots on the local filesystem.
// Snapshot content lives under snapshotsDir/<snapshot_id>/ and environments
// under environmentsDir/<environment>/. It implements both Applier and
// IntegrityVerifier: apply copies every manifest file into the environment
// tree, verify recomputes a SHA-256 digest on both sides of every manifest
// entry.
type FileStore struct {
	snapshotsDir    string
	environmentsDir string
}

// NewFileStore creates a filesystem-backed snapshot applier/verifier
func NewFileStore(snapshotsDir, environmentsDir string) *FileStore {
	return &FileStore{
		snapshotsDir:    snapshotsDir,
		environmentsDir: environmentsDir,
	}
}

// SnapshotPath returns the content directory for a snapshot
func (fs *FileStore) SnapshotPath(snapshotID string) string {
	return filepath.Join(fs.snapshotsDir, snapshotID)
}

// EnvironmentPath returns the content directory for an environment
func (fs *FileStore) EnvironmentPath(environment string) string {
	return filepath.Join(fs.environmentsDir, environment)
}

// Apply copies every manifest file from the snapshot tree into the
// environment tree. Paths containing ".." are rejected before any file is
// touched so a hostile manifest cannot escape the environment root.
func (fs *FileStore) Apply(ctx context.Context, environment string, snapshot *core.Snapshot) error {
	if len(snapshot.FileManifest) == 0 {
		return fmt.Errorf("snapshot %s has an empty file manifest, nothing to apply", snapshot.SnapshotID)
	}

	for _, rel := range snapshot.FileManifest {
		if err := validateManifestPath(rel); err != nil {
			return err
		}
	}

	srcRoot := fs.SnapshotPath(snapshot.SnapshotID)
	dstRoot := fs.EnvironmentPath(environment)

	for _, rel := range snapshot.FileManifest {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFile(filepath.Join(srcRoot, rel), filepath.Join(dstRoot, rel)); err != nil {
			return fmt.Errorf("failed to apply %s: %w", rel, err)
		}
	}

	return nil
}

// Verify recomputes a SHA-256 digest for every manifest entry on both the
// snapshot side and the environment side. Any missing file or digest
// mismatch fails the whole pass.
func (fs *FileStore) Verify(ctx context.Context, environment string, snapshot *core.Snapshot) (*core.IntegrityCheck, error) {
	if len(snapshot.FileManifest) == 0 {
		return nil, fmt.Errorf("snapshot %s has an empty file manifest, nothing to verify", snapshot.SnapshotID)
	}

	srcRoot := fs.SnapshotPath(snapshot.SnapshotID)
	dstRoot := fs.EnvironmentPath(environment)

	var mismatches []string
	checks := 0

	for _, rel := range snapshot.FileManifest {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		want, err := hashFile(filepath.Join(srcRoot, rel))
		if err != nil {
			return nil, fmt.Errorf("failed to hash snapshot file %s: %w", rel, err)
		}
		got, err := hashFile(filepath.Join(dstRoot, rel))
		if err != nil {
			mismatches = append(mismatches, fmt.Sprintf("%s (missing or unreadable)", rel))
			checks++
			continue
		}

		checks++
		metrics.IntegrityChecksRun.Inc()
		if want != got {
			mismatches = append(mismatches, rel)
		}
	}

	if len(mismatches) > 0 {
		return nil, fmt.Errorf("integrity check failed for %d of %d files: %s",
			len(mismatches), checks, strings.Join(mismatches, ", "))
	}

	return &core.IntegrityCheck{
		ChecksCount: checks,
		CompletedAt: time.Now().UTC(),
	}, nil
}

// CheckSnapshot verifies that every manifest entry of a snapshot exists and
// is readable in the snapshot tree. It runs before a snapshot is marked
// verified.
func (fs *FileStore) CheckSnapshot(ctx context.Context, snapshot *core.Snapshot) error {
	if len(snapshot.FileManifest) == 0 {
		return fmt.Errorf("snapshot %s has an empty file manifest", snapshot.SnapshotID)
	}

	root := fs.SnapshotPath(snapshot.SnapshotID)
	for _, rel := range snapshot.FileManifest {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := validateManifestPath(rel); err != nil {
			return err
		}
		if _, err := hashFile(filepath.Join(root, rel)); err != nil {
			return fmt.Errorf("manifest entry %s is missing or unreadable: %w", rel, err)
		}
	}
	return nil
}

// WriteSnapshotFile stores content for one manifest entry of a snapshot.
// Used when capturing pre-deployment snapshots.
func (fs *FileStore) WriteSnapshotFile(snapshotID, rel string, content []byte) error {
	if err := validateManifestPath(rel); err != nil {
		return err
	}

	path := filepath.Join(fs.SnapshotPath(snapshotID), rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}

func validateManifestPath(rel string) error {
	if rel == "" {
		return fmt.Errorf("manifest path cannot be empty")
	}
	if filepath.IsAbs(rel) {
		return fmt.Errorf("manifest path %q must be relative", rel)
	}
	if strings.Contains(rel, "..") {
		return fmt.Errorf("manifest path %q must not contain '..'", rel)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
