package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vigil/core"

	"go.uber.org/zap"
)

// SQLiteSnapshotStorage handles environment snapshot persistence in SQLite
type SQLiteSnapshotStorage struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteSnapshotStorage creates a new SQLite snapshot storage handler
func NewSQLiteSnapshotStorage(db *SQLite, logger *zap.SugaredLogger) (*SQLiteSnapshotStorage, error) {
	s := &SQLiteSnapshotStorage{db: db, logger: logger}

	if err := s.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure snapshot tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteSnapshotStorage) ensureTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		environment TEXT NOT NULL,
		source_revision TEXT NOT NULL,
		file_manifest TEXT,        -- JSON array of file paths
		created_at DATETIME NOT NULL,
		verified INTEGER NOT NULL DEFAULT 0,
		verified_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_environment ON snapshots(environment);
	CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at DESC);
	-- Compound index for rollback option lookup (environment + verified filter)
	CREATE INDEX IF NOT EXISTS idx_snapshots_env_verified ON snapshots(environment, verified);
	`

	if _, err := s.db.WriteDB.Exec(query); err != nil {
		return fmt.Errorf("failed to create snapshot tables: %w", err)
	}

	s.logger.Debug("Snapshot tables ensured in SQLite")
	return nil
}

// CreateSnapshot persists a new snapshot
func (s *SQLiteSnapshotStorage) CreateSnapshot(ctx context.Context, snapshot *core.Snapshot) error {
	if snapshot.SnapshotID == "" {
		return errors.New("snapshot ID cannot be empty")
	}
	if snapshot.Environment == "" {
		return errors.New("snapshot environment cannot be empty")
	}

	manifestJSON, err := json.Marshal(snapshot.FileManifest)
	if err != nil {
		return fmt.Errorf("failed to marshal file manifest: %w", err)
	}

	query := `
		INSERT INTO snapshots (id, environment, source_revision, file_manifest, created_at, verified, verified_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.WriteDB.ExecContext(ctx, query,
		snapshot.SnapshotID,
		snapshot.Environment,
		snapshot.SourceRevision,
		string(manifestJSON),
		formatTime(snapshot.CreatedAt),
		snapshot.Verified,
		nullIfEmpty(snapshot.VerifiedBy),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// GetSnapshot retrieves a snapshot by ID
func (s *SQLiteSnapshotStorage) GetSnapshot(ctx context.Context, snapshotID string) (*core.Snapshot, error) {
	if snapshotID == "" {
		return nil, errors.New("snapshot ID cannot be empty")
	}

	query := `
		SELECT id, environment, source_revision, file_manifest, created_at, verified, verified_by
		FROM snapshots WHERE id = ?
	`
	return scanSnapshotRow(s.db.ReadDB.QueryRowContext(ctx, query, snapshotID))
}

// MarkVerified flags a snapshot as a valid rollback target
func (s *SQLiteSnapshotStorage) MarkVerified(ctx context.Context, snapshotID, verifiedBy string) error {
	if snapshotID == "" {
		return errors.New("snapshot ID cannot be empty")
	}
	if verifiedBy == "" {
		return errors.New("verifier identity cannot be empty")
	}

	result, err := s.db.WriteDB.ExecContext(ctx,
		`UPDATE snapshots SET verified = 1, verified_by = ? WHERE id = ?`, verifiedBy, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to mark snapshot verified: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrSnapshotNotFound
	}

	return nil
}

// GetSnapshotsByEnvironment retrieves all snapshots for an environment,
// most recent first
func (s *SQLiteSnapshotStorage) GetSnapshotsByEnvironment(ctx context.Context, environment string) ([]core.Snapshot, error) {
	query := `
		SELECT id, environment, source_revision, file_manifest, created_at, verified, verified_by
		FROM snapshots WHERE environment = ? ORDER BY created_at DESC
	`

	rows, err := s.db.ReadDB.QueryContext(ctx, query, environment)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]core.Snapshot, 0)
	for rows.Next() {
		snapshot, err := scanSnapshotRow(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

func scanSnapshotRow(scanner rowScanner) (*core.Snapshot, error) {
	var snapshot core.Snapshot
	var createdAt string
	var manifestJSON, verifiedBy sql.NullString
	var verified int

	err := scanner.Scan(
		&snapshot.SnapshotID, &snapshot.Environment, &snapshot.SourceRevision,
		&manifestJSON, &createdAt, &verified, &verifiedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	snapshot.Verified = verified != 0
	snapshot.VerifiedBy = verifiedBy.String

	snapshot.FileManifest = make([]string, 0)
	if manifestJSON.Valid && manifestJSON.String != "" {
		if err := json.Unmarshal([]byte(manifestJSON.String), &snapshot.FileManifest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal file manifest: %w", err)
		}
	}

	if snapshot.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &snapshot, nil
}
