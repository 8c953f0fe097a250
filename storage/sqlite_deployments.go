package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"vigil/core"

	"go.uber.org/zap"
)

// SQLiteDeploymentStorage handles deployment record persistence in SQLite
type SQLiteDeploymentStorage struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteDeploymentStorage creates a new SQLite deployment storage handler
func NewSQLiteDeploymentStorage(db *SQLite, logger *zap.SugaredLogger) (*SQLiteDeploymentStorage, error) {
	s := &SQLiteDeploymentStorage{db: db, logger: logger}

	if err := s.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure deployment tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteDeploymentStorage) ensureTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		environment TEXT NOT NULL,
		version TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		snapshot_id TEXT NOT NULL,
		deployed_by TEXT NOT NULL,
		deployed_at DATETIME NOT NULL,
		rollback_available INTEGER NOT NULL DEFAULT 0,
		failure_reason TEXT,
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(id)
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_environment ON deployments(environment);
	CREATE INDEX IF NOT EXISTS idx_deployments_snapshot_id ON deployments(snapshot_id);
	CREATE INDEX IF NOT EXISTS idx_deployments_deployed_at ON deployments(deployed_at DESC);
	`

	if _, err := s.db.WriteDB.Exec(query); err != nil {
		return fmt.Errorf("failed to create deployment tables: %w", err)
	}

	s.logger.Debug("Deployment tables ensured in SQLite")
	return nil
}

// CreateDeployment persists a new deployment record
func (s *SQLiteDeploymentStorage) CreateDeployment(ctx context.Context, deployment *core.Deployment) error {
	if deployment.DeploymentID == "" {
		return errors.New("deployment ID cannot be empty")
	}
	if deployment.SnapshotID == "" {
		return errors.New("deployment snapshot ID cannot be empty")
	}
	if !deployment.Status.IsValid() {
		return fmt.Errorf("invalid deployment status: %s", deployment.Status)
	}

	query := `
		INSERT INTO deployments (
			id, environment, version, status, snapshot_id, deployed_by,
			deployed_at, rollback_available, failure_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.WriteDB.ExecContext(ctx, query,
		deployment.DeploymentID,
		deployment.Environment,
		deployment.Version,
		string(deployment.Status),
		deployment.SnapshotID,
		deployment.DeployedBy,
		formatTime(deployment.DeployedAt),
		deployment.RollbackAvailable,
		nullIfEmpty(deployment.FailureReason),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to insert deployment: %w", err)
	}

	return nil
}

// GetDeployment retrieves a deployment by ID
func (s *SQLiteDeploymentStorage) GetDeployment(ctx context.Context, deploymentID string) (*core.Deployment, error) {
	if deploymentID == "" {
		return nil, errors.New("deployment ID cannot be empty")
	}

	query := `
		SELECT id, environment, version, status, snapshot_id, deployed_by,
			   deployed_at, rollback_available, failure_reason
		FROM deployments WHERE id = ?
	`
	return scanDeploymentRow(s.db.ReadDB.QueryRowContext(ctx, query, deploymentID))
}

// GetDeploymentsByEnvironment retrieves deployments for an environment,
// most recent first
func (s *SQLiteDeploymentStorage) GetDeploymentsByEnvironment(ctx context.Context, environment string, limit int) ([]core.Deployment, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, environment, version, status, snapshot_id, deployed_by,
			   deployed_at, rollback_available, failure_reason
		FROM deployments WHERE environment = ?
		ORDER BY deployed_at DESC LIMIT ?
	`

	rows, err := s.db.ReadDB.QueryContext(ctx, query, environment, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}
	defer rows.Close()

	deployments := make([]core.Deployment, 0)
	for rows.Next() {
		deployment, err := scanDeploymentRow(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *deployment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployments: %w", err)
	}

	return deployments, nil
}

// MarkDeploymentFailed marks a deployment as failed with a reason
func (s *SQLiteDeploymentStorage) MarkDeploymentFailed(ctx context.Context, deploymentID, reason string) error {
	if deploymentID == "" {
		return errors.New("deployment ID cannot be empty")
	}

	result, err := s.db.WriteDB.ExecContext(ctx,
		`UPDATE deployments SET status = ?, failure_reason = ? WHERE id = ?`,
		string(core.DeploymentStatusFailed), nullIfEmpty(reason), deploymentID)
	if err != nil {
		return fmt.Errorf("failed to mark deployment failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrDeploymentNotFound
	}

	return nil
}

func scanDeploymentRow(scanner rowScanner) (*core.Deployment, error) {
	var deployment core.Deployment
	var status, deployedAt string
	var failureReason sql.NullString
	var rollbackAvailable int

	err := scanner.Scan(
		&deployment.DeploymentID, &deployment.Environment, &deployment.Version,
		&status, &deployment.SnapshotID, &deployment.DeployedBy,
		&deployedAt, &rollbackAvailable, &failureReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeploymentNotFound
		}
		return nil, fmt.Errorf("failed to scan deployment: %w", err)
	}

	deployment.Status = core.DeploymentStatus(status)
	deployment.RollbackAvailable = rollbackAvailable != 0
	deployment.FailureReason = failureReason.String

	if deployment.DeployedAt, err = parseTime(deployedAt); err != nil {
		return nil, err
	}

	return &deployment, nil
}
