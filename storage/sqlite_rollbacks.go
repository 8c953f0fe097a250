package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vigil/core"

	"go.uber.org/zap"
)

// SQLiteRollbackStorage handles rollback request persistence in SQLite.
// Status transitions use guarded UPDATEs asserting the expected prior
// status, so two concurrent writers can never both move a request out of
// the same state.
type SQLiteRollbackStorage struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteRollbackStorage creates a new SQLite rollback request storage handler
func NewSQLiteRollbackStorage(db *SQLite, logger *zap.SugaredLogger) (*SQLiteRollbackStorage, error) {
	s := &SQLiteRollbackStorage{db: db, logger: logger}

	if err := s.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure rollback tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteRollbackStorage) ensureTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS rollback_requests (
		id TEXT PRIMARY KEY,
		environment TEXT NOT NULL,
		snapshot_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		requested_by TEXT NOT NULL,
		explanation TEXT,
		status TEXT NOT NULL DEFAULT 'pending_approval',
		approved_by TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(id)
	);

	CREATE INDEX IF NOT EXISTS idx_rollback_requests_environment ON rollback_requests(environment);
	CREATE INDEX IF NOT EXISTS idx_rollback_requests_status ON rollback_requests(status);
	CREATE INDEX IF NOT EXISTS idx_rollback_requests_created_at ON rollback_requests(created_at DESC);
	-- Compound index for history queries (environment filter + terminal status set)
	CREATE INDEX IF NOT EXISTS idx_rollback_requests_env_status ON rollback_requests(environment, status);
	`

	if _, err := s.db.WriteDB.Exec(query); err != nil {
		return fmt.Errorf("failed to create rollback tables: %w", err)
	}

	s.logger.Debug("Rollback tables ensured in SQLite")
	return nil
}

// CreateRequest persists a new rollback request
func (s *SQLiteRollbackStorage) CreateRequest(ctx context.Context, request *core.RollbackRequest) error {
	if request.RequestID == "" {
		return errors.New("rollback request ID cannot be empty")
	}
	if !request.Status.IsValid() {
		return fmt.Errorf("invalid rollback status: %s", request.Status)
	}

	query := `
		INSERT INTO rollback_requests (
			id, environment, snapshot_id, reason, requested_by, explanation,
			status, approved_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.WriteDB.ExecContext(ctx, query,
		request.RequestID,
		request.Environment,
		request.SnapshotID,
		request.Reason,
		request.RequestedBy,
		nullIfEmpty(request.Explanation),
		string(request.Status),
		nullIfEmpty(request.ApprovedBy),
		formatTime(request.CreatedAt),
		formatTime(request.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to insert rollback request: %w", err)
	}

	return nil
}

// GetRequest retrieves a rollback request by ID
func (s *SQLiteRollbackStorage) GetRequest(ctx context.Context, requestID string) (*core.RollbackRequest, error) {
	if requestID == "" {
		return nil, errors.New("rollback request ID cannot be empty")
	}

	query := `
		SELECT id, environment, snapshot_id, reason, requested_by, explanation,
			   status, approved_by, created_at, updated_at
		FROM rollback_requests WHERE id = ?
	`
	return scanRollbackRow(s.db.ReadDB.QueryRowContext(ctx, query, requestID))
}

// TransitionRequest moves a request from expected to next status atomically.
// The WHERE clause asserts the prior status; a concurrent transition makes
// the update affect zero rows, surfaced as ErrStaleRollbackStatus.
func (s *SQLiteRollbackStorage) TransitionRequest(ctx context.Context, requestID string, expected, next core.RollbackStatus, approvedBy string) error {
	if requestID == "" {
		return errors.New("rollback request ID cannot be empty")
	}

	// Validate against the state machine before touching the database
	probe := &core.RollbackRequest{Status: expected}
	if !probe.CanTransitionTo(next) {
		return fmt.Errorf("invalid transition: %s → %s", expected, next)
	}

	query := `
		UPDATE rollback_requests
		SET status = ?, approved_by = COALESCE(NULLIF(?, ''), approved_by), updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.WriteDB.ExecContext(ctx, query,
		string(next), approvedBy, formatTime(time.Now()), requestID, string(expected))
	if err != nil {
		return fmt.Errorf("failed to transition rollback request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check transition result: %w", err)
	}
	if affected == 0 {
		// Distinguish "not found" from "lost the race"
		if _, getErr := s.GetRequest(ctx, requestID); getErr != nil {
			return getErr
		}
		return ErrStaleRollbackStatus
	}

	return nil
}

// GetTerminalRequestsByEnvironment retrieves completed, failed and rejected
// requests for an environment, most recent first
func (s *SQLiteRollbackStorage) GetTerminalRequestsByEnvironment(ctx context.Context, environment string, limit int) ([]core.RollbackRequest, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, environment, snapshot_id, reason, requested_by, explanation,
			   status, approved_by, created_at, updated_at
		FROM rollback_requests
		WHERE environment = ? AND status IN (?, ?, ?)
		ORDER BY updated_at DESC LIMIT ?
	`

	rows, err := s.db.ReadDB.QueryContext(ctx, query, environment,
		string(core.RollbackStatusCompleted),
		string(core.RollbackStatusFailed),
		string(core.RollbackStatusRejected),
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollback requests: %w", err)
	}
	defer rows.Close()

	requests := make([]core.RollbackRequest, 0)
	for rows.Next() {
		request, err := scanRollbackRow(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rollback requests: %w", err)
	}

	return requests, nil
}

func scanRollbackRow(scanner rowScanner) (*core.RollbackRequest, error) {
	var request core.RollbackRequest
	var status, createdAt, updatedAt string
	var explanation, approvedBy sql.NullString

	err := scanner.Scan(
		&request.RequestID, &request.Environment, &request.SnapshotID,
		&request.Reason, &request.RequestedBy, &explanation,
		&status, &approvedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRollbackRequestNotFound
		}
		return nil, fmt.Errorf("failed to scan rollback request: %w", err)
	}

	request.Status = core.RollbackStatus(status)
	request.Explanation = explanation.String
	request.ApprovedBy = approvedBy.String

	if request.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if request.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &request, nil
}
