package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vigil/core"
	"vigil/metrics"

	"go.uber.org/zap"
)

// SQLiteAuditStorage handles the append-only audit trail in SQLite.
// Entries are never updated or deleted after creation, with one exception:
// the approved flag may transition false→true exactly once.
type SQLiteAuditStorage struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteAuditStorage creates a new SQLite audit storage handler
func NewSQLiteAuditStorage(db *SQLite, logger *zap.SugaredLogger) (*SQLiteAuditStorage, error) {
	s := &SQLiteAuditStorage{db: db, logger: logger}

	if err := s.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteAuditStorage) ensureTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action_type TEXT NOT NULL,
		description TEXT NOT NULL,
		ai_reasoning TEXT,
		context_data TEXT,         -- JSON object
		user_id TEXT,
		requires_approval INTEGER NOT NULL DEFAULT 0,
		approved INTEGER NOT NULL DEFAULT 0,
		approved_by TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_action_type ON audit_log(action_type);
	CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_log_requires_approval ON audit_log(requires_approval, approved);
	`

	if _, err := s.db.WriteDB.Exec(query); err != nil {
		return fmt.Errorf("failed to create audit tables: %w", err)
	}

	s.logger.Debug("Audit tables ensured in SQLite")
	return nil
}

// Append writes a new audit log entry. The write goes through the write
// pool synchronously; callers may rely on the entry being durable when
// Append returns.
func (s *SQLiteAuditStorage) Append(ctx context.Context, entry *core.AuditLogEntry) error {
	if entry.EntryID == "" {
		return errors.New("audit entry ID cannot be empty")
	}
	if entry.ActionType == "" {
		return errors.New("audit action type cannot be empty")
	}

	contextJSON, err := json.Marshal(entry.ContextData)
	if err != nil {
		return fmt.Errorf("failed to marshal context data: %w", err)
	}

	query := `
		INSERT INTO audit_log (
			id, action_type, description, ai_reasoning, context_data,
			user_id, requires_approval, approved, approved_by, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.WriteDB.ExecContext(ctx, query,
		entry.EntryID,
		entry.ActionType,
		entry.Description,
		nullIfEmpty(entry.AIReasoning),
		string(contextJSON),
		nullIfEmpty(entry.UserID),
		entry.RequiresApproval,
		entry.Approved,
		nullIfEmpty(entry.ApprovedBy),
		formatTime(entry.Timestamp),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	metrics.AuditEntriesAppended.WithLabelValues(entry.ActionType).Inc()
	return nil
}

const auditColumns = `id, action_type, description, ai_reasoning, context_data,
	user_id, requires_approval, approved, approved_by, timestamp`

// GetEntry retrieves an audit entry by ID
func (s *SQLiteAuditStorage) GetEntry(ctx context.Context, entryID string) (*core.AuditLogEntry, error) {
	if entryID == "" {
		return nil, errors.New("audit entry ID cannot be empty")
	}

	query := fmt.Sprintf(`SELECT %s FROM audit_log WHERE id = ?`, auditColumns)
	return scanAuditRow(s.db.ReadDB.QueryRowContext(ctx, query, entryID))
}

// GetEntriesRequiringApproval retrieves unapproved entries flagged as
// requiring approval, oldest first so approvers see the queue in order
func (s *SQLiteAuditStorage) GetEntriesRequiringApproval(ctx context.Context, limit int) ([]core.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s FROM audit_log
		WHERE requires_approval = 1 AND approved = 0
		ORDER BY timestamp ASC LIMIT ?
	`, auditColumns)

	return s.listEntries(ctx, query, limit)
}

// GetEntriesByActionType retrieves entries of one action type, most recent first
func (s *SQLiteAuditStorage) GetEntriesByActionType(ctx context.Context, actionType string, limit int) ([]core.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s FROM audit_log
		WHERE action_type = ?
		ORDER BY timestamp DESC LIMIT ?
	`, auditColumns)

	return s.listEntries(ctx, query, actionType, limit)
}

func (s *SQLiteAuditStorage) listEntries(ctx context.Context, query string, args ...any) ([]core.AuditLogEntry, error) {
	rows, err := s.db.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]core.AuditLogEntry, 0)
	for rows.Next() {
		entry, err := scanAuditRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// Approve records the single false→true approval transition on an entry.
// The WHERE clause asserts the entry is still unapproved so a second
// approval attempt fails instead of silently overwriting the approver.
func (s *SQLiteAuditStorage) Approve(ctx context.Context, entryID, approverID string) error {
	if entryID == "" {
		return errors.New("audit entry ID cannot be empty")
	}
	if approverID == "" {
		return errors.New("approver ID cannot be empty")
	}

	query := `
		UPDATE audit_log SET approved = 1, approved_by = ?
		WHERE id = ? AND requires_approval = 1 AND approved = 0
	`

	result, err := s.db.WriteDB.ExecContext(ctx, query, approverID, entryID)
	if err != nil {
		return fmt.Errorf("failed to approve audit entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check approval result: %w", err)
	}
	if affected == 0 {
		entry, getErr := s.GetEntry(ctx, entryID)
		if getErr != nil {
			return getErr
		}
		if entry.Approved {
			return ErrAuditAlreadyApproved
		}
		return fmt.Errorf("audit entry %s does not require approval", entryID)
	}

	return nil
}

// Statistics aggregates audit log counts
func (s *SQLiteAuditStorage) Statistics(ctx context.Context) (*core.AuditStatistics, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN ai_reasoning IS NOT NULL AND ai_reasoning != '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN requires_approval = 1 AND approved = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN approved = 1 THEN 1 ELSE 0 END), 0)
		FROM audit_log
	`

	var stats core.AuditStatistics
	err := s.db.ReadDB.QueryRowContext(ctx, query).Scan(
		&stats.TotalLogs, &stats.AIActions, &stats.PendingApprovals, &stats.ApprovedActions)
	if err != nil {
		return nil, fmt.Errorf("failed to compute audit statistics: %w", err)
	}

	return &stats, nil
}

func scanAuditRow(scanner rowScanner) (*core.AuditLogEntry, error) {
	var entry core.AuditLogEntry
	var timestamp string
	var aiReasoning, contextJSON, userID, approvedBy sql.NullString
	var requiresApproval, approved int

	err := scanner.Scan(
		&entry.EntryID, &entry.ActionType, &entry.Description, &aiReasoning,
		&contextJSON, &userID, &requiresApproval, &approved, &approvedBy, &timestamp,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuditEntryNotFound
		}
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}

	entry.AIReasoning = aiReasoning.String
	entry.UserID = userID.String
	entry.ApprovedBy = approvedBy.String
	entry.RequiresApproval = requiresApproval != 0
	entry.Approved = approved != 0

	entry.ContextData = make(map[string]any)
	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &entry.ContextData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context data: %w", err)
		}
	}

	if entry.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}

	return &entry, nil
}
