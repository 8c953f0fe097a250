package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vigil/core"

	"go.uber.org/zap"
)

// SQLiteAlertStorage handles security alert persistence in SQLite
type SQLiteAlertStorage struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteAlertStorage creates a new SQLite alert storage handler
func NewSQLiteAlertStorage(db *SQLite, logger *zap.SugaredLogger) (*SQLiteAlertStorage, error) {
	s := &SQLiteAlertStorage{db: db, logger: logger}

	if err := s.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure alert tables: %w", err)
	}
	return s, nil
}

// ensureTables creates the alert table if it doesn't exist
func (s *SQLiteAlertStorage) ensureTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS security_alerts (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		explanation TEXT,
		status TEXT NOT NULL DEFAULT 'new',
		evidence TEXT,             -- JSON object of string evidence
		rollback_suggested INTEGER NOT NULL DEFAULT 0,
		detected_at DATETIME NOT NULL,
		resolved_at DATETIME,
		assigned_to TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_security_alerts_type ON security_alerts(type);
	CREATE INDEX IF NOT EXISTS idx_security_alerts_severity ON security_alerts(severity);
	CREATE INDEX IF NOT EXISTS idx_security_alerts_status ON security_alerts(status);
	CREATE INDEX IF NOT EXISTS idx_security_alerts_detected_at ON security_alerts(detected_at DESC);
	`

	if _, err := s.db.WriteDB.Exec(query); err != nil {
		return fmt.Errorf("failed to create alert tables: %w", err)
	}

	s.logger.Debug("Alert tables ensured in SQLite")
	return nil
}

// CreateAlert persists a new security alert
func (s *SQLiteAlertStorage) CreateAlert(ctx context.Context, alert *core.SecurityAlert) error {
	if alert.AlertID == "" {
		return errors.New("alert ID cannot be empty")
	}
	if !alert.Type.IsValid() {
		return fmt.Errorf("invalid alert type: %s", alert.Type)
	}
	if !alert.Severity.IsValid() {
		return fmt.Errorf("invalid alert severity: %s", alert.Severity)
	}

	evidenceJSON, err := json.Marshal(alert.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}

	query := `
		INSERT INTO security_alerts (
			id, type, severity, title, description, explanation, status,
			evidence, rollback_suggested, detected_at, resolved_at, assigned_to
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var resolvedAt any
	if alert.ResolvedAt != nil {
		resolvedAt = formatTime(*alert.ResolvedAt)
	}

	_, err = s.db.WriteDB.ExecContext(ctx, query,
		alert.AlertID,
		string(alert.Type),
		string(alert.Severity),
		alert.Title,
		nullIfEmpty(alert.Description),
		nullIfEmpty(alert.Explanation),
		string(alert.Status),
		string(evidenceJSON),
		alert.RollbackSuggested,
		formatTime(alert.DetectedAt),
		resolvedAt,
		nullIfEmpty(alert.AssignedTo),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

const alertColumns = `id, type, severity, title, description, explanation, status,
	evidence, rollback_suggested, detected_at, resolved_at, assigned_to`

// GetAlert retrieves a security alert by ID
func (s *SQLiteAlertStorage) GetAlert(ctx context.Context, alertID string) (*core.SecurityAlert, error) {
	if alertID == "" {
		return nil, errors.New("alert ID cannot be empty")
	}

	query := fmt.Sprintf(`SELECT %s FROM security_alerts WHERE id = ?`, alertColumns)
	return s.scanAlert(s.db.ReadDB.QueryRowContext(ctx, query, alertID))
}

// GetAlertsByType retrieves alerts of a given type, most recent first
func (s *SQLiteAlertStorage) GetAlertsByType(ctx context.Context, alertType core.AlertType, limit int) ([]core.SecurityAlert, error) {
	return s.listAlerts(ctx, "type = ?", string(alertType), limit)
}

// GetAlertsBySeverity retrieves alerts of a given severity, most recent first
func (s *SQLiteAlertStorage) GetAlertsBySeverity(ctx context.Context, severity core.AlertSeverity, limit int) ([]core.SecurityAlert, error) {
	return s.listAlerts(ctx, "severity = ?", string(severity), limit)
}

// GetAlertsByStatus retrieves alerts in a given status, most recent first
func (s *SQLiteAlertStorage) GetAlertsByStatus(ctx context.Context, status core.AlertStatus, limit int) ([]core.SecurityAlert, error) {
	return s.listAlerts(ctx, "status = ?", string(status), limit)
}

// GetRecentAlerts retrieves the most recently detected alerts
func (s *SQLiteAlertStorage) GetRecentAlerts(ctx context.Context, limit int) ([]core.SecurityAlert, error) {
	return s.listAlerts(ctx, "", nil, limit)
}

func (s *SQLiteAlertStorage) listAlerts(ctx context.Context, condition string, arg any, limit int) ([]core.SecurityAlert, error) {
	if limit <= 0 {
		limit = 50
	}

	where := ""
	args := []any{}
	if condition != "" {
		where = "WHERE " + condition
		args = append(args, arg)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM security_alerts %s ORDER BY detected_at DESC LIMIT ?`, alertColumns, where)

	rows, err := s.db.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]core.SecurityAlert, 0)
	for rows.Next() {
		alert, err := s.scanAlertFromRows(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}

	return alerts, nil
}

// UpdateAlertStatus transitions an alert's triage status, enforcing the
// alert state machine. Terminal alerts are never modified.
func (s *SQLiteAlertStorage) UpdateAlertStatus(ctx context.Context, alertID string, status core.AlertStatus, userID string) error {
	alert, err := s.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}

	if alert.IsFinalState() {
		return fmt.Errorf("%w: %s", ErrAlertTerminal, alert.Status)
	}

	if err := alert.TransitionTo(status, userID); err != nil {
		return err
	}

	var resolvedAt any
	if status == core.AlertStatusResolved || status == core.AlertStatusFalsePositive {
		now := time.Now().UTC()
		alert.ResolvedAt = &now
		resolvedAt = formatTime(now)
	}

	query := `UPDATE security_alerts SET status = ?, assigned_to = ?, resolved_at = ? WHERE id = ?`
	result, err := s.db.WriteDB.ExecContext(ctx, query,
		string(alert.Status), nullIfEmpty(alert.AssignedTo), resolvedAt, alertID)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrAlertNotFound
	}

	return nil
}

// CountAlertsBySeverity returns alert counts keyed by severity
func (s *SQLiteAlertStorage) CountAlertsBySeverity(ctx context.Context) (map[core.AlertSeverity]int64, error) {
	rows, err := s.db.ReadDB.QueryContext(ctx, `SELECT severity, COUNT(*) FROM security_alerts GROUP BY severity`)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.AlertSeverity]int64)
	for rows.Next() {
		var severity string
		var count int64
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan alert count: %w", err)
		}
		counts[core.AlertSeverity(severity)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert counts: %w", err)
	}

	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlertRow(scanner rowScanner) (*core.SecurityAlert, error) {
	var alert core.SecurityAlert
	var alertType, severity, status, detectedAt string
	var description, explanation, evidenceJSON, assignedTo, resolvedAt sql.NullString
	var rollbackSuggested int

	err := scanner.Scan(
		&alert.AlertID, &alertType, &severity, &alert.Title, &description,
		&explanation, &status, &evidenceJSON, &rollbackSuggested,
		&detectedAt, &resolvedAt, &assignedTo,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	alert.Type = core.AlertType(alertType)
	alert.Severity = core.AlertSeverity(severity)
	alert.Status = core.AlertStatus(status)
	alert.Description = description.String
	alert.Explanation = explanation.String
	alert.AssignedTo = assignedTo.String
	alert.RollbackSuggested = rollbackSuggested != 0

	alert.Evidence = make(map[string]string)
	if evidenceJSON.Valid && evidenceJSON.String != "" {
		if err := json.Unmarshal([]byte(evidenceJSON.String), &alert.Evidence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
		}
	}

	if alert.DetectedAt, err = parseTime(detectedAt); err != nil {
		return nil, err
	}
	if alert.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return nil, err
	}

	return &alert, nil
}

func (s *SQLiteAlertStorage) scanAlert(row *sql.Row) (*core.SecurityAlert, error) {
	return scanAlertRow(row)
}

func (s *SQLiteAlertStorage) scanAlertFromRows(rows *sql.Rows) (*core.SecurityAlert, error) {
	return scanAlertRow(rows)
}
