// Package notify delivers operator-facing notifications for alerts and
// approval-gated rollback requests.
package notify

import (
	"context"

	"vigil/core"

	"go.uber.org/zap"
)

// Notifier receives alert and rollback lifecycle events. Delivery is best
// effort; a notification failure never blocks detection or execution.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert *core.SecurityAlert) error
	NotifyApprovalRequired(ctx context.Context, request *core.RollbackRequest) error
	NotifyRollbackResolved(ctx context.Context, request *core.RollbackRequest, success bool) error
}

// NoOpNotifier is a no-op implementation of Notifier
type NoOpNotifier struct{}

func (n *NoOpNotifier) NotifyAlert(ctx context.Context, alert *core.SecurityAlert) error {
	return nil
}
func (n *NoOpNotifier) NotifyApprovalRequired(ctx context.Context, request *core.RollbackRequest) error {
	return nil
}
func (n *NoOpNotifier) NotifyRollbackResolved(ctx context.Context, request *core.RollbackRequest, success bool) error {
	return nil
}

// LogNotifier writes notifications to the structured log. It is the default
// sink until an external channel (chat, pager) is configured.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

// NewLogNotifier creates a notifier backed by the structured log
func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	if logger == nil {
		panic("logger is required")
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyAlert(ctx context.Context, alert *core.SecurityAlert) error {
	n.logger.Warnw("Security alert raised",
		"alert_id", alert.AlertID,
		"type", alert.Type,
		"severity", alert.Severity,
		"title", alert.Title,
		"rollback_suggested", alert.RollbackSuggested,
	)
	return nil
}

func (n *LogNotifier) NotifyApprovalRequired(ctx context.Context, request *core.RollbackRequest) error {
	n.logger.Warnw("Rollback awaiting approval",
		"request_id", request.RequestID,
		"environment", request.Environment,
		"snapshot_id", request.SnapshotID,
		"requested_by", request.RequestedBy,
	)
	return nil
}

func (n *LogNotifier) NotifyRollbackResolved(ctx context.Context, request *core.RollbackRequest, success bool) error {
	n.logger.Infow("Rollback resolved",
		"request_id", request.RequestID,
		"environment", request.Environment,
		"status", request.Status,
		"success", success,
	)
	return nil
}
