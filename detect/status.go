package detect

import (
	"context"
	"fmt"
	"time"

	"vigil/core"
)

// SecurityStatus is an aggregate view of the alerting posture, surfaced to
// orchestration and CLI layers.
type SecurityStatus struct {
	GeneratedAt      time.Time                    `json:"generated_at"`
	AlertsBySeverity map[core.AlertSeverity]int64 `json:"alerts_by_severity"`
	TotalAlerts      int64                        `json:"total_alerts"`
	OpenAlerts       int64                        `json:"open_alerts"`
	RecentAlerts     []core.SecurityAlert         `json:"recent_alerts"`
	AuditStatistics  *core.AuditStatistics        `json:"audit_statistics,omitempty"`
}

// recentAlertLimit bounds the recent-alert sample in a status report
const recentAlertLimit = 10

// GetSecurityStatus returns alert counts by severity, the count of alerts
// still awaiting triage, and the most recent alerts.
func (d *Detector) GetSecurityStatus(ctx context.Context) (*SecurityStatus, error) {
	storeCtx, cancel := d.storeCtx(ctx)
	defer cancel()

	counts, err := d.alerts.CountAlertsBySeverity(storeCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	var total int64
	for _, count := range counts {
		total += count
	}

	newCtx, newCancel := d.storeCtx(ctx)
	defer newCancel()

	open, err := d.alerts.GetAlertsByStatus(newCtx, core.AlertStatusNew, recentAlertLimit*10)
	if err != nil {
		return nil, fmt.Errorf("failed to list open alerts: %w", err)
	}

	recentCtx, recentCancel := d.storeCtx(ctx)
	defer recentCancel()

	recent, err := d.alerts.GetRecentAlerts(recentCtx, recentAlertLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent alerts: %w", err)
	}

	auditCtx, auditCancel := d.storeCtx(ctx)
	defer auditCancel()

	stats, err := d.audit.Statistics(auditCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute audit statistics: %w", err)
	}

	return &SecurityStatus{
		GeneratedAt:      time.Now().UTC(),
		AlertsBySeverity: counts,
		TotalAlerts:      total,
		OpenAlerts:       int64(len(open)),
		RecentAlerts:     recent,
		AuditStatistics:  stats,
	}, nil
}
