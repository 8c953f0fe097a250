package cmd

import (
	"context"
	"fmt"

	"vigil/core"
	"vigil/detect"

	"github.com/spf13/cobra"
)

// newStatusCmd creates the 'status' command
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current security posture",
		Long:  "Display alert counts by severity, open alerts awaiting triage, and audit log statistics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			sp := newSpinner("Gathering security status...")
			status, err := app.Detector.GetSecurityStatus(ctx)
			stopSpinner(sp)
			if err != nil {
				return fmt.Errorf("failed to gather status: %w", err)
			}

			if outputJSON {
				return outputAsJSON(status)
			}

			renderStatus(status)
			return nil
		},
	}
}

func renderStatus(status *detect.SecurityStatus) {
	headerColor.Println("Security Status")
	fmt.Printf("Generated: %s\n\n", status.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	fmt.Printf("Total alerts: %d (open: %d)\n", status.TotalAlerts, status.OpenAlerts)
	for _, severity := range []core.AlertSeverity{core.SeverityCritical, core.SeverityHigh, core.SeverityMedium, core.SeverityLow} {
		count := status.AlertsBySeverity[severity]
		if count == 0 {
			continue
		}
		fmt.Printf("  %s: %d\n", renderSeverity(severity), count)
	}

	if status.AuditStatistics != nil {
		fmt.Println()
		headerColor.Println("Audit Log")
		fmt.Printf("  Entries: %d  Automated actions: %d  Pending approvals: %d  Approved: %d\n",
			status.AuditStatistics.TotalLogs,
			status.AuditStatistics.AIActions,
			status.AuditStatistics.PendingApprovals,
			status.AuditStatistics.ApprovedActions)
	}

	if len(status.RecentAlerts) > 0 {
		fmt.Println()
		headerColor.Println("Recent Alerts")
		for _, alert := range status.RecentAlerts {
			marker := " "
			if alert.RollbackSuggested {
				marker = warningColor.Sprint("*")
			}
			fmt.Printf("%s [%s] %s  %s\n", marker, renderSeverity(alert.Severity),
				alert.DetectedAt.Format("2006-01-02 15:04"), alert.Title)
		}
		fmt.Println()
		fmt.Println("* rollback suggested")
	}
}

func renderSeverity(severity core.AlertSeverity) string {
	switch severity {
	case core.SeverityCritical:
		return errorColor.Sprint("critical")
	case core.SeverityHigh:
		return warningColor.Sprint("high")
	case core.SeverityMedium:
		return infoColor.Sprint("medium")
	default:
		return string(severity)
	}
}
