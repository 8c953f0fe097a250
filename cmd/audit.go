package cmd

import (
	"context"
	"fmt"

	"vigil/core"

	"github.com/spf13/cobra"
)

// NewAuditCmd creates the 'audit' command group
func NewAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the append-only audit log",
	}

	auditCmd.AddCommand(newAuditPendingCmd())
	auditCmd.AddCommand(newAuditListCmd())
	auditCmd.AddCommand(newAuditStatsCmd())

	return auditCmd
}

// newAuditPendingCmd creates the 'pending' subcommand
func newAuditPendingCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List audit entries awaiting approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := app.Audit.GetEntriesRequiringApproval(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list pending approvals: %w", err)
			}

			if outputJSON {
				return outputAsJSON(entries)
			}

			if len(entries) == 0 {
				successColor.Println("No actions awaiting approval")
				return nil
			}

			headerColor.Println("Actions awaiting approval")
			fmt.Println()
			renderAuditEntries(entries)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")

	return cmd
}

// newAuditListCmd creates the 'list' subcommand
func newAuditListCmd() *cobra.Command {
	var actionType string
	var limit int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List audit entries by action type",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := app.Audit.GetEntriesByActionType(ctx, actionType, limit)
			if err != nil {
				return fmt.Errorf("failed to list audit entries: %w", err)
			}

			if outputJSON {
				return outputAsJSON(entries)
			}

			if len(entries) == 0 {
				fmt.Printf("No audit entries for action type %q\n", actionType)
				return nil
			}

			renderAuditEntries(entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&actionType, "action-type", core.AuditActionRollbackInitiated, "Action type to list")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")

	return cmd
}

// newAuditStatsCmd creates the 'stats' subcommand
func newAuditStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show audit log statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := app.Audit.Statistics(ctx)
			if err != nil {
				return fmt.Errorf("failed to load audit statistics: %w", err)
			}

			if outputJSON {
				return outputAsJSON(stats)
			}

			headerColor.Println("Audit Log Statistics")
			fmt.Printf("  Total entries:     %d\n", stats.TotalLogs)
			fmt.Printf("  Automated actions: %d\n", stats.AIActions)
			fmt.Printf("  Pending approvals: %d\n", stats.PendingApprovals)
			fmt.Printf("  Approved actions:  %d\n", stats.ApprovedActions)
			return nil
		},
	}
}

func renderAuditEntries(entries []core.AuditLogEntry) {
	for _, entry := range entries {
		approval := ""
		if entry.RequiresApproval {
			if entry.Approved {
				approval = successColor.Sprintf("  approved by %s", entry.ApprovedBy)
			} else {
				approval = warningColor.Sprint("  awaiting approval")
			}
		}
		fmt.Printf("%s  %s  %s%s\n",
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.ActionType,
			entry.Description,
			approval)
	}
}
