package cmd

import (
	"context"
	"fmt"

	"vigil/core"

	"github.com/spf13/cobra"
)

// NewRollbackCmd creates the 'rollback' command group
func NewRollbackCmd() *cobra.Command {
	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Manage approval-gated rollbacks",
		Long: `Inspect rollback options, request rollbacks, and record approval decisions.

A rollback request never executes on its own: it waits in pending_approval
until an approver runs 'rollback approve' or 'rollback reject'.`,
	}

	rollbackCmd.AddCommand(newRollbackOptionsCmd())
	rollbackCmd.AddCommand(newRollbackRequestCmd())
	rollbackCmd.AddCommand(newRollbackApproveCmd())
	rollbackCmd.AddCommand(newRollbackRejectCmd())
	rollbackCmd.AddCommand(newRollbackHistoryCmd())

	return rollbackCmd
}

// newRollbackOptionsCmd creates the 'options' subcommand
func newRollbackOptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options <environment>",
		Short: "List verified snapshots available as rollback targets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			sp := newSpinner("Loading rollback options...")
			options, err := app.Engine.GetRollbackOptions(ctx, args[0])
			stopSpinner(sp)
			if err != nil {
				return fmt.Errorf("failed to load rollback options: %w", err)
			}

			if outputJSON {
				return outputAsJSON(options)
			}

			if len(options) == 0 {
				warningColor.Printf("No verified rollback targets for %s\n", args[0])
				return nil
			}

			headerColor.Printf("Rollback options for %s\n\n", args[0])
			for _, option := range options {
				fmt.Printf("%s  version %s  (%s)\n", option.SnapshotID, option.Version,
					option.CreatedAt.Format("2006-01-02 15:04"))
				fmt.Printf("    %s\n\n", option.Reasoning)
			}
			return nil
		},
	}
}

// newRollbackRequestCmd creates the 'request' subcommand
func newRollbackRequestCmd() *cobra.Command {
	var reason string
	var requestedBy string

	cmd := &cobra.Command{
		Use:   "request <environment> <snapshot-id>",
		Short: "Request a rollback to a verified snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			sp := newSpinner("Creating rollback request...")
			request, err := app.Engine.InitiateRollback(ctx, args[0], args[1], reason, requestedBy)
			stopSpinner(sp)
			if err != nil {
				return fmt.Errorf("failed to create rollback request: %w", err)
			}

			if outputJSON {
				return outputAsJSON(request)
			}

			successColor.Printf("Rollback request %s created\n\n", request.RequestID)
			fmt.Println(request.Explanation)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason for the rollback (required)")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "User requesting the rollback (required)")
	_ = cmd.MarkFlagRequired("reason")
	_ = cmd.MarkFlagRequired("requested-by")

	return cmd
}

// newRollbackApproveCmd creates the 'approve' subcommand
func newRollbackApproveCmd() *cobra.Command {
	var approver string

	cmd := &cobra.Command{
		Use:   "approve <request-id>",
		Short: "Approve and execute a pending rollback request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			sp := newSpinner("Executing rollback...")
			result, err := app.Engine.ExecuteRollback(ctx, args[0], approver)
			stopSpinner(sp)
			if err != nil {
				return fmt.Errorf("rollback execution refused: %w", err)
			}

			if outputJSON {
				return outputAsJSON(result)
			}

			renderRollbackResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&approver, "approver", "", "User approving the rollback (required)")
	_ = cmd.MarkFlagRequired("approver")

	return cmd
}

// newRollbackRejectCmd creates the 'reject' subcommand
func newRollbackRejectCmd() *cobra.Command {
	var rejector string
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <request-id>",
		Short: "Reject a pending rollback request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.Engine.RejectRollback(ctx, args[0], rejector, reason); err != nil {
				return fmt.Errorf("failed to reject rollback: %w", err)
			}

			successColor.Printf("Rollback request %s rejected\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&rejector, "rejected-by", "", "User rejecting the rollback (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason for the rejection")
	_ = cmd.MarkFlagRequired("rejected-by")

	return cmd
}

// newRollbackHistoryCmd creates the 'history' subcommand
func newRollbackHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <environment>",
		Short: "Show resolved rollback requests for an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			history, err := app.Engine.GetRollbackHistory(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load rollback history: %w", err)
			}

			if outputJSON {
				return outputAsJSON(history)
			}

			if len(history) == 0 {
				fmt.Printf("No resolved rollbacks for %s\n", args[0])
				return nil
			}

			headerColor.Printf("Rollback history for %s\n\n", args[0])
			for _, entry := range history {
				fmt.Printf("%s  %s  %s\n", entry.Timestamp.Format("2006-01-02 15:04"),
					renderRollbackStatus(entry.Status), entry.Description)
			}
			return nil
		},
	}
}

func renderRollbackResult(result *core.RollbackResult) {
	if result.Success {
		successColor.Println("Rollback completed")
		fmt.Println(result.Message)
		if result.IntegrityCheck != nil {
			fmt.Printf("Integrity verified: %d files checked at %s\n",
				result.IntegrityCheck.ChecksCount,
				result.IntegrityCheck.CompletedAt.Format("2006-01-02 15:04:05"))
		}
		return
	}

	errorColor.Println("Rollback failed")
	fmt.Println(result.Message)
	fmt.Printf("Error: %s\n\n", result.Error)
	fmt.Println("Alternative options:")
	for _, option := range result.AlternativeOptions {
		fmt.Printf("  - %s\n", option)
	}
}

func renderRollbackStatus(status core.RollbackStatus) string {
	switch status {
	case core.RollbackStatusCompleted:
		return successColor.Sprint("completed")
	case core.RollbackStatusFailed:
		return errorColor.Sprint("failed")
	case core.RollbackStatusRejected:
		return warningColor.Sprint("rejected")
	default:
		return string(status)
	}
}
