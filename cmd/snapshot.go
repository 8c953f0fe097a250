package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewSnapshotCmd creates the 'snapshot' command group
func NewSnapshotCmd() *cobra.Command {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage environment snapshots",
		Long: `Capture and verify environment snapshots.

Only verified snapshots are eligible as rollback targets; 'snapshot verify'
checks the stored content against the manifest before marking one verified.`,
	}

	snapshotCmd.AddCommand(newSnapshotCreateCmd())
	snapshotCmd.AddCommand(newSnapshotVerifyCmd())
	snapshotCmd.AddCommand(newSnapshotListCmd())

	return snapshotCmd
}

// newSnapshotCreateCmd creates the 'create' subcommand
func newSnapshotCreateCmd() *cobra.Command {
	var revision string
	var manifest string
	var createdBy string

	cmd := &cobra.Command{
		Use:   "create <environment>",
		Short: "Record a new unverified snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			files := strings.Split(manifest, ",")
			for i := range files {
				files[i] = strings.TrimSpace(files[i])
			}

			snapshot, err := app.Engine.CreateSnapshot(ctx, args[0], revision, files, createdBy)
			if err != nil {
				return fmt.Errorf("failed to create snapshot: %w", err)
			}

			if outputJSON {
				return outputAsJSON(snapshot)
			}

			successColor.Printf("Snapshot %s created (unverified)\n", snapshot.SnapshotID)
			fmt.Printf("Run 'vigil snapshot verify %s' once content is staged.\n", snapshot.SnapshotID)
			return nil
		},
	}

	cmd.Flags().StringVar(&revision, "revision", "", "Source revision the snapshot was captured from (required)")
	cmd.Flags().StringVar(&manifest, "manifest", "", "Comma-separated list of relative file paths (required)")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "User capturing the snapshot")
	_ = cmd.MarkFlagRequired("revision")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

// newSnapshotVerifyCmd creates the 'verify' subcommand
func newSnapshotVerifyCmd() *cobra.Command {
	var verifiedBy string

	cmd := &cobra.Command{
		Use:   "verify <snapshot-id>",
		Short: "Verify a snapshot's content and mark it rollback-eligible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			sp := newSpinner("Verifying snapshot content...")
			err = app.Engine.VerifySnapshot(ctx, args[0], verifiedBy)
			stopSpinner(sp)
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}

			successColor.Printf("Snapshot %s verified\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&verifiedBy, "verified-by", "", "User verifying the snapshot")

	return cmd
}

// newSnapshotListCmd creates the 'list' subcommand
func newSnapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list <environment>",
		Aliases: []string{"ls"},
		Short:   "List snapshots for an environment",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			snapshots, err := app.Snapshots.GetSnapshotsByEnvironment(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}

			if outputJSON {
				return outputAsJSON(snapshots)
			}

			if len(snapshots) == 0 {
				fmt.Printf("No snapshots for %s\n", args[0])
				return nil
			}

			headerColor.Printf("Snapshots for %s\n\n", args[0])
			for _, snapshot := range snapshots {
				verified := errorColor.Sprint("unverified")
				if snapshot.Verified {
					verified = successColor.Sprint("verified")
				}
				fmt.Printf("%s  %s  rev %s  %d files  %s\n",
					snapshot.SnapshotID,
					snapshot.CreatedAt.Format("2006-01-02 15:04"),
					snapshot.SourceRevision,
					len(snapshot.FileManifest),
					verified)
			}
			return nil
		},
	}
}
