// Package cmd provides the command-line interface for vigil.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"vigil/bootstrap"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON bool
	noColor    bool
)

// defaultTimeout bounds every CLI operation
const defaultTimeout = 5 * time.Minute

// NewRootCmd creates the vigil root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vigil",
		Short: "Anomaly detection and approval-gated rollback",
		Long: `Vigil watches delivery environments for security anomalies and manages
approval-gated rollbacks to verified snapshots.

Every rollback request requires explicit human approval before execution,
and every decision is recorded in an append-only audit log.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(NewRollbackCmd())
	rootCmd.AddCommand(NewSnapshotCmd())
	rootCmd.AddCommand(NewAuditCmd())

	return rootCmd
}

// initApp initializes the full application for a CLI operation. The
// returned cleanup must run before the process exits.
func initApp(ctx context.Context) (*bootstrap.App, func(), error) {
	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return app, app.Shutdown, nil
}

// newSpinner starts a progress spinner unless JSON output is requested
func newSpinner(message string) *spinner.Spinner {
	if outputJSON {
		return nil
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Start()
	return s
}

func stopSpinner(s *spinner.Spinner) {
	if s != nil {
		s.Stop()
	}
}

// outputAsJSON renders any value as indented JSON on stdout
func outputAsJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
