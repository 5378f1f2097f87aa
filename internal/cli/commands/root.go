package commands

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/schemamirror/sfsync/internal/cli/ui"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// rootOptions holds the flags of the root command
type rootOptions struct {
	report   string
	every    time.Duration
	progress bool
	noColor  bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "sfsync",
		Short: "Mirror Salesforce schema metadata into a SQL database",
		Long: color.CyanString(`sfsync - Salesforce schema metadata mirror

Copies object fields, field usage and flow field references from a
Salesforce org into SQL tables so they can be queried without the API.

Phases (each toggled by environment):
  • Fields       (SYNC_FIELDS)       sf sobject describe, soft-deletes vanished fields
  • Field usage  (SYNC_FIELD_USAGE)  Tooling API MetadataComponentDependency
  • Flows        (SYNC_FLOWS)        retrieved Flow XML, field references

Examples:
  sfsync
  sfsync --every 6h
  sfsync --report flows`),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.report != "" {
				return runReport(cmd, opts)
			}
			return runSync(cmd, opts)
		},
	}

	rootCmd.Flags().StringVar(&opts.report, "report", "", "Print a stored report instead of syncing (available: flows)")
	rootCmd.Flags().DurationVar(&opts.every, "every", 0, "Repeat the sync on this interval until interrupted")
	rootCmd.Flags().BoolVar(&opts.progress, "progress", false, "Show a progress bar while describing objects")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the sfsync version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			kv.AddRow("sfsync version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// errorKind selects how a failure is presented
type errorKind int

const (
	kindGeneric errorKind = iota
	kindConfig
	kindDatabase
	kindUnknownReport
)

// commandError tags an error with how Execute should render it
type commandError struct {
	kind errorKind
	err  error
	// known lists valid names for kindUnknownReport
	known []string
	name  string
}

func (e *commandError) Error() string { return e.err.Error() }

func (e *commandError) Unwrap() error { return e.err }

func configError(err error) error {
	return &commandError{kind: kindConfig, err: err}
}

func databaseError(err error) error {
	return &commandError{kind: kindDatabase, err: err}
}

// formatCommandError renders err for the terminal
func formatCommandError(err error, noColor bool) string {
	var ce *commandError
	if errors.As(err, &ce) {
		switch ce.kind {
		case kindConfig:
			return ui.ConfigError(ce.err.Error(), noColor)
		case kindDatabase:
			return ui.DatabaseError(ce.err.Error(), noColor)
		case kindUnknownReport:
			return ui.UnknownReportError(ce.name, ce.known, noColor)
		}
	}
	return ui.FormatError(ui.ErrorOptions{
		Level:   ui.ErrorLevelError,
		Problem: "Error: " + err.Error(),
		NoColor: noColor,
	})
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(rootCmd.ErrOrStderr(), formatCommandError(err, color.NoColor))
		return err
	}
	return nil
}
