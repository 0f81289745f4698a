package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/latticeflow/reactor/internal/config"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Schema string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <tables.yaml>",
		Short: "Validate a runtime table bundle against its CUE schema",
		Long: `Validate checks that a builder-supplied table bundle (reactors, reactions,
ports, actions, timers) matches the shape a schema demands, without
constructing or running a scheduler.

This never re-derives reaction levels or re-detects cycles — it only
catches malformed input early.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to the CUE schema file (required)")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runValidate(opts *ValidateOptions, tablesPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	schema, err := os.ReadFile(opts.Schema)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read schema", err)
	}
	data, err := os.ReadFile(tablesPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read table bundle", err)
	}

	if err := config.ValidateTableBundle(schema, data); err != nil {
		_ = formatter.Error("E_SCHEMA", "table bundle does not satisfy schema", err.Error())
		return NewExitError(ExitFailure, err.Error())
	}

	return formatter.Success("table bundle is valid")
}
