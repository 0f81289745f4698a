package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticeflow/reactor/internal/history"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "history <catalog.db>",
		Short:         "List recent scheduler runs from the run catalog",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list")

	return cmd
}

func runHistory(opts *HistoryOptions, dbPath string, cmd *cobra.Command) error {
	store, err := history.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history catalog", err)
	}
	defer store.Close()

	runs, err := store.Recent(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query history catalog", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(runs)
	}
	for _, r := range runs {
		end := "running"
		if r.EndedAt != nil {
			end = r.EndedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %d  started=%s ended=%s stop=%s record=%s\n",
			r.ID, r.StartedAt.Format("2006-01-02T15:04:05Z07:00"), end, r.StopReason, r.RecordPath)
	}
	return nil
}
