package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/latticeflow/reactor/internal/recorder"
	"github.com/latticeflow/reactor/internal/scheduler"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Program string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <log-file>",
		Short: "Re-run a scheduler against a previously recorded physical-ingress log",
		Long: `Replay reconstructs the exact tag sequence a prior run's physical-ingress
deliveries produced, injects it directly into a fresh scheduler in place
of live ingress, and re-executes every reaction, in fast-forward mode.

The (tag, action_id, value) sequence being reproduced is printed first;
the scheduler is then run against it to confirm it completes without a
fatal error.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Program, "program", "gain-pipeline", "name of the registered program to replay against")

	return cmd
}

func runReplay(opts *ReplayOptions, logPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	if err := printRecordedSequence(logPath, cmd); err != nil {
		return WrapExitError(ExitCommandError, "failed to read recording", err)
	}

	builder, err := lookupProgram(opts.Program)
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown program", err)
	}
	program := builder()

	f, err := os.Open(logPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open recording", err)
	}
	defer f.Close()
	reader, err := recorder.NewReader(f)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse recording header", err)
	}

	sch := scheduler.New(program.Graph, program.Ports, program.Actions, scheduler.WithFastForward(true))
	if err := sch.PreloadReplay(reader, program.Decoders); err != nil {
		return WrapExitError(ExitFailure, "replay preload failed", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	reason, runErr := sch.Run(ctx)
	if runErr != nil {
		var fatal *scheduler.FatalError
		if errors.As(runErr, &fatal) {
			return WrapExitError(ExitFailure, "replay diverged", fatal)
		}
		return WrapExitError(ExitFailure, "replay run failed", runErr)
	}

	return formatter.Success(fmt.Sprintf("replay reproduced successfully: %s", reason))
}

func printRecordedSequence(logPath string, cmd *cobra.Command) error {
	f, err := os.Open(logPath)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, err := recorder.NewReader(f)
	if err != nil {
		return err
	}

	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "tag=(%d,%d) action=%s value=%s\n",
			frame.Tag.Offset, frame.Tag.Microstep, frame.Action, string(frame.Value))
	}
}
