package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/latticeflow/reactor/internal/config"
	"github.com/latticeflow/reactor/internal/history"
	"github.com/latticeflow/reactor/internal/recorder"
	"github.com/latticeflow/reactor/internal/scheduler"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Program     string
	FastForward bool
	Timeout     time.Duration
	Workers     int
	Record      string
	Replay      string
	Keepalive   bool
	HistoryPath string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <run-config.yaml>",
		Short: "Start the scheduler with a run configuration",
		Long: `Start the reactor scheduler against a named in-process program using the
fast-forward/timeout/workers settings from a run configuration file, with
flags on the command line taking priority over the file.

Example:
  reactor run ./run.yaml --program gain-pipeline --record ./run.log`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Program, "program", "gain-pipeline", "name of the registered program to run")
	cmd.Flags().BoolVar(&opts.FastForward, "fast-forward", false, "run without sleeping for logical-to-physical alignment")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "stop discarding events strictly after this logical offset")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "level-parallel worker count (0 or 1 = serial; default: config file value)")
	cmd.Flags().StringVar(&opts.Record, "record", "", "path to write a physical-ingress recording log to")
	cmd.Flags().StringVar(&opts.Replay, "replay", "", "path to a recording log to preload instead of live ingress (implies --fast-forward)")
	cmd.Flags().BoolVar(&opts.Keepalive, "keepalive", false, "keep the scheduler alive on an empty queue, waiting for ingress")
	cmd.Flags().StringVar(&opts.HistoryPath, "history", "", "path to the run-catalog SQLite database (default: none)")

	return cmd
}

func runScheduler(opts *RunOptions, configPath string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load run configuration", err)
	}
	applyRunFlagOverrides(cfg, cmd, opts)

	builder, err := lookupProgram(opts.Program)
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown program", err)
	}
	program := builder()

	replayPath := cfg.ReplayPath
	if opts.Replay != "" {
		replayPath = opts.Replay
	}
	if replayPath != "" {
		cfg.FastForward = true
	}

	schedOpts := cfg.Options()
	if !cfg.Keepalive {
		// Nothing in this command sends on the physical ingress, so without
		// keepalive no ingress is attached and the run ends once its queue
		// drains.
		schedOpts = append(schedOpts, scheduler.WithIngressBuffer(-1))
	}
	sch := scheduler.New(program.Graph, program.Ports, program.Actions, schedOpts...)

	if replayPath != "" {
		f, err := os.Open(replayPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open replay log", err)
		}
		defer f.Close()
		reader, err := recorder.NewReader(f)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read replay log header", err)
		}
		if err := sch.PreloadReplay(reader, program.Decoders); err != nil {
			return WrapExitError(ExitFailure, "failed to preload replay log", err)
		}
	}

	var rec *recorder.Writer
	recordPath := cfg.RecordPath
	if opts.Record != "" {
		recordPath = opts.Record
	}
	if recordPath != "" {
		f, err := os.Create(recordPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create record file", err)
		}
		defer f.Close()
		rec, err = recorder.NewWriter(f, sch.ActionTable())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start recorder", err)
		}
		sch.SetRecorder(rec)
	}

	historyPath := cfg.HistoryPath
	if opts.HistoryPath != "" {
		historyPath = opts.HistoryPath
	}
	var catalog *history.Store
	var runID int64
	if historyPath != "" {
		catalog, err = history.Open(historyPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open history catalog", err)
		}
		defer catalog.Close()
		runID, err = catalog.BeginRun(cmd.Context(), 0, map[string]any{
			"fast_forward": cfg.FastForward,
			"program":      opts.Program,
		}, recordPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to record run start", err)
		}
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "scheduler starting")
	reason, runErr := sch.Run(ctx)

	if catalog != nil {
		fatalMsg := ""
		var fatal *scheduler.FatalError
		if errors.As(runErr, &fatal) {
			fatalMsg = fatal.Error()
		}
		if endErr := catalog.EndRun(context.Background(), runID, 0, string(reason), fatalMsg); endErr != nil {
			slog.Error("failed to record run end", "error", endErr)
		}
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "scheduler stopped with an error", runErr)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(fmt.Sprintf("stopped: %s", reason))
}

func applyRunFlagOverrides(cfg *config.RunConfig, cmd *cobra.Command, opts *RunOptions) {
	if cmd.Flags().Changed("fast-forward") {
		cfg.FastForward = opts.FastForward
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = opts.Timeout
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if cmd.Flags().Changed("keepalive") {
		cfg.Keepalive = opts.Keepalive
	}
}
