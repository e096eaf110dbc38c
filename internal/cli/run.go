package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/vre-tools/exrun/internal/batch"
	"github.com/vre-tools/exrun/internal/compare"
	"github.com/vre-tools/exrun/internal/config"
	"github.com/vre-tools/exrun/internal/discovery"
	"github.com/vre-tools/exrun/internal/history"
	"github.com/vre-tools/exrun/internal/runner"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath  string
	KeepCapture bool
	NoHistory   bool

	// Comparer overrides the external comparison utility (for testing).
	Comparer compare.Comparer
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [examples-dir]",
		Short: "Run the example batch",
		Long: `Run every example in a directory and compare captured output
against recorded baselines.

Each example runs in its own child process with stdout and stderr merged
into a single capture. The capture is compared against the expected-output
baseline by the external comparison utility, except for the sentinel case,
which executes unverified. The finalization case always runs last,
whatever happened before it.

Exit status is 0 only when every case exited 0 and every compared case
matched its baseline; otherwise the accumulated failure magnitude.

Examples:
  exrun run
  exrun run ./ExampleScripts
  exrun run ./ExampleScripts --format json
  exrun run --config harness.yaml --keep-capture`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runBatch(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to harness config (default <examples-dir>/"+config.FileName+")")
	cmd.Flags().BoolVar(&opts.KeepCapture, "keep-capture", false, "leave the scratch capture file behind")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "do not record the run in the history database")

	return cmd
}

func runBatch(opts *RunOptions, examplesDir string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Load config
	cfg, err := loadConfig(opts.ConfigPath, examplesDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	// Resolve interpreter. Absence of any usable binary is fatal.
	interpreter, err := runner.ResolveInterpreter(cfg.Interpreter)
	if err != nil {
		return WrapExitError(ExitNoInterpreter, "cannot resolve interpreter", err)
	}
	logger.Debug("interpreter resolved", "path", interpreter)

	// Discover cases. The finalization case is excluded from discovery.
	cases, err := discovery.Cases(examplesDir, cfg.Extension, cfg.Finalize)
	if err != nil {
		if opts.Format == "json" {
			writeJSONError(cmd.OutOrStdout(), "E_DISCOVERY", err.Error())
		}
		return WrapExitError(ExitCommandError, "discovery failed", err)
	}
	logger.Info("cases discovered", "dir", examplesDir, "count", len(cases))

	// Per-case progress lines go to stdout in text mode and are
	// suppressed in JSON mode to keep the envelope parseable.
	progress := io.Writer(cmd.OutOrStdout())
	if opts.Format == "json" {
		progress = io.Discard
	}

	comparer := opts.Comparer
	if comparer == nil {
		comparer = compare.Tool{Path: cfg.ToolPath(examplesDir)}
	}

	agg := batch.New(
		runner.New(interpreter, logger),
		comparer,
		func(name string) string { return cfg.BaselinePath(examplesDir, name) },
		progress,
		logger,
		batch.Options{
			Sentinel:    cfg.Sentinel,
			Finalize:    cfg.Finalize,
			KeepCapture: opts.KeepCapture,
		},
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	startedAt := time.Now()
	report, err := agg.Run(ctx, examplesDir, cases)
	if err != nil {
		return WrapExitError(ExitCommandError, "batch aborted", err)
	}
	finishedAt := time.Now()

	if !opts.NoHistory {
		recordHistory(ctx, logger, examplesDir, startedAt, finishedAt, report)
	}

	if opts.Format == "json" {
		return outputRunJSON(cmd.OutOrStdout(), report)
	}
	return outputRunText(cmd.OutOrStdout(), report)
}

func loadConfig(configPath, examplesDir string) (config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load(examplesDir)
}

// recordHistory persists the run. History is observability only: failures
// are logged and never affect the verdict.
func recordHistory(ctx context.Context, logger *slog.Logger, examplesDir string, startedAt, finishedAt time.Time, report *batch.Report) {
	store, err := history.Open(history.ResolvePath(examplesDir))
	if err != nil {
		logger.Warn("cannot open history store", "error", err)
		return
	}
	defer store.Close()

	id, err := store.Record(ctx, examplesDir, startedAt, finishedAt, report)
	if err != nil {
		logger.Warn("cannot record run history", "error", err)
		return
	}
	logger.Debug("run recorded", "id", id)
}

// outputRunJSON outputs the batch report as JSON.
func outputRunJSON(w io.Writer, report *batch.Report) error {
	response := CLIResponse{Status: "ok", Data: report}
	if !report.Verdict.Clean() {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_RUN_FAILED",
			Message: fmt.Sprintf("%d case(s) failed", report.Failed),
		}
	}
	if err := writeJSON(w, response); err != nil {
		return err
	}
	if !report.Verdict.Clean() {
		return NewExitError(report.Verdict.ExitCode(), fmt.Sprintf("%d case(s) failed", report.Failed))
	}
	return nil
}

// outputRunText outputs the batch summary as text.
func outputRunText(w io.Writer, report *batch.Report) error {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Batch Summary: %d passed, %d failed, %d total\n", report.Passed, report.Failed, report.Total)

	if !report.Verdict.Clean() {
		fmt.Fprintf(w, "✗ Verdict: %d\n", int(report.Verdict))
		return NewExitError(report.Verdict.ExitCode(), fmt.Sprintf("%d case(s) failed", report.Failed))
	}

	fmt.Fprintln(w, "✓ All cases passed")
	return nil
}
