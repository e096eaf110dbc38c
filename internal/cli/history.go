package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vre-tools/exrun/internal/history"
)

// HistoryOptions holds flags for the history commands.
type HistoryOptions struct {
	*RootOptions
	Dir string
}

// NewHistoryCommand creates the history command and its subcommands.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded batch runs",
		Long: `Inspect the run history recorded by previous batches.

History lives in a SQLite database under the examples directory
(.exrun/history.db), or under $` + history.EnvDir + ` when set.

Examples:
  exrun history
  exrun history show 0190d6f2-...
  exrun history prune --days 30`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listHistory(opts, cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", ".", "examples directory whose history to inspect")

	cmd.AddCommand(newHistoryShowCommand(opts))
	cmd.AddCommand(newHistoryPruneCommand(opts))

	return cmd
}

func newHistoryShowCommand(opts *HistoryOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show one recorded run with its cases",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(opts, args[0], cmd)
		},
	}
}

func newHistoryPruneCommand(opts *HistoryOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:           "prune",
		Short:         "Delete runs older than a number of days",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pruneHistory(opts, days, cmd)
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "delete runs older than this many days")

	return cmd
}

func openStore(opts *HistoryOptions) (*history.Store, error) {
	store, err := history.Open(history.ResolvePath(opts.Dir))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot open history store", err)
	}
	return store, nil
}

func listHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	store, err := openStore(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot list runs", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: runs})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %s  verdict=%d  %d/%d passed\n",
			run.ID, run.StartedAt.Format(time.RFC3339), run.Verdict, run.Passed, run.Total)
	}
	return nil
}

func showHistory(opts *HistoryOptions, id string, cmd *cobra.Command) error {
	store, err := openStore(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Load(context.Background(), id)
	if err != nil {
		if errors.Is(err, history.ErrRunNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", id))
		}
		return WrapExitError(ExitCommandError, "cannot load run", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: run})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Dir:      %s\n", run.ExamplesDir)
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Finished: %s\n", run.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Verdict:  %d (exit %d)\n", run.Verdict, run.ExitStatus)
	fmt.Fprintf(w, "Cases:    %d passed, %d failed, %d total\n", run.Passed, run.Failed, run.Total)
	for _, c := range run.Cases {
		mark := "✓"
		if !c.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %s (exit %d)", mark, c.Name, c.ExitCode)
		if c.Finalized {
			fmt.Fprint(w, " [finalize]")
		} else if !c.Compared {
			fmt.Fprint(w, " [unverified]")
		}
		if c.Note != "" {
			fmt.Fprintf(w, " %s", c.Note)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func pruneHistory(opts *HistoryOptions, days int, cmd *cobra.Command) error {
	store, err := openStore(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.Prune(context.Background(), time.Duration(days)*24*time.Hour)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot prune runs", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s) older than %d days\n", deleted, days)
	return nil
}
